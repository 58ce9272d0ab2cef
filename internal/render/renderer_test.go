package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/decode"
	"github.com/mkarjala/go-audio-styler/internal/params"
	"github.com/mkarjala/go-audio-styler/internal/testutil"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func styleParams() params.StyleParameters {
	return params.StyleParameters{
		EQ:       []params.EQBand{{Type: params.BandPeaking, FreqHz: 2000, Q: 1, GainDB: 3}},
		Loudness: params.Loudness{TargetLUFS: -16},
		Limiter:  params.Limiter{CeilingDB: -1, LookaheadMs: 1, ReleaseMs: 100},
		Chain:    params.DefaultChain(),
	}
}

func TestSplitRangesCoverage(t *testing.T) {
	ranges := splitRanges(100000, 30000, 4800)
	require.NotEmpty(t, ranges)
	assert.Equal(t, 0, ranges[0].start)
	assert.Equal(t, 100000, ranges[len(ranges)-1].end)
	for i := 1; i < len(ranges); i++ {
		// Every boundary shares the overlap for crossfading.
		assert.Equal(t, 4800, ranges[i-1].end-ranges[i].start)
	}
}

func TestProcessChunksIdentityPreservesAudio(t *testing.T) {
	buf := testutil.Sine(440, 0.5, testRate, 3*testRate)
	out, err := processChunks(context.Background(), buf, testRate, 4800, 2, func(*audiobuf.Buffer) {})
	require.NoError(t, err)

	assert.Equal(t, buf.Frames(), out.Frames())
	// Crossfading two identical chunks reproduces the signal exactly.
	testutil.AssertBuffersClose(t, buf, out, 1e-6)
}

func TestProcessChunksExactLengthForAwkwardSplits(t *testing.T) {
	for _, frames := range []int{testRate + 1, 2*testRate - 1, 3*testRate + 7} {
		buf := testutil.Noise(9, 0.5, 2, frames, testRate)
		out, err := processChunks(context.Background(), buf, testRate, 4800, 4, func(*audiobuf.Buffer) {})
		require.NoError(t, err)
		assert.Equal(t, frames, out.Frames(), "frames=%d", frames)
	}
}

// A final chunk shorter than twice the overlap must still land at its source
// position: every sample keeps its place and the true tail survives. A ramp
// encodes each frame's position so any time shift or truncation shows up as
// a value mismatch.
func TestStitchShortFinalChunkKeepsAlignment(t *testing.T) {
	const (
		overlap = 4800
		chunk   = testRate
		frames  = testRate + overlap/2 // final range is overlap+2400 frames, under 2*overlap
	)
	buf := audiobuf.New(1, frames, testRate)
	for i := range buf.Data[0] {
		buf.Data[0][i] = float32(i)/float32(frames) - 0.5
	}

	ranges := splitRanges(frames, chunk, overlap)
	require.Len(t, ranges, 2)
	require.Less(t, ranges[1].end-ranges[1].start, 2*overlap,
		"fixture must exercise a final chunk shorter than twice the overlap")

	out, err := processChunks(context.Background(), buf, chunk, overlap, 2, func(*audiobuf.Buffer) {})
	require.NoError(t, err)
	require.Equal(t, frames, out.Frames())

	for i, want := range buf.Data[0] {
		if diff := float64(out.Data[0][i]) - float64(want); diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("sample %d shifted: want %v got %v", i, want, out.Data[0][i])
		}
	}
}

func TestProcessChunksAppliesPerChunk(t *testing.T) {
	buf := testutil.Sine(440, 0.5, testRate, 3*testRate)
	out, err := processChunks(context.Background(), buf, testRate, 4800, 2, func(chunk *audiobuf.Buffer) {
		for _, ch := range chunk.Data {
			for i := range ch {
				ch[i] *= 0.5
			}
		}
	})
	require.NoError(t, err)

	want := buf.Clone()
	for _, ch := range want.Data {
		for i := range ch {
			ch[i] *= 0.5
		}
	}
	testutil.AssertBuffersClose(t, want, out, 1e-6)
}

func TestProcessChunksCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	buf := testutil.Sine(440, 0.5, testRate, 10*testRate)
	_, err := processChunks(ctx, buf, testRate, 4800, 2, func(*audiobuf.Buffer) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderPreservesDuration(t *testing.T) {
	r := NewRenderer(testRate, 4800, 2, quietLog())
	buf := testutil.Sine(440, 0.3, testRate, 5*testRate/2)

	res, err := r.Render(context.Background(), buf, styleParams())
	require.NoError(t, err)
	assert.Equal(t, buf.Frames(), res.Audio.Frames())
	assert.False(t, res.Fallback)
}

func TestRenderAppliesLoudnessTarget(t *testing.T) {
	r := NewRenderer(10*testRate, 4800, 1, quietLog())
	buf := testutil.Sine(997, 0.05, testRate, 4*testRate)

	res, err := r.Render(context.Background(), buf, styleParams())
	require.NoError(t, err)
	// The quiet sine must come out louder, but under the limiter ceiling.
	assert.Greater(t, testutil.RMS(res.Audio.Data[0]), testutil.RMS(buf.Data[0]))
	assert.LessOrEqual(t, float64(res.Audio.Peak()), 1.0)
}

func TestRenderCancelledContextFails(t *testing.T) {
	r := NewRenderer(testRate, 4800, 2, quietLog())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Render(ctx, testutil.Sine(440, 0.3, testRate, 5*testRate), styleParams())
	assert.Error(t, err)
}

func TestDegradeParametersKeepsEssentials(t *testing.T) {
	p := styleParams()
	p.EQ = []params.EQBand{
		{Type: params.BandPeaking, FreqHz: 200, Q: 1, GainDB: 1},
		{Type: params.BandPeaking, FreqHz: 500, Q: 1, GainDB: -5},
		{Type: params.BandPeaking, FreqHz: 1000, Q: 1, GainDB: 2},
		{Type: params.BandPeaking, FreqHz: 2000, Q: 1, GainDB: 6},
		{Type: params.BandPeaking, FreqHz: 4000, Q: 1, GainDB: -0.7},
	}
	p.Reverb = params.Reverb{IRType: params.IRHall, Mix: 0.3}
	p.Stereo = params.Stereo{Width: 1.8}
	p.Pitch = params.Pitch{Semitones: 2}
	p.Compression = params.Compressor{Enabled: true, ThresholdDB: -20, Ratio: 3}

	d := degradeParameters(p)
	require.Len(t, d.EQ, 3)
	// Strongest corrections survive.
	assert.Equal(t, 6.0, d.EQ[0].GainDB)
	assert.Equal(t, -5.0, d.EQ[1].GainDB)
	assert.Equal(t, 2.0, d.EQ[2].GainDB)
	assert.Zero(t, d.Reverb.Mix)
	assert.Equal(t, 1.0, d.Stereo.Width)
	assert.Zero(t, d.Pitch.Semitones)
	assert.Zero(t, d.Loudness.TargetLUFS)
	// Dynamics stay: they are what keeps a degraded render usable.
	assert.True(t, d.Compression.Enabled)
	assert.Equal(t, p.Limiter, d.Limiter)
}

func TestMetricsIdentityIsClean(t *testing.T) {
	r := NewRenderer(testRate, 4800, 1, quietLog())
	buf := testutil.Sine(440, 0.4, testRate, 2*testRate)

	m := computeMetrics(r.analyzer, buf, buf.Clone())
	assert.InDelta(t, 0, m.STFTDistance, 1e-9)
	assert.InDelta(t, 0, m.MelDistance, 1e-9)
	assert.InDelta(t, 0, m.LUFSError, 1e-9)
	assert.Zero(t, m.ArtifactsRate)
}

func TestMetricsFlagClipping(t *testing.T) {
	r := NewRenderer(testRate, 4800, 1, quietLog())
	src := testutil.Sine(440, 0.4, testRate, testRate)
	clipped := testutil.Sine(440, 1.0, testRate, testRate)

	m := computeMetrics(r.analyzer, src, clipped)
	assert.Greater(t, m.ArtifactsRate, 0.0)
	assert.Greater(t, m.STFTDistance, 0.0)
}

func TestRenderStreamIdentityPreservesAudio(t *testing.T) {
	const overlap = 4800
	dir := t.TempDir()

	// 2.5 s ramp: three streamed chunks with a 1 s loader, and any frame
	// landing at the wrong output position shows up as a value mismatch.
	frames := testRate * 5 / 2
	src := audiobuf.New(1, frames, testRate)
	for i := range src.Data[0] {
		src.Data[0][i] = float32(i)/float32(frames) - 0.5
	}
	inPath := testutil.WriteWAV(t, dir, "in.wav", src)
	outPath := filepath.Join(dir, "out.wav")

	loader := decode.NewLoader(testRate, 0.1, overlap, quietLog())
	require.Less(t, loader.ChunkFrames(), frames, "fixture must span several chunks")
	stream, err := loader.Stream(context.Background(), inPath)
	require.NoError(t, err)
	defer stream.Close()

	r := NewRenderer(loader.ChunkFrames(), overlap, 2, quietLog())
	res, err := r.RenderStream(context.Background(), stream, outPath, params.StyleParameters{})
	require.NoError(t, err)
	require.Nil(t, res.Audio)

	got, err := loader.LoadAll(context.Background(), outPath)
	require.NoError(t, err)
	require.Equal(t, frames, got.Frames())
	// An all-default parameter set is a no-op chain, so the streamed output
	// must reproduce the input up to requantization error.
	for i := 0; i < frames; i++ {
		if diff := float64(got.Data[0][i]) - float64(src.Data[0][i]); diff > 2e-4 || diff < -2e-4 {
			t.Fatalf("sample %d shifted: want %v got %v", i, src.Data[0][i], got.Data[0][i])
		}
	}
}

func TestRenderStreamCancelledContextFails(t *testing.T) {
	dir := t.TempDir()
	src := testutil.Sine(440, 0.5, testRate, testRate*3)
	inPath := testutil.WriteWAV(t, dir, "in.wav", src)
	outPath := filepath.Join(dir, "out.wav")

	loader := decode.NewLoader(testRate, 0.1, 4800, quietLog())
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := loader.Stream(ctx, inPath)
	require.NoError(t, err)
	defer stream.Close()
	cancel()

	r := NewRenderer(loader.ChunkFrames(), 4800, 2, quietLog())
	_, err = r.RenderStream(ctx, stream, outPath, styleParams())
	require.Error(t, err)
	// The aborted render must not leave a file under the final name.
	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteWAVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	buf := testutil.StereoSine(440, 880, 0.5, testRate, testRate/4)
	path := filepath.Join(dir, "render.wav")

	require.NoError(t, WriteWAV(path, buf))

	got, err := decode.Open(path)
	require.NoError(t, err)
	defer got.Close()

	info := got.Info()
	assert.Equal(t, testRate, info.SampleRate)
	assert.Equal(t, 2, info.Channels)

	read := make([][]float32, 2)
	for ch := range read {
		read[ch] = make([]float32, buf.Frames())
	}
	n, _ := got.ReadFrames(read)
	require.Equal(t, buf.Frames(), n)
	// 24-bit quantization error is tiny.
	for i := 0; i < n; i += 1000 {
		assert.InDelta(t, float64(buf.Data[0][i]), float64(read[0][i]), 1e-4)
	}
}
