package styler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarjala/go-audio-styler/internal/decode"
	"github.com/mkarjala/go-audio-styler/internal/testutil"
)

func quietConfig() Config {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return Config{Logger: log}
}

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{SampleRate: 4000})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{MemoryBudgetMB: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Workers: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	// The zero config is valid and gets defaults.
	e, err := New(Config{})
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, DefaultSampleRate, e.cfg.SampleRate)
	assert.Equal(t, DefaultWorkers, e.cfg.Workers)
	assert.Nil(t, e.cache, "no cache dir means no cache")
}

func TestAnalyzeFile(t *testing.T) {
	e := testEngine(t, quietConfig())
	dir := t.TempDir()
	path := testutil.WriteWAV(t, dir, "tone.wav",
		testutil.Sine(440, 0.5, DefaultSampleRate, DefaultSampleRate))

	set, err := e.Analyze(context.Background(), path)
	require.NoError(t, err)
	testutil.AssertInRange(t, set.Pitch.MeanF0, 420, 460)
	assert.Equal(t, DefaultSampleRate, set.Info.SampleRate)
	assert.InDelta(t, 1.0, set.Info.Duration, 0.05)
}

func TestAnalyzeBuffer(t *testing.T) {
	e := testEngine(t, quietConfig())
	set := e.AnalyzeBuffer(testutil.Sine(440, 0.5, DefaultSampleRate, DefaultSampleRate))
	testutil.AssertInRange(t, set.Spectral.Centroid, 300, 800)
}

func TestTransferEndToEnd(t *testing.T) {
	e := testEngine(t, quietConfig())
	dir := t.TempDir()
	rate := DefaultSampleRate

	// The reference is louder and brighter than the target, so the
	// inverted parameters should raise loudness and high end.
	ref := testutil.WriteWAV(t, dir, "ref.wav", testutil.Noise(7, 0.5, 2, rate, rate))
	tgt := testutil.WriteWAV(t, dir, "tgt.wav", testutil.Sine(440, 0.1, rate, rate))
	out := filepath.Join(dir, "styled.wav")

	p, metrics, err := e.Transfer(context.Background(), ref, tgt, out, ModeStyle)
	require.NoError(t, err)

	assert.NotEmpty(t, p.Chain)
	testutil.AssertInRange(t, p.Confidence, 0, 1)
	assert.False(t, metrics.Fallback)

	dec, err := decode.Open(out)
	require.NoError(t, err)
	defer dec.Close()
	info := dec.Info()
	assert.Equal(t, rate, info.SampleRate)
	assert.InDelta(t, float64(rate), float64(info.Frames), 1,
		"output duration must match the target's")
}

func TestRenderStreamsLongInput(t *testing.T) {
	cfg := quietConfig()
	// A tight budget forces minimum-size chunks, so a 3 s file takes the
	// chunked render path instead of being loaded whole.
	cfg.MemoryBudgetMB = 0.1
	e := testEngine(t, cfg)
	dir := t.TempDir()
	rate := DefaultSampleRate

	src := testutil.Sine(440, 0.25, rate, 3*rate)
	in := testutil.WriteWAV(t, dir, "long.wav", src)
	out := filepath.Join(dir, "styled.wav")
	require.Less(t, e.loader.ChunkFrames(), src.Frames())

	ref := e.AnalyzeBuffer(testutil.Noise(7, 0.5, 2, rate, rate))
	tgt := e.AnalyzeBuffer(src)
	p := e.Invert(ref, tgt, ModeStyle)
	metrics, err := e.Render(context.Background(), in, out, p)
	require.NoError(t, err)
	assert.False(t, metrics.Fallback)

	dec, err := decode.Open(out)
	require.NoError(t, err)
	defer dec.Close()
	info := dec.Info()
	assert.Equal(t, rate, info.SampleRate)
	assert.InDelta(t, float64(3*rate), float64(info.Frames), 1,
		"streamed output duration must match the input's")
}

func TestRenderBufferIdentity(t *testing.T) {
	e := testEngine(t, quietConfig())
	src := testutil.Sine(440, 0.25, DefaultSampleRate, DefaultSampleRate/2)

	result, err := e.RenderBuffer(context.Background(), src, StyleParameters{})
	require.NoError(t, err)
	assert.Equal(t, src.Frames(), result.Audio.Frames())
	testutil.AssertBuffersClose(t, src, result.Audio, 1e-6)
}

func TestAnalysisCaching(t *testing.T) {
	cfg := quietConfig()
	cfg.CacheDir = t.TempDir()
	e := testEngine(t, cfg)
	dir := t.TempDir()
	path := testutil.WriteWAV(t, dir, "tone.wav",
		testutil.Sine(440, 0.5, DefaultSampleRate, DefaultSampleRate))

	first, err := e.Analyze(context.Background(), path)
	require.NoError(t, err)
	second, err := e.Analyze(context.Background(), path)
	require.NoError(t, err)

	stats := e.CacheStats()
	assert.Equal(t, int64(1), stats.HitCount, "second analysis should hit")
	assert.InDelta(t, first.Spectral.Centroid, second.Spectral.Centroid, 1e-9)
	assert.InDelta(t, first.Loudness.IntegratedLUFS, second.Loudness.IntegratedLUFS, 1e-9)

	// Rewriting the file with different content must miss.
	testutil.WriteWAV(t, dir, "tone.wav",
		testutil.Sine(880, 0.5, DefaultSampleRate, DefaultSampleRate))
	third, err := e.Analyze(context.Background(), path)
	require.NoError(t, err)
	assert.Greater(t, third.Pitch.MeanF0, first.Pitch.MeanF0+300)
}

func TestRenderCaching(t *testing.T) {
	cfg := quietConfig()
	cfg.CacheDir = t.TempDir()
	e := testEngine(t, cfg)
	dir := t.TempDir()
	input := testutil.WriteWAV(t, dir, "in.wav",
		testutil.Sine(440, 0.25, DefaultSampleRate, DefaultSampleRate/2))

	p := StyleParameters{Chain: []string{"lufs"}}
	p.Loudness.TargetLUFS = -16

	out1 := filepath.Join(dir, "out1.wav")
	_, err := e.Render(context.Background(), input, out1, p)
	require.NoError(t, err)

	hitsBefore := e.CacheStats().HitCount
	out2 := filepath.Join(dir, "out2.wav")
	_, err = e.Render(context.Background(), input, out2, p)
	require.NoError(t, err)
	assert.Equal(t, hitsBefore+1, e.CacheStats().HitCount, "second render should be served from cache")

	a, err := os.ReadFile(out1)
	require.NoError(t, err)
	b, err := os.ReadFile(out2)
	require.NoError(t, err)
	assert.Equal(t, a, b, "cached render must be byte-identical")
}

func TestClearCache(t *testing.T) {
	cfg := quietConfig()
	cfg.CacheDir = t.TempDir()
	cfg.CacheTTL = time.Hour
	e := testEngine(t, cfg)
	dir := t.TempDir()
	path := testutil.WriteWAV(t, dir, "tone.wav",
		testutil.Sine(440, 0.5, DefaultSampleRate, DefaultSampleRate/4))

	_, err := e.Analyze(context.Background(), path)
	require.NoError(t, err)
	require.Positive(t, e.CacheStats().TotalEntries)

	removed, err := e.ClearCache()
	require.NoError(t, err)
	assert.Positive(t, removed)
	assert.Zero(t, e.CacheStats().TotalEntries)
}

func TestInvertIsDeterministic(t *testing.T) {
	e := testEngine(t, quietConfig())
	ref := e.AnalyzeBuffer(testutil.Noise(3, 0.5, 2, DefaultSampleRate, DefaultSampleRate))
	tgt := e.AnalyzeBuffer(testutil.Sine(440, 0.2, DefaultSampleRate, DefaultSampleRate))

	a := e.Invert(ref, tgt, ModeStyle)
	b := e.Invert(ref, tgt, ModeStyle)
	assert.Equal(t, a, b)
}
