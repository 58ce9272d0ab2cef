package testutil

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
)

// Sine returns a mono sine buffer.
func Sine(freq, amplitude float64, sampleRate int, frames int) *audiobuf.Buffer {
	buf := audiobuf.New(1, frames, sampleRate)
	w := 2 * math.Pi * freq / float64(sampleRate)
	for i := range frames {
		buf.Data[0][i] = float32(amplitude * math.Sin(w*float64(i)))
	}
	return buf
}

// StereoSine returns a two-channel buffer with independent frequencies per
// channel, useful for exercising the mid/side analysis.
func StereoSine(freqL, freqR, amplitude float64, sampleRate int, frames int) *audiobuf.Buffer {
	buf := audiobuf.New(2, frames, sampleRate)
	wl := 2 * math.Pi * freqL / float64(sampleRate)
	wr := 2 * math.Pi * freqR / float64(sampleRate)
	for i := range frames {
		buf.Data[0][i] = float32(amplitude * math.Sin(wl*float64(i)))
		buf.Data[1][i] = float32(amplitude * math.Sin(wr*float64(i)))
	}
	return buf
}

// Noise returns seeded uniform noise in [-amplitude, amplitude].
func Noise(seed int64, amplitude float64, channels, frames, sampleRate int) *audiobuf.Buffer {
	rng := rand.New(rand.NewSource(seed))
	buf := audiobuf.New(channels, frames, sampleRate)
	for ch := range buf.Data {
		for i := range buf.Data[ch] {
			buf.Data[ch][i] = float32(amplitude * (2*rng.Float64() - 1))
		}
	}
	return buf
}

// DecayingNoise returns seeded noise whose amplitude decays exponentially,
// approximating a reverberant tail with the given RT60.
func DecayingNoise(seed int64, rt60 float64, frames, sampleRate int) *audiobuf.Buffer {
	rng := rand.New(rand.NewSource(seed))
	buf := audiobuf.New(1, frames, sampleRate)
	// 60 dB over rt60 seconds.
	k := math.Log(1000) / (rt60 * float64(sampleRate))
	for i := range frames {
		env := math.Exp(-k * float64(i))
		buf.Data[0][i] = float32(env * (2*rng.Float64() - 1) * 0.8)
	}
	return buf
}

// Silence returns an all-zero buffer.
func Silence(channels, frames, sampleRate int) *audiobuf.Buffer {
	return audiobuf.New(channels, frames, sampleRate)
}

// WriteWAV encodes buf as a 16-bit PCM WAV under dir and returns its path.
func WriteWAV(t *testing.T, dir, name string, buf *audiobuf.Buffer) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, buf.SampleRate, 16, buf.Channels(), 1)
	frames := buf.Frames()
	data := make([]int, frames*buf.Channels())
	for i := range frames {
		for ch := range buf.Data {
			v := float64(buf.Data[ch][i]) * 32767
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			data[i*buf.Channels()+ch] = int(v)
		}
	}
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: buf.Channels(), SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(ib))
	require.NoError(t, enc.Close())
	return path
}
