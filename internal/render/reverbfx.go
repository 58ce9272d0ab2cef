package render

import (
	"math"
	"math/rand"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/params"
)

// Synthetic impulse-response families. Each family has a fixed seed so a
// given parameter set always renders the same tail.
const (
	roomIRSeconds = 0.6
	hallIRSeconds = 1.8
	roomIRSeed    = 101
	hallIRSeed    = 202

	// minReverbMix is the wet level below which the stage is skipped.
	minReverbMix = 0.01
)

// synthIR builds an exponentially decaying noise impulse response with the
// family's tail length and the requested pre-delay of leading silence. The
// tail is energy-normalized so convolution preserves loudness order of
// magnitude.
func synthIR(irType string, preDelayMs float64, sampleRate int) []float64 {
	seconds := roomIRSeconds
	seed := int64(roomIRSeed)
	if irType == params.IRHall {
		seconds = hallIRSeconds
		seed = hallIRSeed
	}

	preDelay := int(preDelayMs / 1000 * float64(sampleRate))
	tail := int(seconds * float64(sampleRate))
	ir := make([]float64, preDelay+tail)

	// 60 dB of decay across the tail.
	k := math.Log(1000) / float64(tail)
	rng := rand.New(rand.NewSource(seed))
	var energy float64
	for i := range tail {
		v := math.Exp(-k*float64(i)) * (2*rng.Float64() - 1)
		ir[preDelay+i] = v
		energy += v * v
	}
	if energy > 0 {
		norm := 1 / math.Sqrt(energy)
		for i := range ir {
			ir[i] *= norm
		}
	}
	return ir
}

// applyReverb convolves each channel with the synthetic impulse response and
// blends it behind the dry signal. The output keeps the input length; the
// tail past the end is dropped.
func applyReverb(buf *audiobuf.Buffer, r params.Reverb) {
	if r.Mix < minReverbMix || buf.Frames() == 0 {
		return
	}
	ir := synthIR(r.IRType, r.PreDelayMs, buf.SampleRate)

	dry := 1 - r.Mix*0.5
	wet := r.Mix
	for ch := range buf.Data {
		signal := buf.Channel64(ch)
		tail := convolveTail(signal, ir)
		for i := range buf.Data[ch] {
			buf.Data[ch][i] = float32(dry*signal[i] + wet*tail[i])
		}
	}
}
