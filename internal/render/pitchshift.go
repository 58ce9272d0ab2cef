package render

import (
	"math"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/dsputil"
	"github.com/mkarjala/go-audio-styler/internal/params"
	"github.com/mkarjala/go-audio-styler/internal/resample"
)

// Pitch shifter grain geometry.
const (
	minAudibleSemitones = 0.1
	grainSize           = 2048
	grainHop            = grainSize / 4
)

// applyPitchShift transposes every channel by the requested semitones while
// preserving duration: the channel is resampled to move the pitch, then
// time-stretched back to its original length by granular overlap-add.
func applyPitchShift(buf *audiobuf.Buffer, p params.Pitch) {
	if math.Abs(p.Semitones) < minAudibleSemitones {
		return
	}
	frames := buf.Frames()
	if frames < 2*grainSize {
		return
	}

	ratio := math.Pow(2, p.Semitones/12)
	// Resampling to rate/ratio raises the pitch by ratio when the result is
	// played back at the original rate.
	shiftedRate := int(math.Round(float64(buf.SampleRate) / ratio))
	if shiftedRate == buf.SampleRate {
		return
	}

	for ch := range buf.Data {
		shifted := resample.Channel(buf.Data[ch], buf.SampleRate, shiftedRate)
		stretched := stretchToLength(shifted, frames)
		copy(buf.Data[ch], stretched)
	}
}

// stretchToLength time-stretches in to exactly outLen samples with
// Hann-windowed overlap-add grains. The analysis hop tracks the stretch
// factor; the window overlap sum renormalizes the output.
func stretchToLength(in []float32, outLen int) []float32 {
	out := make([]float32, outLen)
	if len(in) == 0 || outLen == 0 {
		return out
	}
	win := dsputil.Hann(grainSize)
	analysisHop := float64(grainHop) * float64(len(in)) / float64(outLen)

	acc := make([]float64, outLen)
	norm := make([]float64, outLen)
	for m := 0; ; m++ {
		outPos := m * grainHop
		if outPos >= outLen {
			break
		}
		inPos := int(math.Round(float64(m) * analysisHop))
		if inPos+grainSize > len(in) {
			inPos = len(in) - grainSize
			if inPos < 0 {
				inPos = 0
			}
		}
		for i := 0; i < grainSize && outPos+i < outLen && inPos+i < len(in); i++ {
			acc[outPos+i] += win[i] * float64(in[inPos+i])
			norm[outPos+i] += win[i]
		}
	}
	for i := range out {
		if norm[i] > 1e-8 {
			out[i] = float32(acc[i] / norm[i])
		}
	}
	return out
}
