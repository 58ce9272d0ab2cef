package feature

import (
	"math"

	"github.com/mkarjala/go-audio-styler/internal/dsputil"
)

// True-peak oversampling parameters.
const (
	truePeakOversample = 4
	truePeakTaps       = 8 // sinc half-width per interpolated sample
)

// truePeakDB estimates the inter-sample peak by 4x windowed-sinc
// interpolation and reports it in dBFS, floored at the silence floor.
func truePeakDB(data [][]float32) float64 {
	var peak float64
	for _, ch := range data {
		for _, v := range ch {
			peak = math.Max(peak, math.Abs(float64(v)))
		}
	}

	// Interpolated values between samples can exceed the sample peak.
	kernel := sincKernels()
	for _, ch := range data {
		for k := range ch {
			for _, taps := range kernel {
				var y float64
				for j, w := range taps {
					idx := k + j - truePeakTaps
					if idx < 0 {
						idx = 0
					} else if idx >= len(ch) {
						idx = len(ch) - 1
					}
					y += w * float64(ch[idx])
				}
				peak = math.Max(peak, math.Abs(y))
			}
		}
	}

	if peak <= 0 {
		return dsputil.SilenceFloorDB
	}
	return math.Max(dsputil.AmpToDB(peak), dsputil.SilenceFloorDB)
}

// sincKernels returns one Hann-windowed sinc tap set per fractional phase
// 1/4, 2/4 and 3/4. Phase 0 is the input sample itself.
func sincKernels() [][]float64 {
	kernels := make([][]float64, 0, truePeakOversample-1)
	width := 2 * truePeakTaps
	for p := 1; p < truePeakOversample; p++ {
		frac := float64(p) / truePeakOversample
		taps := make([]float64, width+1)
		var sum float64
		for j := range taps {
			x := float64(j-truePeakTaps) - frac
			w := 0.5 * (1 + math.Cos(math.Pi*x/float64(truePeakTaps+1)))
			taps[j] = sinc(x) * w
			sum += taps[j]
		}
		// Unity DC gain keeps level estimates honest.
		for j := range taps {
			taps[j] /= sum
		}
		kernels = append(kernels, taps)
	}
	return kernels
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}
