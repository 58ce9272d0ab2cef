package feature

import (
	"errors"
	"math"
)

// YIN detector parameters.
const (
	yinFrame     = 2048
	yinHop       = 512
	yinThreshold = 0.1
)

var errNoVoicedFrames = errors.New("no voiced frames detected")

// pitchFeatures runs the YIN fundamental-frequency detector over fixed
// frames and summarizes the voiced frames. Unvoiced material is normal for
// non-tonal sources; the caller treats the error as "no pitch", not failure.
func (e *Extractor) pitchFeatures(mono []float64, sampleRate int) (Pitch, error) {
	if len(mono) < yinFrame {
		return Pitch{}, errTooShort
	}

	tauMin := int(float64(sampleRate) / pitchMaxHz)
	tauMax := int(float64(sampleRate) / pitchMinHz)
	if tauMax > yinFrame/2 {
		tauMax = yinFrame / 2
	}
	if tauMin < 2 {
		tauMin = 2
	}

	var f0s []float64
	frames := 0
	diff := make([]float64, tauMax+1)
	cmndf := make([]float64, tauMax+1)
	for start := 0; start+yinFrame <= len(mono); start += yinHop {
		frames++
		if f0, ok := yinFrameF0(mono[start:start+yinFrame], sampleRate, tauMin, tauMax, diff, cmndf); ok {
			f0s = append(f0s, f0)
		}
	}
	if len(f0s) == 0 {
		return Pitch{}, errNoVoicedFrames
	}

	mean := meanOf(f0s)
	var variance float64
	for _, f := range f0s {
		d := f - mean
		variance += d * d
	}
	return Pitch{
		MeanF0:      mean,
		StdF0:       math.Sqrt(variance / float64(len(f0s))),
		VoicedRatio: float64(len(f0s)) / float64(frames),
	}, nil
}

// yinFrameF0 estimates one frame's fundamental via the cumulative mean
// normalized difference function. diff and cmndf are caller-owned scratch.
func yinFrameF0(frame []float64, sampleRate, tauMin, tauMax int, diff, cmndf []float64) (float64, bool) {
	n := len(frame)
	for tau := 1; tau <= tauMax; tau++ {
		var sum float64
		for i := 0; i < n-tau; i++ {
			d := frame[i] - frame[i+tau]
			sum += d * d
		}
		diff[tau] = sum
	}

	cmndf[0] = 1
	var running float64
	for tau := 1; tau <= tauMax; tau++ {
		running += diff[tau]
		if running <= 0 {
			cmndf[tau] = 1
		} else {
			cmndf[tau] = diff[tau] * float64(tau) / running
		}
	}

	// First dip under the threshold wins; walk to its local minimum.
	for tau := tauMin; tau <= tauMax; tau++ {
		if cmndf[tau] < yinThreshold {
			for tau+1 <= tauMax && cmndf[tau+1] < cmndf[tau] {
				tau++
			}
			return float64(sampleRate) / refineTau(cmndf, tau, tauMax), true
		}
	}
	return 0, false
}

// refineTau applies parabolic interpolation around the detected lag.
func refineTau(cmndf []float64, tau, tauMax int) float64 {
	if tau <= 1 || tau >= tauMax {
		return float64(tau)
	}
	a, b, c := cmndf[tau-1], cmndf[tau], cmndf[tau+1]
	denom := a - 2*b + c
	if math.Abs(denom) < energyEpsilon {
		return float64(tau)
	}
	offset := (a - c) / (2 * denom)
	return float64(tau) + offset
}
