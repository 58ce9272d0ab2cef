// Package resample converts audio between sample rates using 4-point cubic
// Hermite interpolation. The loader uses it to bring native-rate decode
// output to the engine rate; quality is sufficient for feature analysis and
// style rendering, where the engine rate (48 kHz) is at or above the native
// rate of almost all inputs.
package resample

import "math"

// Hermite basis coefficients for 4-point, 3rd-order interpolation.
const (
	hermiteHalf        = 0.5
	hermiteThreeHalves = 1.5
	hermiteFiveHalves  = 2.5
)

// Ratio returns the resampling ratio for a rate conversion.
func Ratio(fromRate, toRate int) float64 {
	return float64(toRate) / float64(fromRate)
}

// OutputLen returns the number of output frames produced for n input frames.
func OutputLen(n, fromRate, toRate int) int {
	if fromRate == toRate {
		return n
	}
	return int(math.Round(float64(n) * Ratio(fromRate, toRate)))
}

// Channel resamples a single channel from fromRate to toRate. The input is
// returned unchanged (not copied) when the rates match.
func Channel(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 {
		return in
	}
	outLen := OutputLen(len(in), fromRate, toRate)
	out := make([]float32, outLen)
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		out[i] = float32(interpolate(in, idx, frac))
	}
	return out
}

// Buffer resamples every channel of a deinterleaved sample matrix.
func Buffer(in [][]float32, fromRate, toRate int) [][]float32 {
	if fromRate == toRate {
		return in
	}
	out := make([][]float32, len(in))
	for ch := range in {
		out[ch] = Channel(in[ch], fromRate, toRate)
	}
	return out
}

// interpolate evaluates the cubic Hermite polynomial through the 4 input
// samples centred on idx, at fractional position x in [0, 1).
func interpolate(in []float32, idx int, x float64) float64 {
	y0 := sampleAt(in, idx-1)
	y1 := sampleAt(in, idx)
	y2 := sampleAt(in, idx+1)
	y3 := sampleAt(in, idx+2)

	a := -hermiteHalf*y0 + hermiteThreeHalves*y1 - hermiteThreeHalves*y2 + hermiteHalf*y3
	b := y0 - hermiteFiveHalves*y1 + 2*y2 - hermiteHalf*y3
	c := -hermiteHalf*y0 + hermiteHalf*y2
	d := y1

	return ((a*x+b)*x+c)*x + d
}

// sampleAt reads in[i] with edge clamping.
func sampleAt(in []float32, i int) float64 {
	if i < 0 {
		i = 0
	}
	if i >= len(in) {
		i = len(in) - 1
	}
	return float64(in[i])
}
