// Package dsputil provides small shared DSP helpers: window functions,
// decibel conversions and numeric clamps.
package dsputil

import "math"

// SilenceFloorDB is the decibel value reported for digital silence.
const SilenceFloorDB = -60.0

// Hann returns an n-point Hann window.
func Hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// NextPow2 returns the smallest power of two >= n.
func NextPow2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

// AmpToDB converts a linear amplitude to decibels, flooring at SilenceFloorDB.
func AmpToDB(a float64) float64 {
	if a <= 0 {
		return SilenceFloorDB
	}
	db := 20 * math.Log10(a)
	if db < SilenceFloorDB {
		return SilenceFloorDB
	}
	return db
}

// DBToAmp converts decibels to a linear amplitude.
func DBToAmp(db float64) float64 {
	return math.Pow(10, db/20)
}

// PowerToDB converts a power value to decibels, flooring at SilenceFloorDB.
func PowerToDB(p float64) float64 {
	if p <= 0 {
		return SilenceFloorDB
	}
	db := 10 * math.Log10(p)
	if db < SilenceFloorDB {
		return SilenceFloorDB
	}
	return db
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// MeanFinite returns the arithmetic mean of the finite values in vs and the
// number of values that contributed. NaN and Inf entries are skipped.
func MeanFinite(vs []float64) (float64, int) {
	var sum float64
	var n int
	for _, v := range vs {
		if IsFinite(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
