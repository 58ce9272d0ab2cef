package feature

import (
	"github.com/tphakala/simd/f64"
)

// Backend supplies the vector primitives the analyses are built on. It is a
// construction-time strategy: the default uses SIMD kernels, a pure-Go
// implementation exists for testing and for platforms where the SIMD package
// falls back to scalar code anyway.
type Backend interface {
	// Sum returns the sum of all elements of a.
	Sum(a []float64) float64

	// Dot returns the dot product of a and b. Lengths must match.
	Dot(a, b []float64) float64

	// Scale writes a[i]*s into dst. dst and a must have equal length.
	Scale(dst, a []float64, s float64)
}

// DefaultBackend returns the SIMD-accelerated backend.
func DefaultBackend() Backend {
	return simdBackend{}
}

type simdBackend struct{}

func (simdBackend) Sum(a []float64) float64 {
	return f64.Sum(a)
}

func (simdBackend) Dot(a, b []float64) float64 {
	return f64.DotProductUnsafe(a, b)
}

func (simdBackend) Scale(dst, a []float64, s float64) {
	f64.Scale(dst, a, s)
}

// GoBackend returns a pure-Go backend with identical semantics.
func GoBackend() Backend {
	return goBackend{}
}

type goBackend struct{}

func (goBackend) Sum(a []float64) float64 {
	var s float64
	for _, v := range a {
		s += v
	}
	return s
}

func (goBackend) Dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func (goBackend) Scale(dst, a []float64, s float64) {
	for i := range a {
		dst[i] = a[i] * s
	}
}
