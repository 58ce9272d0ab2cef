// Package testutil provides signal generators and assertion helpers shared
// by the analysis and rendering tests.
package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
)

// Default tolerances for audio comparisons.
const (
	DefaultTolerance = 1e-10
	DBTolerance      = 0.5
	HzTolerance      = 5.0
)

// AssertNoNaNOrInf verifies that no elements in the slice are NaN or Inf.
func AssertNoNaNOrInf(t *testing.T, s []float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if math.IsNaN(v) {
			return assert.Fail(t, "found NaN", "s[%d] is NaN", i)
		}
		if math.IsInf(v, 0) {
			return assert.Fail(t, "found Inf", "s[%d] is Inf", i)
		}
	}
	return true
}

// AssertInRange verifies that a value is within [min, max].
func AssertInRange(t *testing.T, value, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	if value < minVal || value > maxVal {
		return assert.Fail(t, "value out of range",
			"value %f is outside range [%f, %f]", value, minVal, maxVal)
	}
	return true
}

// AssertRelativeError verifies that the relative error between actual and
// expected is within tolerance.
func AssertRelativeError(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	if expected == 0 {
		return assert.InDelta(t, expected, actual, tolerance, msgAndArgs...)
	}
	relError := math.Abs(actual-expected) / math.Abs(expected)
	return assert.LessOrEqual(t, relError, tolerance,
		"relative error %e exceeds tolerance %e (expected=%f, actual=%f)",
		relError, tolerance, expected, actual)
}

// AssertBuffersClose verifies two buffers have identical shape and samples
// within tolerance.
func AssertBuffersClose(t *testing.T, want, got *audiobuf.Buffer, tolerance float64) bool {
	t.Helper()
	if !assert.Equal(t, want.Channels(), got.Channels(), "channel count") {
		return false
	}
	if !assert.Equal(t, want.Frames(), got.Frames(), "frame count") {
		return false
	}
	for ch := range want.Data {
		for i := range want.Data[ch] {
			if math.Abs(float64(want.Data[ch][i])-float64(got.Data[ch][i])) > tolerance {
				return assert.Fail(t, "buffers differ",
					"ch=%d i=%d want=%f got=%f", ch, i, want.Data[ch][i], got.Data[ch][i])
			}
		}
	}
	return true
}

// RMS returns the root mean square of a channel.
func RMS(s []float32) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(s)))
}
