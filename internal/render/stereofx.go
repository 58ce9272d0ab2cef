package render

import (
	"math"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/params"
)

const (
	// minWidthChange is the width deviation from unity worth processing.
	minWidthChange = 0.05

	// stereoPeakGuard rescales the widened image when it clips toward
	// full scale.
	stereoPeakGuard = 0.95
)

// applyStereoWidth scales the side signal of the first two channels in
// place. Mono buffers and near-unity widths pass through untouched.
func applyStereoWidth(buf *audiobuf.Buffer, s params.Stereo) {
	if math.Abs(s.Width-1) < minWidthChange || buf.Channels() < 2 {
		return
	}
	left := buf.Data[0]
	right := buf.Data[1]

	var peak float64
	for i := range left {
		mid := (float64(left[i]) + float64(right[i])) / 2
		side := (float64(left[i]) - float64(right[i])) / 2 * s.Width
		l, r := mid+side, mid-side
		left[i] = float32(l)
		right[i] = float32(r)
		peak = math.Max(peak, math.Max(math.Abs(l), math.Abs(r)))
	}

	if peak > stereoPeakGuard {
		scale := float32(stereoPeakGuard / peak)
		for i := range left {
			left[i] *= scale
			right[i] *= scale
		}
	}
}
