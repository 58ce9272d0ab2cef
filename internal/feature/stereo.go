package feature

import (
	"gonum.org/v1/gonum/stat"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/dsputil"
)

// stereoFeatures measures the mid/side image of the first two channels.
// Mono input reports the default collapsed image.
func (e *Extractor) stereoFeatures(buf *audiobuf.Buffer) (Stereo, error) {
	if buf.Channels() < 2 || buf.Frames() == 0 {
		return defaultStereo(), nil
	}

	left := buf.Channel64(0)
	right := buf.Channel64(1)
	mid := make([]float64, len(left))
	side := make([]float64, len(left))
	for i := range left {
		mid[i] = (left[i] + right[i]) / 2
		side[i] = (left[i] - right[i]) / 2
	}

	n := float64(len(mid))
	midEnergy := e.backend.Dot(mid, mid) / n
	sideEnergy := e.backend.Dot(side, side) / n

	s := Stereo{
		IsStereo:    true,
		Width:       sideEnergy / (midEnergy + energyEpsilon),
		Correlation: stat.Correlation(left, right, nil),
		MidEnergy:   midEnergy,
		SideEnergy:  sideEnergy,
	}
	// Identical channels have undefined correlation; report full coherence.
	if !dsputil.IsFinite(s.Correlation) {
		s.Correlation = 1
	}
	return s, nil
}
