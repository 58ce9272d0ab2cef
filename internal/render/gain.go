package render

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/dsputil"
	"github.com/mkarjala/go-audio-styler/internal/feature"
	"github.com/mkarjala/go-audio-styler/internal/params"
)

// Loudness normalization bounds.
const (
	maxNormGainDB = 20.0
	minNormGainDB = 0.1
)

// applyLoudnessNorm measures the buffer's integrated loudness and applies
// the gain that moves it to the target, clamped to +-20 dB. Material too
// short or too quiet to meter passes through unchanged.
func applyLoudnessNorm(buf *audiobuf.Buffer, l params.Loudness, log *logrus.Logger) {
	// A zero target means "no target"; inverted targets are always negative.
	if l.TargetLUFS == 0 {
		return
	}
	current, err := feature.IntegratedLUFS(buf.Mono(), buf.SampleRate)
	if err != nil {
		log.WithError(err).Warn("loudness unmeterable, skipping normalization")
		return
	}
	gainDB := dsputil.Clamp(l.TargetLUFS-current, -maxNormGainDB, maxNormGainDB)
	if math.Abs(gainDB) < minNormGainDB {
		return
	}
	gain := float32(dsputil.DBToAmp(gainDB))
	for _, ch := range buf.Data {
		for i := range ch {
			ch[i] *= gain
		}
	}
	log.WithField("gain_db", gainDB).Debug("loudness normalized")
}
