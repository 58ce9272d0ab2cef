package render

import (
	"github.com/sirupsen/logrus"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/params"
)

// applyChain runs every stage of the parameter set over buf in place, in
// the order the parameters prescribe. Near-identity stages skip themselves,
// so an all-default parameter set leaves the audio bit-identical.
func applyChain(buf *audiobuf.Buffer, p params.StyleParameters, log *logrus.Logger) {
	chain := p.Chain
	if len(chain) == 0 {
		chain = params.DefaultChain()
	}
	for _, stage := range chain {
		switch stage {
		case params.StageEQ:
			applyEQ(buf, p.EQ)
		case params.StageCompression:
			applyCompressor(buf, p.Compression)
		case params.StageReverb:
			applyReverb(buf, p.Reverb)
		case params.StageStereo:
			applyStereoWidth(buf, p.Stereo)
		case params.StagePitch:
			applyPitchShift(buf, p.Pitch)
		case params.StageLUFS:
			applyLoudnessNorm(buf, p.Loudness, log)
		case params.StageLimiter:
			applyLimiter(buf, p.Limiter)
		default:
			log.WithField("stage", stage).Warn("unknown chain stage skipped")
		}
	}
}
