package render

import (
	"math"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/dsputil"
	"github.com/mkarjala/go-audio-styler/internal/feature"
)

// Metric bounds.
const (
	// metricsMaxSeconds caps the signal length compared, keeping metric cost
	// flat for long renders.
	metricsMaxSeconds = 30

	// artifactThreshold is the absolute sample level counted as a likely
	// clipping artifact.
	artifactThreshold = 0.99
)

// QualityMetrics summarizes how far a render moved from its source and
// whether the result is trustworthy.
type QualityMetrics struct {
	STFTDistance  float64 `json:"stft_dist"`
	MelDistance   float64 `json:"mel_dist"`
	LUFSError     float64 `json:"lufs_err"`
	TruePeakDB    float64 `json:"tp_db"`
	ArtifactsRate float64 `json:"artifacts_rate"`
	Degraded      bool    `json:"degraded"`
	Fallback      bool    `json:"fallback"`
}

// computeMetrics compares the processed buffer against its source over at
// most metricsMaxSeconds. Individual measurements that fail leave their
// zero value rather than aborting the render.
func computeMetrics(analyzer *feature.Extractor, original, processed *audiobuf.Buffer) QualityMetrics {
	var m QualityMetrics

	frames := min(original.Frames(), processed.Frames())
	maxFrames := metricsMaxSeconds * original.SampleRate
	if frames > maxFrames {
		frames = maxFrames
	}
	if frames == 0 {
		m.TruePeakDB = dsputil.SilenceFloorDB
		return m
	}
	orig, err := original.Slice(0, frames)
	if err != nil {
		return m
	}
	proc, err := processed.Slice(0, frames)
	if err != nil {
		return m
	}

	origCh := orig.Channel64(0)
	procCh := proc.Channel64(0)
	m.STFTDistance = frameDistance(feature.STFTMagnitudes(origCh), feature.STFTMagnitudes(procCh))

	origMel, errA := analyzer.MelPower(origCh, orig.SampleRate)
	procMel, errB := analyzer.MelPower(procCh, proc.SampleRate)
	if errA == nil && errB == nil {
		m.MelDistance = frameDistance(origMel, procMel)
	}

	origLUFS, errA := feature.IntegratedLUFS(orig.Mono(), orig.SampleRate)
	procLUFS, errB := feature.IntegratedLUFS(proc.Mono(), proc.SampleRate)
	if errA == nil && errB == nil {
		m.LUFSError = math.Abs(origLUFS - procLUFS)
	}

	m.TruePeakDB = dsputil.AmpToDB(float64(proc.Peak()))

	var over, total int
	for _, ch := range proc.Data {
		for _, v := range ch {
			if math.Abs(float64(v)) > artifactThreshold {
				over++
			}
		}
		total += len(ch)
	}
	if total > 0 {
		m.ArtifactsRate = float64(over) / float64(total)
	}
	return m
}

// frameDistance is the mean squared difference over the common extent of
// two spectrogram-like frame sets.
func frameDistance(a, b [][]float64) float64 {
	frames := min(len(a), len(b))
	if frames == 0 {
		return 0
	}
	var sum float64
	var count int
	for t := range frames {
		bins := min(len(a[t]), len(b[t]))
		for i := range bins {
			d := a[t][i] - b[t][i]
			sum += d * d
		}
		count += bins
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
