package params

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/mkarjala/go-audio-styler/internal/dsputil"
	"github.com/mkarjala/go-audio-styler/internal/feature"
)

// Inversion bounds and thresholds.
const (
	maxEQBands       = 6
	minMeaningfulEQ  = 0.5 // dB; smaller corrections are dropped
	eqGainLimitDB    = 12.0
	lufsTargetMin    = -30.0
	lufsTargetMax    = -6.0
	limiterCeilMin   = -3.0
	limiterCeilMax   = -0.1
	reverbMixMax     = 0.5
	widthMin         = 0.5
	widthMax         = 2.0
	pitchSemitoneMax = 12.0
	compRatioMax     = 4.0

	ratioEpsilon = 1e-6
)

// eqLadderBand is one slot of the fixed analysis ladder.
type eqLadderBand struct {
	freqHz   float64
	bandType string
}

// The ladder spans the audible spectrum; the edge slots are shaped as
// pass filters and never receive inverted gain.
var eqLadder = []eqLadderBand{
	{60, BandHighpass},
	{200, BandPeaking},
	{500, BandPeaking},
	{1000, BandPeaking},
	{2000, BandPeaking},
	{4000, BandPeaking},
	{8000, BandPeaking},
	{16000, BandLowpass},
}

// Inverter derives StyleParameters from feature sets. Inversion is
// deterministic unless a jitter source is installed.
type Inverter struct {
	log *logrus.Logger

	// jitter, when non-nil, perturbs EQ gains and Q values slightly to
	// avoid overfitting a single analysis. Same seed, same parameters.
	jitter *rand.Rand
}

// NewInverter returns a deterministic Inverter.
func NewInverter(log *logrus.Logger) *Inverter {
	if log == nil {
		log = logrus.New()
	}
	return &Inverter{log: log}
}

// SetJitterSeed installs a seeded EQ perturbation source.
func (inv *Inverter) SetJitterSeed(seed int64) {
	inv.jitter = rand.New(rand.NewSource(seed))
}

// Invert estimates the parameter set that moves tgt toward ref.
func (inv *Inverter) Invert(ref, tgt feature.Set, mode Mode) StyleParameters {
	p := StyleParameters{
		EQ:          inv.eqBands(ref, tgt),
		Compression: compressionParams(ref, tgt),
		Reverb:      reverbParams(ref, tgt),
		Stereo:      stereoParams(ref, tgt),
		Pitch:       pitchParams(ref, tgt, mode),
		Loudness:    loudnessParams(ref),
		Limiter:     limiterParams(ref, tgt),
		Mode:        mode,
		Confidence:  confidence(ref, tgt),
		Chain:       DefaultChain(),
	}
	inv.log.WithFields(logrus.Fields{
		"mode":       mode,
		"eq_bands":   len(p.EQ),
		"confidence": p.Confidence,
	}).Info("parameter inversion complete")
	return p
}

// eqBands keys the ladder on the centroid ratio between reference and
// target: a brighter reference boosts highs and trims lows, a darker one
// does the reverse. Only corrections above the meaningful threshold are
// emitted, at most maxEQBands of them.
func (inv *Inverter) eqBands(ref, tgt feature.Set) []EQBand {
	centroidRatio := ref.Spectral.Centroid / (tgt.Spectral.Centroid + ratioEpsilon)

	var bands []EQBand
	for _, slot := range eqLadder {
		if slot.bandType != BandPeaking {
			continue
		}
		high := slot.freqHz > 1000

		var gain float64
		switch {
		case centroidRatio > 1.1: // reference is brighter
			if high {
				gain = math.Min(6.0, (centroidRatio-1)*12)
			} else {
				gain = math.Max(-3.0, -(centroidRatio-1)*6)
			}
		case centroidRatio < 0.9: // reference is darker
			if high {
				gain = math.Max(-6.0, -(1-centroidRatio)*12)
			} else {
				gain = math.Min(3.0, (1-centroidRatio)*6)
			}
		}

		q := 1.0
		if inv.jitter != nil {
			gain += inv.jitter.NormFloat64() * 0.5
			q += inv.jitter.Float64()*0.6 - 0.3
		}
		gain = dsputil.Clamp(gain, -eqGainLimitDB, eqGainLimitDB)

		if math.Abs(gain) > minMeaningfulEQ {
			bands = append(bands, EQBand{
				Type:   BandPeaking,
				FreqHz: slot.freqHz,
				Q:      q,
				GainDB: gain,
			})
		}
	}
	if len(bands) > maxEQBands {
		bands = bands[:maxEQBands]
	}
	return bands
}

// loudnessParams targets the reference loudness, clamped to a sane range.
func loudnessParams(ref feature.Set) Loudness {
	return Loudness{
		TargetLUFS: dsputil.Clamp(ref.Loudness.IntegratedLUFS, lufsTargetMin, lufsTargetMax),
	}
}

// limiterParams keeps at least 0.1 dB of true-peak headroom and reacts
// faster when the peak levels differ a lot.
func limiterParams(ref, tgt feature.Set) Limiter {
	ceiling := math.Min(ref.TruePeakDB, limiterCeilMax)
	ceiling = dsputil.Clamp(ceiling, limiterCeilMin, limiterCeilMax)

	l := Limiter{CeilingDB: ceiling, LookaheadMs: 1.0, ReleaseMs: 100.0}
	if math.Abs(ref.TruePeakDB-tgt.TruePeakDB) > 3.0 {
		l.LookaheadMs = 5.0
		l.ReleaseMs = 50.0
	}
	return l
}

// reverbParams adds room only when the reference audibly has one and the
// target is at least 0.2 s drier.
func reverbParams(ref, tgt feature.Set) Reverb {
	rt60Diff := ref.Reverb.RT60Estimate - tgt.Reverb.RT60Estimate

	var r Reverb
	if ref.Reverb.Presence && rt60Diff > 0.2 {
		r.Mix = math.Min(0.3, rt60Diff*0.5)
		if ref.Reverb.RT60Estimate > 1.5 {
			r.IRType = IRHall
			r.PreDelayMs = 20.0
		} else {
			r.IRType = IRRoom
			r.PreDelayMs = 10.0
		}
	} else {
		r.Mix = math.Max(0, rt60Diff*0.2)
		r.IRType = IRRoom
		r.PreDelayMs = 10.0
	}
	r.Mix = dsputil.Clamp(r.Mix, 0, reverbMixMax)
	return r
}

// stereoParams matches the reference width when both sides are stereo.
func stereoParams(ref, tgt feature.Set) Stereo {
	if !ref.Stereo.IsStereo || !tgt.Stereo.IsStereo {
		return Stereo{Width: 1}
	}
	ratio := ref.Stereo.Width / (tgt.Stereo.Width + ratioEpsilon)
	return Stereo{Width: dsputil.Clamp(ratio, widthMin, widthMax)}
}

// pitchParams corrects pitch only for paired material where both sides have a
// detected fundamental; style transfer between unrelated recordings must not
// transpose.
func pitchParams(ref, tgt feature.Set, mode Mode) Pitch {
	if mode != ModePaired || ref.Pitch.MeanF0 <= 0 || tgt.Pitch.MeanF0 <= 0 {
		return Pitch{}
	}
	semitones := 12 * math.Log2(ref.Pitch.MeanF0/tgt.Pitch.MeanF0)
	semitones = dsputil.Clamp(semitones, -pitchSemitoneMax, pitchSemitoneMax)
	if math.Abs(semitones) <= 0.1 {
		return Pitch{}
	}
	return Pitch{Semitones: semitones}
}

// compressionParams engages when the reference dynamic range is under 70%
// of the target's, with the ratio scaled to the range mismatch.
func compressionParams(ref, tgt feature.Set) Compressor {
	refRange := ref.Loudness.Range
	tgtRange := tgt.Loudness.Range

	if refRange >= tgtRange*0.7 {
		return Compressor{}
	}
	return Compressor{
		Enabled:     true,
		ThresholdDB: -20.0,
		Ratio:       math.Min(compRatioMax, tgtRange/(refRange+ratioEpsilon)),
		AttackMs:    10.0,
		ReleaseMs:   100.0,
	}
}

// confidence scores the inversion from the evidence available: longer
// material and spectrally similar recordings invert more reliably.
func confidence(ref, tgt feature.Set) float64 {
	var factors []float64

	refDur := ref.Info.Duration
	tgtDur := tgt.Info.Duration
	switch {
	case refDur > 10 && tgtDur > 10:
		factors = append(factors, 0.9)
	case refDur > 5 && tgtDur > 5:
		factors = append(factors, 0.7)
	default:
		factors = append(factors, 0.5)
	}

	if math.Abs(ref.Spectral.Centroid-tgt.Spectral.Centroid) < 500 {
		factors = append(factors, 0.8)
	} else {
		factors = append(factors, 0.6)
	}

	var sum float64
	for _, f := range factors {
		sum += f
	}
	return sum / float64(len(factors))
}
