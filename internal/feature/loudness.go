package feature

import (
	"errors"
	"math"
)

// BS.1770 measurement geometry.
const (
	gatingBlockSeconds = 0.4
	gatingBlockOverlap = 0.75
	absoluteGateLUFS   = -70.0
	relativeGateLU     = 10.0
	loudnessOffsetLKFS = -0.691
)

var errNoLoudBlocks = errors.New("no gating blocks above the absolute gate")

// biquad is a direct form II transposed second-order section.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

// kPreFilter models the head-response high shelf of the K-weighting curve
// (+3.99 dB above ~1681 Hz), derived analytically for the given rate.
func kPreFilter(sampleRate int) biquad {
	const (
		gainDB = 3.999843853973347
		f0     = 1681.974450955533
		q      = 0.7071752369554196
	)
	k := math.Tan(math.Pi * f0 / float64(sampleRate))
	vh := math.Pow(10, gainDB/20)
	vb := math.Pow(vh, 0.4996667741545416)
	a0 := 1 + k/q + k*k
	return biquad{
		b0: (vh + vb*k/q + k*k) / a0,
		b1: 2 * (k*k - vh) / a0,
		b2: (vh - vb*k/q + k*k) / a0,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}
}

// kRLBFilter models the revised low-frequency B curve, a ~38 Hz highpass.
func kRLBFilter(sampleRate int) biquad {
	const (
		f0 = 38.13547087602444
		q  = 0.5003270373238773
	)
	k := math.Tan(math.Pi * f0 / float64(sampleRate))
	a0 := 1 + k/q + k*k
	return biquad{
		b0: 1,
		b1: -2,
		b2: 1,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}
}

// kWeight applies the two-stage K-weighting filter to a copy of mono.
func kWeight(mono []float64, sampleRate int) []float64 {
	pre := kPreFilter(sampleRate)
	rlb := kRLBFilter(sampleRate)
	out := make([]float64, len(mono))
	for i, x := range mono {
		out[i] = rlb.process(pre.process(x))
	}
	return out
}

func blockLoudness(power float64) float64 {
	return loudnessOffsetLKFS + 10*math.Log10(power+energyEpsilon)
}

// loudnessFeatures measures gated integrated loudness plus short-term blocks
// over the mono mix of the signal.
func (e *Extractor) loudnessFeatures(mono []float64, sampleRate int) (Loudness, error) {
	return measureLoudness(mono, sampleRate)
}

// IntegratedLUFS measures the gated integrated loudness of a mono signal.
func IntegratedLUFS(mono []float64, sampleRate int) (float64, error) {
	l, err := measureLoudness(mono, sampleRate)
	if err != nil {
		return 0, err
	}
	return l.IntegratedLUFS, nil
}

func measureLoudness(mono []float64, sampleRate int) (Loudness, error) {
	weighted := kWeight(mono, sampleRate)

	blockLen := int(gatingBlockSeconds * float64(sampleRate))
	hop := int(float64(blockLen) * (1 - gatingBlockOverlap))
	if blockLen <= 0 || hop <= 0 || len(weighted) < blockLen {
		return Loudness{}, errTooShort
	}

	// Mean-square power of each 400 ms block.
	var powers []float64
	for start := 0; start+blockLen <= len(weighted); start += hop {
		var sum float64
		for _, v := range weighted[start : start+blockLen] {
			sum += v * v
		}
		powers = append(powers, sum/float64(blockLen))
	}

	// Absolute gate at -70 LKFS.
	var aboveAbs []float64
	for _, p := range powers {
		if blockLoudness(p) > absoluteGateLUFS {
			aboveAbs = append(aboveAbs, p)
		}
	}
	if len(aboveAbs) == 0 {
		return Loudness{}, errNoLoudBlocks
	}

	// Relative gate 10 LU under the loudness of the surviving blocks.
	relThreshold := blockLoudness(meanOf(aboveAbs)) - relativeGateLU
	var gated []float64
	for _, p := range aboveAbs {
		if blockLoudness(p) > relThreshold {
			gated = append(gated, p)
		}
	}
	if len(gated) == 0 {
		gated = aboveAbs
	}

	l := Loudness{IntegratedLUFS: blockLoudness(meanOf(gated))}

	// Short-term loudness over non-overlapping 3 s windows; only the most
	// recent blocks are kept so streaming merges stay bounded.
	stLen := int(ShortTermBlockSeconds * float64(sampleRate))
	for start := 0; start+stLen <= len(weighted); start += stLen {
		var sum float64
		for _, v := range weighted[start : start+stLen] {
			sum += v * v
		}
		l.ShortTermLUFS = append(l.ShortTermLUFS, blockLoudness(sum/float64(stLen)))
	}
	if len(l.ShortTermLUFS) > maxShortTermBlocks {
		l.ShortTermLUFS = l.ShortTermLUFS[len(l.ShortTermLUFS)-maxShortTermBlocks:]
	}
	if len(l.ShortTermLUFS) > 0 {
		lo, hi := l.ShortTermLUFS[0], l.ShortTermLUFS[0]
		for _, v := range l.ShortTermLUFS[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		l.Range = hi - lo
	}
	return l, nil
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}
