package feature

import (
	"math"

	"github.com/mkarjala/go-audio-styler/internal/dsputil"
)

// MergeSets combines per-chunk feature sets into one recording-level Set.
// Each feature uses the rule that preserves its meaning across chunks:
// averaged statistics stay averages, the true peak is the maximum seen,
// and short-term loudness keeps only the most recent blocks. Non-finite
// values never contribute. An empty input yields DefaultSet.
func MergeSets(sets []Set) Set {
	if len(sets) == 0 {
		return DefaultSet()
	}
	if len(sets) == 1 {
		return sets[0]
	}

	out := DefaultSet()
	out.Spectral = Spectral{
		Centroid:  meanField(sets, func(s Set) float64 { return s.Spectral.Centroid }, defaultCentroid),
		Bandwidth: meanField(sets, func(s Set) float64 { return s.Spectral.Bandwidth }, defaultBandwidth),
		Rolloff:   meanField(sets, func(s Set) float64 { return s.Spectral.Rolloff }, defaultRolloff),
	}
	out.Mel = mergeMel(sets)
	out.Loudness = mergeLoudness(sets)
	out.TruePeakDB = mergeTruePeak(sets)
	out.Pitch = mergePitch(sets)
	out.Stereo = mergeStereo(sets)
	out.Reverb = mergeReverb(sets)
	out.Info = mergeInfo(sets)
	return out
}

// meanField averages one scalar over all chunks, skipping non-finite values.
func meanField(sets []Set, get func(Set) float64, def float64) float64 {
	vs := make([]float64, 0, len(sets))
	for _, s := range sets {
		vs = append(vs, get(s))
	}
	if m, n := dsputil.MeanFinite(vs); n > 0 {
		return m
	}
	return def
}

func mergeMel(sets []Set) Mel {
	m := Mel{
		MFCCMean: make([]float64, NumMFCC),
		MFCCStd:  make([]float64, NumMFCC),
		Mean:     meanField(sets, func(s Set) float64 { return s.Mel.Mean }, 0),
		Std:      meanField(sets, func(s Set) float64 { return s.Mel.Std }, 0),
	}
	for c := range NumMFCC {
		m.MFCCMean[c] = meanField(sets, func(s Set) float64 {
			if c < len(s.Mel.MFCCMean) {
				return s.Mel.MFCCMean[c]
			}
			return math.NaN()
		}, 0)
		m.MFCCStd[c] = meanField(sets, func(s Set) float64 {
			if c < len(s.Mel.MFCCStd) {
				return s.Mel.MFCCStd[c]
			}
			return math.NaN()
		}, 0)
	}
	return m
}

func mergeLoudness(sets []Set) Loudness {
	l := Loudness{
		IntegratedLUFS: meanField(sets, func(s Set) float64 { return s.Loudness.IntegratedLUFS }, defaultLUFS),
	}
	for _, s := range sets {
		for _, v := range s.Loudness.ShortTermLUFS {
			if dsputil.IsFinite(v) {
				l.ShortTermLUFS = append(l.ShortTermLUFS, v)
			}
		}
	}
	if len(l.ShortTermLUFS) > MaxMergedShortTerm {
		l.ShortTermLUFS = l.ShortTermLUFS[len(l.ShortTermLUFS)-MaxMergedShortTerm:]
	}
	if len(l.ShortTermLUFS) > 0 {
		lo, hi := l.ShortTermLUFS[0], l.ShortTermLUFS[0]
		for _, v := range l.ShortTermLUFS[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		l.Range = hi - lo
	}
	return l
}

func mergeTruePeak(sets []Set) float64 {
	peak := dsputil.SilenceFloorDB
	for _, s := range sets {
		if dsputil.IsFinite(s.TruePeakDB) && s.TruePeakDB > peak {
			peak = s.TruePeakDB
		}
	}
	return peak
}

// mergePitch averages only the chunks where pitch was actually detected;
// the voiced ratio averages over everything so silence still dilutes it.
func mergePitch(sets []Set) Pitch {
	var voiced []Set
	for _, s := range sets {
		if s.Pitch.VoicedRatio > 0 && dsputil.IsFinite(s.Pitch.MeanF0) {
			voiced = append(voiced, s)
		}
	}
	p := Pitch{
		VoicedRatio: meanField(sets, func(s Set) float64 { return s.Pitch.VoicedRatio }, 0),
	}
	if len(voiced) > 0 {
		p.MeanF0 = meanField(voiced, func(s Set) float64 { return s.Pitch.MeanF0 }, 0)
		p.StdF0 = meanField(voiced, func(s Set) float64 { return s.Pitch.StdF0 }, 0)
	}
	return p
}

func mergeStereo(sets []Set) Stereo {
	st := Stereo{
		Width:       meanField(sets, func(s Set) float64 { return s.Stereo.Width }, 0),
		Correlation: meanField(sets, func(s Set) float64 { return s.Stereo.Correlation }, 1),
		MidEnergy:   meanField(sets, func(s Set) float64 { return s.Stereo.MidEnergy }, 1),
		SideEnergy:  meanField(sets, func(s Set) float64 { return s.Stereo.SideEnergy }, 0),
	}
	for _, s := range sets {
		if s.Stereo.IsStereo {
			st.IsStereo = true
			break
		}
	}
	return st
}

func mergeReverb(sets []Set) Reverb {
	r := Reverb{
		RT60Estimate: meanField(sets, func(s Set) float64 { return s.Reverb.RT60Estimate }, defaultRT60),
		DecayRate:    meanField(sets, func(s Set) float64 { return s.Reverb.DecayRate }, 0),
	}
	r.Presence = r.RT60Estimate > reverbPresenceRT60
	return r
}

func mergeInfo(sets []Set) AudioInfo {
	info := AudioInfo{
		SampleRate: sets[0].Info.SampleRate,
		Channels:   sets[0].Info.Channels,
	}
	for _, s := range sets {
		info.Duration += s.Info.Duration
		info.Samples += s.Info.Samples
		if s.Info.Channels > info.Channels {
			info.Channels = s.Info.Channels
		}
	}
	return info
}
