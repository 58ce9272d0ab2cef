package feature

import (
	"math"

	"github.com/mkarjala/go-audio-styler/internal/dsputil"
)

// Energy-decay analysis geometry; shares the STFT frame grid.
const (
	decayFrame = 2048
	decayHop   = 512

	// decayTargetDB is the drop defining RT60.
	decayTargetDB = 60.0
)

// reverbFeatures estimates RT60 from the frame-energy decay after the
// loudest frame. This is a rough single-slope estimate, good enough to
// decide whether a room needs to be matched and how long its tail is.
func (e *Extractor) reverbFeatures(mono []float64, sampleRate int) (Reverb, error) {
	if len(mono) < decayFrame {
		return Reverb{}, errTooShort
	}

	var energies []float64
	for start := 0; start+decayFrame <= len(mono); start += decayHop {
		seg := mono[start : start+decayFrame]
		energies = append(energies, e.backend.Dot(seg, seg))
	}

	peakIdx := 0
	for i, v := range energies {
		if v > energies[peakIdx] {
			peakIdx = i
		}
	}
	// A peak at the very end leaves no decay to observe.
	if peakIdx >= len(energies)-2 {
		return defaultReverb(), nil
	}

	peakDB := dsputil.PowerToDB(energies[peakIdx] + energyEpsilon)
	frameDur := float64(decayHop) / float64(sampleRate)

	var rt60 float64
	reached := false
	for i := peakIdx + 1; i < len(energies); i++ {
		if dsputil.PowerToDB(energies[i]+energyEpsilon)-peakDB <= -decayTargetDB {
			rt60 = float64(i-peakIdx) * frameDur
			reached = true
			break
		}
	}

	lastDB := dsputil.PowerToDB(energies[len(energies)-1] + energyEpsilon)
	elapsed := float64(len(energies)-1-peakIdx) * frameDur
	dropDB := peakDB - lastDB
	if !reached {
		// Extrapolate the observed slope out to the full 60 dB drop.
		if dropDB <= energyEpsilon || elapsed <= 0 {
			return defaultReverb(), nil
		}
		rt60 = decayTargetDB * elapsed / dropDB
	}

	rt60 = dsputil.Clamp(rt60, rt60Min, rt60Max)
	r := Reverb{
		RT60Estimate: rt60,
		Presence:     rt60 > reverbPresenceRT60,
	}
	if elapsed > 0 {
		r.DecayRate = dropDB / elapsed
	}
	if math.IsNaN(r.DecayRate) || math.IsInf(r.DecayRate, 0) {
		r.DecayRate = 0
	}
	return r, nil
}
