package feature

import (
	"math"

	"github.com/mkarjala/go-audio-styler/internal/dsputil"
)

// HTK mel scale constants.
const (
	melScale  = 2595.0
	melBreakF = 700.0
)

func hzToMel(hz float64) float64 {
	return melScale * math.Log10(1+hz/melBreakF)
}

func melToHz(mel float64) float64 {
	return melBreakF * (math.Pow(10, mel/melScale) - 1)
}

// melFilterbank builds numBands triangular filters over the positive FFT
// bins, spanning 0..sampleRate/2 on the mel scale. The filterbank is computed
// once per Extractor and reused across chunks.
func melFilterbank(sampleRate, window, numBands int) [][]float64 {
	bins := window/2 + 1
	maxMel := hzToMel(float64(sampleRate) / 2)

	// numBands+2 edge points define numBands triangles.
	edges := make([]float64, numBands+2)
	for i := range edges {
		hz := melToHz(maxMel * float64(i) / float64(numBands+1))
		edges[i] = hz * float64(window) / float64(sampleRate)
	}

	filters := make([][]float64, numBands)
	for b := range filters {
		filters[b] = make([]float64, bins)
		lo, mid, hi := edges[b], edges[b+1], edges[b+2]
		for i := range bins {
			f := float64(i)
			switch {
			case f > lo && f <= mid && mid > lo:
				filters[b][i] = (f - lo) / (mid - lo)
			case f > mid && f < hi && hi > mid:
				filters[b][i] = (hi - f) / (hi - mid)
			}
		}
	}
	return filters
}

// MelPower returns the mel-band power spectrogram, one row of NumMelBands
// powers per STFT frame.
func (e *Extractor) MelPower(mono []float64, sampleRate int) ([][]float64, error) {
	mags := stft(mono, stftWindow, stftHop)
	if len(mags) == 0 {
		return nil, errTooShort
	}
	filters := e.melFilters(sampleRate)

	rows := make([][]float64, len(mags))
	for t, mag := range mags {
		row := make([]float64, NumMelBands)
		for b, filt := range filters {
			var p float64
			for i, m := range mag {
				if filt[i] != 0 {
					p += filt[i] * m * m
				}
			}
			row[b] = p
		}
		rows[t] = row
	}
	return rows, nil
}

// melFeatures computes log-mel statistics and the first NumMFCC cepstral
// coefficients' per-coefficient mean and standard deviation across time.
func (e *Extractor) melFeatures(mono []float64, sampleRate int) (Mel, error) {
	melDB, err := e.MelPower(mono, sampleRate)
	if err != nil {
		return Mel{}, err
	}

	// Log power referenced to the loudest bin, like power_to_db(ref=max).
	maxPower := energyEpsilon
	for _, row := range melDB {
		for _, p := range row {
			if p > maxPower {
				maxPower = p
			}
		}
	}
	for _, row := range melDB {
		for b, p := range row {
			row[b] = dsputil.PowerToDB(p / maxPower)
		}
	}

	// DCT-II over mel bands gives the cepstrum; keep the first NumMFCC.
	mfcc := make([][]float64, len(melDB))
	for t, row := range melDB {
		mfcc[t] = dctII(row, NumMFCC)
	}

	m := Mel{
		MFCCMean: make([]float64, NumMFCC),
		MFCCStd:  make([]float64, NumMFCC),
	}
	frames := float64(len(mfcc))
	for c := range NumMFCC {
		var sum float64
		for t := range mfcc {
			sum += mfcc[t][c]
		}
		mean := sum / frames
		var variance float64
		for t := range mfcc {
			d := mfcc[t][c] - mean
			variance += d * d
		}
		m.MFCCMean[c] = mean
		m.MFCCStd[c] = math.Sqrt(variance / frames)
	}

	var sum float64
	count := float64(len(melDB) * NumMelBands)
	for _, row := range melDB {
		sum += e.backend.Sum(row)
	}
	m.Mean = sum / count
	var variance float64
	for _, row := range melDB {
		for _, v := range row {
			d := v - m.Mean
			variance += d * d
		}
	}
	m.Std = math.Sqrt(variance / count)
	return m, nil
}

// melFilters returns the cached filterbank for the given rate.
func (e *Extractor) melFilters(sampleRate int) [][]float64 {
	e.melMu.Lock()
	defer e.melMu.Unlock()
	if e.melCache == nil {
		e.melCache = make(map[int][][]float64)
	}
	if fb, ok := e.melCache[sampleRate]; ok {
		return fb
	}
	fb := melFilterbank(sampleRate, stftWindow, NumMelBands)
	e.melCache[sampleRate] = fb
	return fb
}

// dctII computes the first n coefficients of an orthonormal DCT-II.
func dctII(in []float64, n int) []float64 {
	out := make([]float64, n)
	m := float64(len(in))
	scale0 := math.Sqrt(1 / m)
	scale := math.Sqrt(2 / m)
	for k := range n {
		var sum float64
		for i, v := range in {
			sum += v * math.Cos(math.Pi*float64(k)*(float64(i)+0.5)/m)
		}
		if k == 0 {
			out[k] = sum * scale0
		} else {
			out[k] = sum * scale
		}
	}
	return out
}
