package feature

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/mkarjala/go-audio-styler/internal/dsputil"
)

var errTooShort = errors.New("signal shorter than one analysis frame")

// stft computes magnitude spectra of mono over Hann-windowed frames.
// The result is frames x (window/2 + 1) bins.
func stft(mono []float64, window, hop int) [][]float64 {
	if len(mono) < window {
		return nil
	}
	fft := fourier.NewFFT(window)
	win := dsputil.Hann(window)
	numFrames := (len(mono)-window)/hop + 1

	mags := make([][]float64, 0, numFrames)
	frame := make([]float64, window)
	for off := 0; off+window <= len(mono); off += hop {
		for i := range frame {
			frame[i] = mono[off+i] * win[i]
		}
		coeffs := fft.Coefficients(nil, frame)
		mag := make([]float64, len(coeffs))
		for i, c := range coeffs {
			mag[i] = cmplx.Abs(c)
		}
		mags = append(mags, mag)
	}
	return mags
}

// STFTMagnitudes computes magnitude spectra with the standard analysis
// geometry, for callers comparing spectra across renders.
func STFTMagnitudes(mono []float64) [][]float64 {
	return stft(mono, stftWindow, stftHop)
}

// fftFrequencies returns the centre frequency of each positive-frequency bin.
func fftFrequencies(sampleRate, window int) []float64 {
	bins := window/2 + 1
	freqs := make([]float64, bins)
	for i := range freqs {
		freqs[i] = float64(i) * float64(sampleRate) / float64(window)
	}
	return freqs
}

// spectralFeatures measures centroid, bandwidth and rolloff as the mean of
// per-frame values over 2048-sample windows with a quarter-window hop.
func (e *Extractor) spectralFeatures(mono []float64, sampleRate int) (Spectral, error) {
	mags := stft(mono, stftWindow, stftHop)
	if len(mags) == 0 {
		return Spectral{}, errTooShort
	}
	freqs := fftFrequencies(sampleRate, stftWindow)

	var centroidSum, bandwidthSum, rolloffSum float64
	for _, mag := range mags {
		total := e.backend.Sum(mag)
		if total <= energyEpsilon {
			continue
		}
		centroid := e.backend.Dot(mag, freqs) / total

		var variance float64
		for i, m := range mag {
			d := freqs[i] - centroid
			variance += m * d * d
		}
		bandwidth := math.Sqrt(variance / total)

		threshold := rolloffFraction * total
		var cum float64
		rolloff := freqs[len(freqs)-1]
		for i, m := range mag {
			cum += m
			if cum >= threshold {
				rolloff = freqs[i]
				break
			}
		}

		centroidSum += centroid
		bandwidthSum += bandwidth
		rolloffSum += rolloff
	}

	n := float64(len(mags))
	return Spectral{
		Centroid:  centroidSum / n,
		Bandwidth: bandwidthSum / n,
		Rolloff:   rolloffSum / n,
	}, nil
}
