package render

import (
	"math"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/params"
)

// minAudibleGainDB is the EQ gain below which a band is not worth running.
const minAudibleGainDB = 0.1

// passFilterQ is the Q used for the highpass/lowpass edge bands.
const passFilterQ = math.Sqrt2 / 2

// biquad is a direct form II transposed section with float64 state.
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

// peakingCoeffs returns an RBJ peaking filter.
func peakingCoeffs(freqHz, q, gainDB float64, sampleRate int) biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freqHz / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha/a
	return biquad{
		b0: (1 + alpha*a) / a0,
		b1: -2 * cosW0 / a0,
		b2: (1 - alpha*a) / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha/a) / a0,
	}
}

// highpassCoeffs returns an RBJ second-order highpass.
func highpassCoeffs(freqHz float64, sampleRate int) biquad {
	w0 := 2 * math.Pi * freqHz / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * passFilterQ)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosW0) / 2 / a0,
		b1: -(1 + cosW0) / a0,
		b2: (1 + cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

// lowpassCoeffs returns an RBJ second-order lowpass.
func lowpassCoeffs(freqHz float64, sampleRate int) biquad {
	w0 := 2 * math.Pi * freqHz / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * passFilterQ)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosW0) / 2 / a0,
		b1: (1 - cosW0) / a0,
		b2: (1 - cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

// eqFilters builds one biquad per meaningful band. Peaking bands under the
// audible gain threshold are skipped.
func eqFilters(bands []params.EQBand, sampleRate int) []biquad {
	var filters []biquad
	for _, band := range bands {
		switch band.Type {
		case params.BandPeaking:
			if math.Abs(band.GainDB) < minAudibleGainDB {
				continue
			}
			q := band.Q
			if q <= 0 {
				q = 1
			}
			filters = append(filters, peakingCoeffs(band.FreqHz, q, band.GainDB, sampleRate))
		case params.BandHighpass:
			filters = append(filters, highpassCoeffs(band.FreqHz, sampleRate))
		case params.BandLowpass:
			filters = append(filters, lowpassCoeffs(band.FreqHz, sampleRate))
		}
	}
	return filters
}

// applyEQ runs the band ladder over every channel in place. Filter state is
// per channel, so channels never smear into each other.
func applyEQ(buf *audiobuf.Buffer, bands []params.EQBand) {
	prototype := eqFilters(bands, buf.SampleRate)
	if len(prototype) == 0 {
		return
	}
	for _, ch := range buf.Data {
		filters := make([]biquad, len(prototype))
		copy(filters, prototype)
		for i, v := range ch {
			x := float64(v)
			for f := range filters {
				x = filters[f].process(x)
			}
			ch[i] = float32(x)
		}
	}
}
