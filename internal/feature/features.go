// Package feature measures the acoustic feature schema used for style
// inversion: spectral shape, mel/MFCC statistics, BS.1770 loudness, true
// peak, YIN pitch, stereo image and a simplified reverb estimate.
//
// Every sub-feature is always present; when a measurement fails it is
// replaced by its documented default so callers never special-case missing
// values.
package feature

// Fixed analysis parameters.
const (
	// STFT geometry shared by the spectral and mel analyses.
	stftWindow = 2048
	stftHop    = stftWindow / 4

	// NumMelBands is the mel filterbank resolution.
	NumMelBands = 128

	// NumMFCC is the number of cepstral coefficients reported.
	NumMFCC = 13

	// ShortTermBlockSeconds is the short-term LUFS block length.
	ShortTermBlockSeconds = 3.0

	// maxShortTermBlocks bounds the short-term LUFS list kept for one buffer.
	maxShortTermBlocks = 10

	// MaxMergedShortTerm bounds the short-term LUFS list after a streaming
	// merge; the most recent blocks win.
	MaxMergedShortTerm = 20

	// rolloffFraction is the cumulative-magnitude fraction defining spectral
	// rolloff.
	rolloffFraction = 0.85

	// Pitch search range: C2..C7.
	pitchMinHz = 65.406
	pitchMaxHz = 2093.005

	// RT60 clamp range in seconds.
	rt60Min = 0.1
	rt60Max = 3.0

	// reverbPresenceRT60 is the RT60 above which reverb counts as present.
	reverbPresenceRT60 = 0.8

	energyEpsilon = 1e-10
)

// Spectral holds STFT-derived shape statistics in Hz.
type Spectral struct {
	Centroid  float64 `json:"centroid"`
	Bandwidth float64 `json:"bandwidth"`
	Rolloff   float64 `json:"rolloff"`
}

// Mel holds mel-spectrum and MFCC statistics.
type Mel struct {
	MFCCMean []float64 `json:"mfcc_mean"` // length NumMFCC
	MFCCStd  []float64 `json:"mfcc_std"`  // length NumMFCC
	Mean     float64   `json:"mean"`      // mean log-mel energy in dB
	Std      float64   `json:"std"`
}

// Loudness holds BS.1770-style loudness measurements.
type Loudness struct {
	IntegratedLUFS float64   `json:"integrated_lufs"`
	ShortTermLUFS  []float64 `json:"short_term_lufs"`
	Range          float64   `json:"range"` // max - min of short-term blocks
}

// Pitch holds YIN fundamental-frequency statistics.
type Pitch struct {
	MeanF0      float64 `json:"mean_f0"`
	StdF0       float64 `json:"std_f0"`
	VoicedRatio float64 `json:"voiced_ratio"`
}

// Stereo holds the mid/side image measurements.
type Stereo struct {
	IsStereo    bool    `json:"is_stereo"`
	Width       float64 `json:"width"` // side energy / mid energy
	Correlation float64 `json:"correlation"`
	MidEnergy   float64 `json:"mid_energy"`
	SideEnergy  float64 `json:"side_energy"`
}

// Reverb holds the simplified energy-decay reverb estimate.
type Reverb struct {
	RT60Estimate float64 `json:"rt60_estimate"`
	DecayRate    float64 `json:"decay_rate"`
	Presence     bool    `json:"presence"`
}

// AudioInfo describes the analyzed signal.
type AudioInfo struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Duration   float64 `json:"duration_seconds"`
	Samples    int     `json:"samples"`
}

// Set is the complete feature schema for one recording.
type Set struct {
	Spectral   Spectral  `json:"spectral"`
	Mel        Mel       `json:"mel"`
	Loudness   Loudness  `json:"loudness"`
	TruePeakDB float64   `json:"true_peak_db"`
	Pitch      Pitch     `json:"pitch"`
	Stereo     Stereo    `json:"stereo"`
	Reverb     Reverb    `json:"reverb"`
	Info       AudioInfo `json:"audio_info"`
}

// Default values substituted when an individual measurement fails.
const (
	defaultCentroid   = 1000.0
	defaultBandwidth  = 500.0
	defaultRolloff    = 2000.0
	defaultLUFS       = -23.0
	defaultTruePeakDB = -60.0
	defaultRT60       = 0.5
)

// DefaultSet returns a Set populated entirely with the documented defaults.
func DefaultSet() Set {
	return Set{
		Spectral:   defaultSpectral(),
		Mel:        defaultMel(),
		Loudness:   defaultLoudness(),
		TruePeakDB: defaultTruePeakDB,
		Pitch:      Pitch{},
		Stereo:     defaultStereo(),
		Reverb:     defaultReverb(),
	}
}

func defaultSpectral() Spectral {
	return Spectral{Centroid: defaultCentroid, Bandwidth: defaultBandwidth, Rolloff: defaultRolloff}
}

func defaultMel() Mel {
	return Mel{
		MFCCMean: make([]float64, NumMFCC),
		MFCCStd:  make([]float64, NumMFCC),
	}
}

func defaultLoudness() Loudness {
	return Loudness{IntegratedLUFS: defaultLUFS, ShortTermLUFS: []float64{}}
}

func defaultStereo() Stereo {
	// Mono image: no width, perfectly correlated.
	return Stereo{Width: 0, Correlation: 1, MidEnergy: 1}
}

func defaultReverb() Reverb {
	return Reverb{RT60Estimate: defaultRT60}
}
