// Package params estimates style-transfer parameters from the feature
// difference between a reference recording and the material to be processed.
package params

// Mode selects how aggressively parameters may act.
type Mode string

const (
	// ModePaired marks reference and target as renditions of the same
	// material, which permits pitch correction.
	ModePaired Mode = "paired"

	// ModeStyle transfers the overall sonic character of an unrelated
	// reference; pitch is left alone.
	ModeStyle Mode = "style"
)

// EQ band shapes.
const (
	BandPeaking  = "peaking"
	BandHighpass = "highpass"
	BandLowpass  = "lowpass"
)

// EQBand is one filter of the equalizer ladder.
type EQBand struct {
	Type   string  `json:"type"`
	FreqHz float64 `json:"f_hz"`
	Q      float64 `json:"q"`
	GainDB float64 `json:"gain_db"`
}

// Compressor holds single-band downward compression settings.
type Compressor struct {
	Enabled     bool    `json:"enabled"`
	ThresholdDB float64 `json:"threshold_db"`
	Ratio       float64 `json:"ratio"`
	AttackMs    float64 `json:"attack_ms"`
	ReleaseMs   float64 `json:"release_ms"`
}

// Limiter holds the true-peak limiter settings.
type Limiter struct {
	CeilingDB   float64 `json:"tp_db"`
	LookaheadMs float64 `json:"lookahead_ms"`
	ReleaseMs   float64 `json:"release_ms"`
}

// Reverb impulse-response families.
const (
	IRRoom = "room"
	IRHall = "hall"
)

// Reverb holds convolution reverb settings. A zero Mix disables the stage.
type Reverb struct {
	IRType     string  `json:"ir_type"`
	Mix        float64 `json:"mix"`
	PreDelayMs float64 `json:"pre_delay_ms"`
}

// Stereo holds the mid/side width adjustment. Width 1 is a no-op.
type Stereo struct {
	Width float64 `json:"width"`
}

// Pitch holds the pitch shift in semitones. Zero is a no-op.
type Pitch struct {
	Semitones float64 `json:"semitones"`
}

// Loudness holds the loudness normalization target.
type Loudness struct {
	TargetLUFS float64 `json:"target_lufs"`
}

// Chain stage names, in their fixed processing order.
const (
	StageEQ          = "eq"
	StageCompression = "compression"
	StageReverb      = "reverb"
	StageStereo      = "stereo"
	StagePitch       = "pitch"
	StageLUFS        = "lufs"
	StageLimiter     = "limiter"
)

// DefaultChain returns the processing order applied by the renderer.
func DefaultChain() []string {
	return []string{
		StageEQ, StageCompression, StageReverb, StageStereo,
		StagePitch, StageLUFS, StageLimiter,
	}
}

// StyleParameters is the full parameter set produced by inversion and
// consumed by the renderer. It serializes to JSON for caching.
type StyleParameters struct {
	EQ          []EQBand   `json:"eq"`
	Compression Compressor `json:"compression"`
	Reverb      Reverb     `json:"reverb"`
	Stereo      Stereo     `json:"stereo"`
	Pitch       Pitch      `json:"pitch"`
	Loudness    Loudness   `json:"lufs"`
	Limiter     Limiter    `json:"limiter"`

	Mode       Mode     `json:"mode"`
	Confidence float64  `json:"confidence"`
	Chain      []string `json:"processing_chain"`
}
