package render

import (
	"math"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/dsputil"
	"github.com/mkarjala/go-audio-styler/internal/params"
)

// smoothingCoeff converts a time constant in milliseconds to a one-pole
// smoothing coefficient at the given rate.
func smoothingCoeff(ms float64, sampleRate int) float64 {
	if ms <= 0 {
		return 0
	}
	return math.Exp(-1 / (ms / 1000 * float64(sampleRate)))
}

// applyCompressor runs channel-linked downward compression in place. The
// envelope follows the loudest channel so the stereo image does not wander
// under gain changes.
func applyCompressor(buf *audiobuf.Buffer, c params.Compressor) {
	if !c.Enabled || c.Ratio <= 1 || buf.Frames() == 0 {
		return
	}
	attack := smoothingCoeff(c.AttackMs, buf.SampleRate)
	release := smoothingCoeff(c.ReleaseMs, buf.SampleRate)
	slope := 1 - 1/c.Ratio

	envDB := dsputil.SilenceFloorDB
	for i := range buf.Frames() {
		var level float64
		for _, ch := range buf.Data {
			level = math.Max(level, math.Abs(float64(ch[i])))
		}
		levelDB := dsputil.AmpToDB(level)

		// Attack when the signal rises above the envelope, release when it
		// falls back.
		if levelDB > envDB {
			envDB = attack*envDB + (1-attack)*levelDB
		} else {
			envDB = release*envDB + (1-release)*levelDB
		}

		over := envDB - c.ThresholdDB
		if over <= 0 {
			continue
		}
		gain := dsputil.DBToAmp(-over * slope)
		for _, ch := range buf.Data {
			ch[i] = float32(float64(ch[i]) * gain)
		}
	}
}

// applyLimiter runs a lookahead true-peak limiter in place. The gain for
// each output sample is the smallest reduction required anywhere inside its
// lookahead window, so peaks are caught before they arrive.
func applyLimiter(buf *audiobuf.Buffer, l params.Limiter) {
	if buf.Frames() == 0 {
		return
	}
	ceiling := dsputil.DBToAmp(l.CeilingDB)
	lookahead := int(l.LookaheadMs / 1000 * float64(buf.SampleRate))
	if lookahead < 1 {
		lookahead = 1
	}
	release := smoothingCoeff(l.ReleaseMs, buf.SampleRate)
	frames := buf.Frames()

	// Per-sample target gain from the channel-linked peak.
	target := make([]float64, frames)
	for i := range frames {
		var peak float64
		for _, ch := range buf.Data {
			peak = math.Max(peak, math.Abs(float64(ch[i])))
		}
		if peak > ceiling {
			target[i] = ceiling / peak
		} else {
			target[i] = 1
		}
	}

	// Sliding-window minimum over the lookahead horizon, tracked with a
	// monotonic index deque.
	windowMin := make([]float64, frames)
	deque := make([]int, 0, lookahead+1)
	for i := frames - 1; i >= 0; i-- {
		for len(deque) > 0 && target[deque[len(deque)-1]] >= target[i] {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		if deque[0] > i+lookahead {
			deque = deque[1:]
		}
		windowMin[i] = target[deque[0]]
	}

	// Instant attack toward the window minimum, smoothed release back up.
	gain := 1.0
	for i := range frames {
		want := windowMin[i]
		if want < gain {
			gain = want
		} else {
			gain = release*gain + (1-release)*want
		}
		for _, ch := range buf.Data {
			ch[i] = float32(float64(ch[i]) * gain)
		}
	}
}
