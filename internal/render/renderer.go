// Package render applies inverted style parameters to audio: an EQ ladder,
// dynamics, convolution reverb, stereo width, pitch shift and loudness
// normalization, run over overlapping chunks that are crossfaded back
// together. Output duration always matches input duration.
package render

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/feature"
	"github.com/mkarjala/go-audio-styler/internal/params"
)

// Rendering limits.
const (
	// maxRenderWorkers bounds chunk parallelism regardless of configuration.
	maxRenderWorkers = 4

	// degradedChunkDivisor shrinks the chunk size in degraded mode.
	degradedChunkDivisor = 4

	// degradedMaxEQBands is the EQ band budget in degraded mode.
	degradedMaxEQBands = 3

	// workingSetFactor estimates peak working bytes per source byte during
	// a render (float64 scratch, convolution tails, chunk copies).
	workingSetFactor = 6
)

// ErrRenderAborted reports a render stopped before producing output.
var ErrRenderAborted = errors.New("render aborted")

// RetryPolicy controls how a render responds to resource pressure and
// processing failure.
type RetryPolicy struct {
	// AllowDegraded permits retrying with smaller chunks and a reduced
	// processing chain when memory is tight or the full render fails.
	AllowDegraded bool

	// AllowFallback permits returning the unprocessed audio, flagged, when
	// even the degraded render fails.
	AllowFallback bool
}

// DefaultRetryPolicy degrades and falls back rather than failing.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{AllowDegraded: true, AllowFallback: true}
}

// Result is a finished render with its quality assessment.
type Result struct {
	Audio    *audiobuf.Buffer
	Metrics  QualityMetrics
	Degraded bool
	Fallback bool
}

// Renderer applies style parameters to buffers.
type Renderer struct {
	chunkFrames   int
	overlapFrames int
	workers       int
	log           *logrus.Logger
	analyzer      *feature.Extractor
}

// NewRenderer returns a Renderer processing chunkFrames-sized windows with
// overlapFrames of crossfade, up to workers windows at a time.
func NewRenderer(chunkFrames, overlapFrames, workers int, log *logrus.Logger) *Renderer {
	if workers < 1 {
		workers = 1
	}
	if workers > maxRenderWorkers {
		workers = maxRenderWorkers
	}
	if log == nil {
		log = logrus.New()
	}
	if chunkFrames < 2*overlapFrames {
		chunkFrames = 2 * overlapFrames
	}
	return &Renderer{
		chunkFrames:   chunkFrames,
		overlapFrames: overlapFrames,
		workers:       workers,
		log:           log,
		analyzer:      feature.NewExtractor(nil, 1, log),
	}
}

// Render applies p to src under the default retry policy.
func (r *Renderer) Render(ctx context.Context, src *audiobuf.Buffer, p params.StyleParameters) (*Result, error) {
	return r.RenderWithPolicy(ctx, src, p, DefaultRetryPolicy())
}

// RenderWithPolicy applies p to src. Under memory pressure, or after a
// failed full render, the policy may permit a degraded pass with smaller
// chunks and only the essential stages; as a last resort it may return the
// source audio unprocessed with Fallback set. Cancellation is always fatal.
func (r *Renderer) RenderWithPolicy(ctx context.Context, src *audiobuf.Buffer, p params.StyleParameters, policy RetryPolicy) (*Result, error) {
	degraded := false
	if policy.AllowDegraded && r.memoryPressure(src) {
		r.log.Warn("memory pressure detected, rendering degraded")
		degraded = true
	}

	out, err := r.renderPass(ctx, src, p, degraded)
	if err != nil && !degraded && policy.AllowDegraded && ctx.Err() == nil {
		r.log.WithError(err).Warn("full render failed, retrying degraded")
		degraded = true
		out, err = r.renderPass(ctx, src, p, degraded)
	}
	if err != nil {
		if ctx.Err() != nil || !policy.AllowFallback {
			return nil, err
		}
		r.log.WithError(err).Error("render failed, returning unprocessed audio")
		res := &Result{Audio: src.Clone(), Fallback: true, Degraded: degraded}
		res.Metrics = computeMetrics(r.analyzer, src, res.Audio)
		res.Metrics.Degraded = degraded
		res.Metrics.Fallback = true
		return res, nil
	}

	res := &Result{Audio: out, Degraded: degraded}
	res.Metrics = computeMetrics(r.analyzer, src, out)
	res.Metrics.Degraded = degraded
	return res, nil
}

// renderPass runs one chunked pass over src.
func (r *Renderer) renderPass(ctx context.Context, src *audiobuf.Buffer, p params.StyleParameters, degraded bool) (*audiobuf.Buffer, error) {
	chunkFrames := r.chunkFrames
	if degraded {
		chunkFrames /= degradedChunkDivisor
		if chunkFrames < 2*r.overlapFrames {
			chunkFrames = 2 * r.overlapFrames
		}
		p = degradeParameters(p)
	}
	out, err := processChunks(ctx, src, chunkFrames, r.overlapFrames, r.workers, func(chunk *audiobuf.Buffer) {
		applyChain(chunk, p, r.log)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrRenderAborted
	}
	return out, nil
}

// memoryPressure reports whether the estimated working set of a full render
// exceeds what the host can currently spare.
func (r *Renderer) memoryPressure(src *audiobuf.Buffer) bool {
	vm, err := mem.VirtualMemory()
	if err != nil {
		// No measurement, no reason to degrade.
		return false
	}
	srcBytes := uint64(src.Frames()) * uint64(src.Channels()) * 4
	return srcBytes*workingSetFactor > vm.Available
}

// degradeParameters strips the chain down to the corrective essentials:
// the strongest EQ bands, compression and the limiter. Reverb, imaging,
// pitch and loudness moves are dropped.
func degradeParameters(p params.StyleParameters) params.StyleParameters {
	if len(p.EQ) > degradedMaxEQBands {
		bands := make([]params.EQBand, len(p.EQ))
		copy(bands, p.EQ)
		sort.SliceStable(bands, func(a, b int) bool {
			return math.Abs(bands[a].GainDB) > math.Abs(bands[b].GainDB)
		})
		p.EQ = bands[:degradedMaxEQBands]
	}
	p.Reverb.Mix = 0
	p.Stereo.Width = 1
	p.Pitch.Semitones = 0
	p.Loudness.TargetLUFS = 0
	return p
}
