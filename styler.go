package styler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/cache"
	"github.com/mkarjala/go-audio-styler/internal/decode"
	"github.com/mkarjala/go-audio-styler/internal/feature"
	"github.com/mkarjala/go-audio-styler/internal/params"
	"github.com/mkarjala/go-audio-styler/internal/render"
)

// Aliases so callers outside the module can name the domain types the
// facade returns.
type (
	// Features is the merged acoustic feature set of one recording.
	Features = feature.Set

	// StyleParameters is an inverted mastering-parameter set.
	StyleParameters = params.StyleParameters

	// Mode selects how aggressively inversion matches the reference.
	Mode = params.Mode

	// QualityMetrics assesses a finished render.
	QualityMetrics = render.QualityMetrics

	// RenderResult is rendered audio with its quality assessment.
	RenderResult = render.Result

	// Buffer is in-memory multi-channel audio at the engine rate.
	Buffer = audiobuf.Buffer

	// CacheStats are the result-cache counters.
	CacheStats = cache.Stats
)

// Inversion modes.
const (
	// ModePaired assumes reference and target are takes of the same
	// material, enabling pitch correction.
	ModePaired = params.ModePaired

	// ModeStyle matches overall character only.
	ModeStyle = params.ModeStyle
)

// Engine ties the streaming loader, feature extractor, parameter inverter,
// style renderer and result cache together behind one handle. Engines are
// safe for concurrent use; construct one per configuration, not per call.
type Engine struct {
	cfg      Config
	log      *logrus.Logger
	loader   *decode.Loader
	analyzer *feature.Extractor
	inverter *params.Inverter
	renderer *render.Renderer
	cache    *cache.Cache
}

// New builds an Engine from cfg. The cache is opened only when cfg.CacheDir
// is set; everything else works without it.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	log := cfg.Logger

	loader := decode.NewLoader(cfg.SampleRate, cfg.MemoryBudgetMB, cfg.overlapSamples(), log)
	inverter := params.NewInverter(log)
	if cfg.EQJitterSeed != 0 {
		inverter.SetJitterSeed(cfg.EQJitterSeed)
	}

	e := &Engine{
		cfg:      cfg,
		log:      log,
		loader:   loader,
		analyzer: feature.NewExtractor(loader, cfg.Workers, log),
		inverter: inverter,
		renderer: render.NewRenderer(loader.ChunkFrames(), cfg.overlapSamples(), cfg.Workers, log),
	}

	if cfg.CacheDir != "" {
		c, err := cache.Open(cache.Options{
			Dir:        cfg.CacheDir,
			MaxSizeMB:  cfg.CacheMaxSizeMB,
			MaxEntries: cfg.CacheMaxEntries,
			DefaultTTL: cfg.CacheTTL,
			Log:        log,
		})
		if err != nil {
			return nil, err
		}
		e.cache = c
	}
	return e, nil
}

// analysisKey keys cached analyses on everything that changes their output
// besides the input content.
type analysisKey struct {
	SampleRate int `json:"sample_rate"`
}

// Analyze streams path through the feature extractor and returns the merged
// feature set, serving and updating the cache when one is configured.
func (e *Engine) Analyze(ctx context.Context, path string) (Features, error) {
	if e.cache == nil {
		return e.analyzer.AnalyzeFile(ctx, path)
	}

	key := analysisKey{SampleRate: e.cfg.SampleRate}
	if blob, ok := e.cache.Get(path, key, cache.TypeQualityAnalysis); ok {
		if set, err := readFeatureBlob(blob); err == nil {
			return set, nil
		}
		// Unreadable blob: recompute and overwrite below.
		e.cache.Invalidate(path, key, cache.TypeQualityAnalysis)
	}

	set, err := e.analyzer.AnalyzeFile(ctx, path)
	if err != nil {
		return Features{}, err
	}
	if blob, err := writeFeatureBlob(set); err == nil {
		defer os.Remove(blob)
		if err := e.cache.Put(path, key, cache.TypeQualityAnalysis, blob, 0); err != nil {
			e.log.WithError(err).Warn("analysis not cached")
		}
	}
	return set, nil
}

// AnalyzeBuffer extracts features from an in-memory buffer, uncached.
func (e *Engine) AnalyzeBuffer(buf *Buffer) Features {
	return e.analyzer.AnalyzeBuffer(buf)
}

// Invert derives the style parameters that would move a target recording
// with features tgt toward the reference with features ref.
func (e *Engine) Invert(ref, tgt Features, mode Mode) StyleParameters {
	return e.inverter.Invert(ref, tgt, mode)
}

// Render applies p to the audio at inputPath and writes the styled result
// to outputPath, serving and updating the cache when one is configured.
func (e *Engine) Render(ctx context.Context, inputPath, outputPath string, p StyleParameters) (QualityMetrics, error) {
	if e.cache != nil {
		if blob, ok := e.cache.Get(inputPath, p, cache.TypeAudioProcessing); ok {
			if err := copyFile(blob, outputPath); err != nil {
				return QualityMetrics{}, err
			}
			return QualityMetrics{}, nil
		}
	}

	result, err := e.renderFile(ctx, inputPath, outputPath, p)
	if err != nil {
		return QualityMetrics{}, err
	}

	// Fallback output is the input unprocessed; caching it would pin a
	// result we want to retry later.
	if e.cache != nil && !result.Fallback {
		if err := e.cache.Put(inputPath, p, cache.TypeAudioProcessing, outputPath, 0); err != nil {
			e.log.WithError(err).Warn("render not cached")
		}
	}
	return result.Metrics, nil
}

// renderFile routes a file render. Inputs no longer than one streaming
// chunk are loaded whole and rendered with the full retry policy; anything
// longer is processed chunk by chunk, writing the output incrementally so
// the decoded file never has to fit in memory at once.
func (e *Engine) renderFile(ctx context.Context, inputPath, outputPath string, p StyleParameters) (*RenderResult, error) {
	info, err := decode.Probe(inputPath)
	if err != nil {
		return nil, err
	}
	frames := int64(info.Duration.Seconds() * float64(e.cfg.SampleRate))
	if frames <= int64(e.loader.ChunkFrames()) {
		src, err := e.loader.LoadAll(ctx, inputPath)
		if err != nil {
			return nil, err
		}
		result, err := e.renderer.Render(ctx, src, p)
		if err != nil {
			return nil, err
		}
		if err := render.WriteWAV(outputPath, result.Audio); err != nil {
			return nil, err
		}
		return result, nil
	}

	e.log.WithFields(logrus.Fields{
		"path":     inputPath,
		"duration": info.Duration,
	}).Debug("input exceeds one chunk, rendering streamed")
	stream, err := e.loader.Stream(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return e.renderer.RenderStream(ctx, stream, outputPath, p)
}

// RenderBuffer applies p to an in-memory buffer and returns the result
// without touching the filesystem or cache.
func (e *Engine) RenderBuffer(ctx context.Context, src *Buffer, p StyleParameters) (*RenderResult, error) {
	return e.renderer.Render(ctx, src, p)
}

// Transfer is the full pipeline: analyze both files, invert, render the
// target styled like the reference.
func (e *Engine) Transfer(ctx context.Context, refPath, targetPath, outputPath string, mode Mode) (StyleParameters, QualityMetrics, error) {
	ref, err := e.Analyze(ctx, refPath)
	if err != nil {
		return StyleParameters{}, QualityMetrics{}, fmt.Errorf("analyze reference: %w", err)
	}
	tgt, err := e.Analyze(ctx, targetPath)
	if err != nil {
		return StyleParameters{}, QualityMetrics{}, fmt.Errorf("analyze target: %w", err)
	}
	p := e.Invert(ref, tgt, mode)
	metrics, err := e.Render(ctx, targetPath, outputPath, p)
	return p, metrics, err
}

// CacheStats returns the result-cache counters, zero when caching is off.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// ClearCache drops all cached artifacts. No-op without a cache.
func (e *Engine) ClearCache() (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	return e.cache.Clear("")
}

// Close releases the cache index. The engine is unusable afterwards.
func (e *Engine) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

func readFeatureBlob(path string) (Features, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Features{}, err
	}
	var set Features
	if err := json.Unmarshal(data, &set); err != nil {
		return Features{}, fmt.Errorf("decode cached analysis: %w", err)
	}
	return set, nil
}

func writeFeatureBlob(set Features) (string, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "analysis-*.json")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// copyFile writes src's content to dst via a temp sibling and rename so a
// crash never leaves a truncated file at dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return err
	}
	_, err = io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
