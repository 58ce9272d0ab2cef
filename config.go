package styler

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults used by Config fields left at their zero value.
const (
	// DefaultSampleRate is the fixed engine rate. All decoded audio is
	// resampled to this rate before analysis and rendering.
	DefaultSampleRate = 48000

	// DefaultMemoryBudgetMB bounds the per-chunk sample memory footprint
	// for streaming decode and chunked rendering.
	DefaultMemoryBudgetMB = 512

	// DefaultOverlapMs is the guard band shared by adjacent chunks and the
	// crossfade span when stitching rendered chunks.
	DefaultOverlapMs = 100

	// DefaultWorkers bounds chunk-level parallelism.
	DefaultWorkers = 4

	// DefaultCacheTTL ages out cached artifacts that were never touched.
	DefaultCacheTTL = 7 * 24 * time.Hour

	// DefaultCacheMaxSizeMB and DefaultCacheMaxEntries bound the result
	// cache before LRU eviction kicks in.
	DefaultCacheMaxSizeMB  = 2048
	DefaultCacheMaxEntries = 1000
)

// ErrInvalidConfig reports a Config that fails Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds engine configuration. The zero value is usable: New fills
// every unset field with the corresponding default, and an empty CacheDir
// simply disables the result cache.
type Config struct {
	// SampleRate is the engine sample rate in Hz.
	SampleRate int

	// MemoryBudgetMB caps the memory used per decoded or rendered chunk.
	MemoryBudgetMB float64

	// OverlapMs is the chunk guard band and crossfade length in ms.
	OverlapMs float64

	// Workers is the maximum number of chunks processed concurrently.
	Workers int

	// CacheDir is the result cache root. Empty disables caching.
	CacheDir string

	// CacheTTL is the default lifetime of cached artifacts.
	CacheTTL time.Duration

	// CacheMaxSizeMB and CacheMaxEntries bound the cache.
	CacheMaxSizeMB  int64
	CacheMaxEntries int

	// EQJitterSeed, when non-zero, seeds the small random variation applied
	// to inverted EQ parameters. Zero keeps inversion fully deterministic.
	EQJitterSeed int64

	// Logger receives library logs. Nil gets a warn-level default.
	Logger *logrus.Logger
}

// Validate reports the first invalid field. Zero values are valid because
// they mean "use the default".
func (c Config) Validate() error {
	if c.SampleRate < 0 || (c.SampleRate > 0 && c.SampleRate < 8000) {
		return fmt.Errorf("%w: sample rate %d Hz", ErrInvalidConfig, c.SampleRate)
	}
	if c.MemoryBudgetMB < 0 {
		return fmt.Errorf("%w: memory budget %.1f MB", ErrInvalidConfig, c.MemoryBudgetMB)
	}
	if c.OverlapMs < 0 {
		return fmt.Errorf("%w: overlap %.1f ms", ErrInvalidConfig, c.OverlapMs)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: worker count %d", ErrInvalidConfig, c.Workers)
	}
	if c.CacheMaxSizeMB < 0 || c.CacheMaxEntries < 0 || c.CacheTTL < 0 {
		return fmt.Errorf("%w: negative cache bound", ErrInvalidConfig)
	}
	return nil
}

// withDefaults returns a copy with every unset field filled in.
func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.MemoryBudgetMB == 0 {
		c.MemoryBudgetMB = DefaultMemoryBudgetMB
	}
	if c.OverlapMs == 0 {
		c.OverlapMs = DefaultOverlapMs
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheMaxSizeMB == 0 {
		c.CacheMaxSizeMB = DefaultCacheMaxSizeMB
	}
	if c.CacheMaxEntries == 0 {
		c.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
		c.Logger.SetLevel(logrus.WarnLevel)
	}
	return c
}

// overlapSamples converts the overlap to engine-rate frames.
func (c Config) overlapSamples() int {
	return int(c.OverlapMs * float64(c.SampleRate) / 1000.0)
}
