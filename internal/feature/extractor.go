package feature

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/decode"
)

// maxAnalysisWorkers bounds concurrent chunk analyses regardless of the
// configured worker count.
const maxAnalysisWorkers = 4

// Extractor measures the feature schema over buffers or streamed files.
// It is safe for concurrent use.
type Extractor struct {
	backend Backend
	loader  *decode.Loader
	workers int
	log     *logrus.Logger

	melMu    sync.Mutex
	melCache map[int][][]float64
}

// NewExtractor returns an Extractor streaming files through loader and
// analyzing up to workers chunks concurrently.
func NewExtractor(loader *decode.Loader, workers int, log *logrus.Logger) *Extractor {
	if workers < 1 {
		workers = 1
	}
	if workers > maxAnalysisWorkers {
		workers = maxAnalysisWorkers
	}
	if log == nil {
		log = logrus.New()
	}
	return &Extractor{
		backend: DefaultBackend(),
		loader:  loader,
		workers: workers,
		log:     log,
	}
}

// AnalyzeBuffer measures every feature of one in-memory buffer. A failed
// sub-measurement is logged and replaced by its default; the returned Set is
// always complete.
func (e *Extractor) AnalyzeBuffer(buf *audiobuf.Buffer) Set {
	set := DefaultSet()
	set.Info = AudioInfo{
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels(),
		Duration:   buf.Duration().Seconds(),
		Samples:    buf.Frames(),
	}
	if buf.Frames() == 0 {
		return set
	}

	mono := buf.Mono()
	sr := buf.SampleRate

	if sp, err := e.spectralFeatures(mono, sr); err == nil {
		set.Spectral = sp
	} else {
		e.warnFeature("spectral", err)
	}
	if mel, err := e.melFeatures(mono, sr); err == nil {
		set.Mel = mel
	} else {
		e.warnFeature("mel", err)
	}
	if l, err := e.loudnessFeatures(mono, sr); err == nil {
		set.Loudness = l
	} else {
		e.warnFeature("loudness", err)
	}
	set.TruePeakDB = truePeakDB(buf.Data)
	if p, err := e.pitchFeatures(mono, sr); err == nil {
		set.Pitch = p
	} else if !errors.Is(err, errNoVoicedFrames) {
		e.warnFeature("pitch", err)
	}
	if st, err := e.stereoFeatures(buf); err == nil {
		set.Stereo = st
	} else {
		e.warnFeature("stereo", err)
	}
	if r, err := e.reverbFeatures(mono, sr); err == nil {
		set.Reverb = r
	} else {
		e.warnFeature("reverb", err)
	}
	return set
}

func (e *Extractor) warnFeature(name string, err error) {
	e.log.WithError(err).WithField("feature", name).Warn("feature measurement failed, using default")
}

// AnalyzeFile streams path through the loader, analyzes each chunk and
// merges the chunk features into one recording-level Set. Chunk analyses run
// concurrently; cancellation is observed at chunk boundaries.
func (e *Extractor) AnalyzeFile(ctx context.Context, path string) (Set, error) {
	stream, err := e.loader.Stream(ctx, path)
	if err != nil {
		return DefaultSet(), err
	}
	defer stream.Close()

	type indexed struct {
		idx int
		set Set
	}
	var (
		mu      sync.Mutex
		results []indexed
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	var lastEnd int64
	idx := 0
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Drain in-flight analyses before reporting.
			_ = g.Wait()
			return DefaultSet(), err
		}
		if gctx.Err() != nil {
			_ = g.Wait()
			return DefaultSet(), gctx.Err()
		}
		lastEnd = chunk.EndSample

		i, c := idx, chunk
		g.Go(func() error {
			set := e.AnalyzeBuffer(c.Data)
			mu.Lock()
			results = append(results, indexed{idx: i, set: set})
			mu.Unlock()
			return nil
		})
		idx++
	}
	if err := g.Wait(); err != nil {
		return DefaultSet(), err
	}

	sort.Slice(results, func(a, b int) bool { return results[a].idx < results[b].idx })
	sets := make([]Set, len(results))
	for i, r := range results {
		sets[i] = r.set
	}
	merged := MergeSets(sets)

	// Merge rules cannot know about overlap, so the stream's own frame
	// accounting supplies the recording-level info.
	info := stream.Info()
	merged.Info = AudioInfo{
		SampleRate: e.loader.SampleRate,
		Channels:   info.Channels,
		Samples:    int(lastEnd),
		Duration:   float64(lastEnd) / float64(e.loader.SampleRate),
	}
	e.log.WithFields(logrus.Fields{
		"path":   path,
		"chunks": len(sets),
	}).Debug("streamed analysis complete")
	return merged, nil
}
