package decode

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/resample"
)

// Chunk sizing bounds and defaults.
const (
	// minChunkSeconds and maxChunkSeconds bound the adaptive chunk length.
	// Too-small chunks waste I/O on overlap re-decoding; too-large chunks
	// defeat the memory budget.
	minChunkSeconds = 1.0
	maxChunkSeconds = 60.0

	// defaultChunkSeconds is used when the system memory probe fails.
	defaultChunkSeconds = 30.0

	// availableMemoryFraction caps a chunk at this share of free memory.
	availableMemoryFraction = 0.10

	// chunkFootprintChannels is the channel count assumed when converting a
	// memory budget to a frame count (stereo float32).
	chunkFootprintChannels = 2

	// bytesPerSample is the in-memory size of one float32 sample.
	bytesPerSample = 4

	// decodeBlockFrames is the native-rate read granularity.
	decodeBlockFrames = 16384

	bytesPerMB = 1024 * 1024
)

// Loader streams audio files as overlapping, adaptively sized chunks at a
// fixed engine sample rate.
type Loader struct {
	// SampleRate is the engine rate all chunks are resampled to.
	SampleRate int

	// MemoryBudgetMB caps the per-chunk sample memory footprint.
	MemoryBudgetMB float64

	// OverlapSamples is the guard band shared by adjacent chunks, expressed
	// at the engine rate.
	OverlapSamples int

	Log *logrus.Logger

	chunkFrames int
}

// NewLoader creates a loader and computes its adaptive chunk size once.
func NewLoader(sampleRate int, memoryBudgetMB float64, overlapSamples int, log *logrus.Logger) *Loader {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	l := &Loader{
		SampleRate:     sampleRate,
		MemoryBudgetMB: memoryBudgetMB,
		OverlapSamples: overlapSamples,
		Log:            log,
	}
	l.chunkFrames = l.computeChunkFrames()
	l.Log.WithFields(logrus.Fields{
		"chunk_frames":  l.chunkFrames,
		"chunk_seconds": float64(l.chunkFrames) / float64(sampleRate),
	}).Debug("streaming loader initialized")
	return l
}

// ChunkFrames returns the adaptive chunk length in engine-rate frames.
func (l *Loader) ChunkFrames() int {
	return l.chunkFrames
}

// computeChunkFrames derives the chunk length from the configured memory
// budget and currently available system memory, clamped to [1 s, 60 s].
func (l *Loader) computeChunkFrames() int {
	target := l.MemoryBudgetMB
	if vm, err := mem.VirtualMemory(); err == nil {
		availMB := float64(vm.Available) / bytesPerMB
		target = math.Min(target, availMB*availableMemoryFraction)
	} else {
		l.Log.WithError(err).Warn("memory probe failed, using default chunk size")
		return int(defaultChunkSeconds * float64(l.SampleRate))
	}

	bytesPerFrame := float64(chunkFootprintChannels * bytesPerSample)
	frames := int(target * bytesPerMB / bytesPerFrame)

	minFrames := int(minChunkSeconds * float64(l.SampleRate))
	maxFrames := int(maxChunkSeconds * float64(l.SampleRate))
	if frames < minFrames {
		frames = minFrames
	}
	if frames > maxFrames {
		frames = maxFrames
	}
	return frames
}

// Stream opens path for chunked reading. The returned stream is finite and
// not restartable; call Stream again to re-read the file.
func (l *Loader) Stream(ctx context.Context, path string) (*Stream, error) {
	dec, err := Open(path)
	if err != nil {
		return nil, err
	}
	info := dec.Info()
	l.Log.WithFields(logrus.Fields{
		"path":        path,
		"sample_rate": info.SampleRate,
		"channels":    info.Channels,
		"duration":    info.Duration,
	}).Debug("streaming decode started")

	s := &Stream{
		loader:  l,
		ctx:     ctx,
		dec:     dec,
		info:    info,
		pending: make([][]float32, info.Channels),
	}
	if info.SampleRate != l.SampleRate {
		s.conv = make([]*resample.Streamer, info.Channels)
		for ch := range s.conv {
			s.conv[ch] = resample.NewStreamer(info.SampleRate, l.SampleRate)
		}
	}
	return s, nil
}

// Stream yields successive overlapping chunks of one file.
type Stream struct {
	loader *Loader
	ctx    context.Context
	dec    Decoder
	info   Info

	// pending accumulates engine-rate samples awaiting emission. After each
	// chunk it retains the overlap tail, which becomes the head of the next
	// chunk.
	pending [][]float32

	// conv carries per-channel resampling state across decode blocks so
	// block boundaries introduce no interpolation seams. Nil when the
	// native rate already matches the engine rate.
	conv []*resample.Streamer

	emitted   int64 // engine-rate frames emitted, overlap not double-counted
	decodeEOF bool
	done      bool
	chunks    int
}

// Info returns the source file metadata.
func (s *Stream) Info() Info {
	return s.info
}

// Next returns the next chunk, or io.EOF after the last chunk has been
// produced. A mid-stream decode error aborts the sequence; no partial silent
// chunk is synthesized.
func (s *Stream) Next() (*audiobuf.Chunk, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		s.done = true
		return nil, err
	}

	chunkFrames := s.loader.chunkFrames
	for len(s.pending[0]) < chunkFrames && !s.decodeEOF {
		if err := s.fill(); err != nil {
			s.done = true
			return nil, err
		}
	}

	frames := min(len(s.pending[0]), chunkFrames)
	if frames == 0 {
		s.done = true
		return nil, io.EOF
	}

	isLast := s.decodeEOF && len(s.pending[0]) <= chunkFrames
	buf := audiobuf.New(s.info.Channels, frames, s.loader.SampleRate)
	for ch := range s.pending {
		copy(buf.Data[ch], s.pending[ch][:frames])
	}

	// The first chunk starts at 0; later chunks start overlap samples before
	// the previously emitted end so boundary-sensitive stages have context.
	start := s.emitted
	if s.chunks > 0 {
		start -= int64(s.loader.OverlapSamples)
		if start < 0 {
			start = 0
		}
	}
	chunk := &audiobuf.Chunk{
		Data:        buf,
		StartSample: start,
		EndSample:   start + int64(frames),
		SampleRate:  s.loader.SampleRate,
		IsLast:      isLast,
	}

	// Advance, keeping the overlap tail for the next chunk.
	keep := s.loader.OverlapSamples
	if keep > frames {
		keep = frames
	}
	if isLast {
		keep = 0
	}
	for ch := range s.pending {
		s.pending[ch] = append(s.pending[ch][:0], s.pending[ch][frames-keep:]...)
	}
	if s.chunks == 0 {
		s.emitted += int64(frames)
	} else {
		s.emitted += int64(frames - s.loader.OverlapSamples)
	}
	s.chunks++
	if isLast {
		s.done = true
	}
	return chunk, nil
}

// fill decodes one native-rate block, resamples it to the engine rate and
// appends it to pending. Resampling state persists across blocks; the
// converters are flushed once at end of stream.
func (s *Stream) fill() error {
	native := make([][]float32, s.info.Channels)
	for ch := range native {
		native[ch] = make([]float32, decodeBlockFrames)
	}
	n, err := s.dec.ReadFrames(native)
	if n > 0 {
		for ch := range native {
			block := native[ch][:n]
			if s.conv != nil {
				block = s.conv[ch].Push(block)
			}
			s.pending[ch] = append(s.pending[ch], block...)
		}
	}
	if err == io.EOF {
		if s.conv != nil {
			for ch := range s.conv {
				s.pending[ch] = append(s.pending[ch], s.conv[ch].Flush()...)
			}
		}
		s.decodeEOF = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode aborted at frame %d: %w", s.emitted, err)
	}
	return nil
}

// Close releases the underlying decoder.
func (s *Stream) Close() error {
	s.done = true
	return s.dec.Close()
}

// LoadAll reads the entire file into memory at the engine rate. Intended for
// inputs no longer than one adaptive chunk; longer files should be streamed.
func (l *Loader) LoadAll(ctx context.Context, path string) (*audiobuf.Buffer, error) {
	stream, err := l.Stream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out *audiobuf.Buffer
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = chunk.Data
			continue
		}
		// Drop the duplicated overlap head before appending.
		trimmed, err := chunk.Data.Slice(min(l.OverlapSamples, chunk.Frames()), chunk.Frames())
		if err != nil {
			return nil, err
		}
		if err := out.Append(trimmed); err != nil {
			return nil, err
		}
	}
	if out == nil {
		return nil, fmt.Errorf("%w: empty stream", ErrDecode)
	}
	return out, nil
}
