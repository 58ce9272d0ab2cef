package render

import (
	"context"
	"io"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
	"github.com/mkarjala/go-audio-styler/internal/params"
)

// ChunkSource yields successive overlapping chunks of a recording, ending
// with io.EOF. decode.Stream satisfies it.
type ChunkSource interface {
	Next() (*audiobuf.Chunk, error)
}

// RenderStream applies p chunk by chunk and writes the stitched result to
// outputPath as it goes, holding only one chunk plus the crossfade tail in
// memory. Chunks arrive with their heads overlapping the previous chunk's
// tail; processed heads are blended in with the same linear fade as the
// in-memory stitch, so the output frame count matches the source exactly.
//
// The returned Result carries no audio. Its metrics compare the first
// chunk only, which already spans the metric window whenever a chunk is
// metricsMaxSeconds or longer. There is no degraded retry: streaming is
// itself the low-memory strategy.
func (r *Renderer) RenderStream(ctx context.Context, src ChunkSource, outputPath string, p params.StyleParameters) (*Result, error) {
	var (
		w        *wavWriter
		tail     *audiobuf.Buffer
		firstSrc *audiobuf.Buffer
		firstOut *audiobuf.Buffer
		written  int64
		chunks   int
	)
	fail := func(err error) (*Result, error) {
		if w != nil {
			w.Abort()
		}
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		chunk, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(err)
		}

		out := chunk.Data.Clone()
		applyChain(out, p, r.log)

		if w == nil {
			w, err = newWAVWriter(outputPath, out.SampleRate, out.Channels())
			if err != nil {
				return nil, err
			}
			firstSrc = chunk.Data
			firstOut = out
		}

		if tail != nil {
			fade := tail.Frames()
			if fade > out.Frames() {
				fade = out.Frames()
			}
			for ch := range out.Data {
				for i := 0; i < fade; i++ {
					t := float32(i) / float32(fade)
					out.Data[ch][i] = tail.Data[ch][i]*(1-t) + out.Data[ch][i]*t
				}
			}
		}

		// Hold back the overlap tail; the next chunk's head covers the
		// same source frames and is blended over it.
		emit := out.Frames()
		if !chunk.IsLast && emit > r.overlapFrames {
			emit -= r.overlapFrames
		}
		head, err := out.Slice(0, emit)
		if err != nil {
			return fail(err)
		}
		if err := w.Write(head); err != nil {
			return fail(err)
		}
		written += int64(emit)
		if chunk.IsLast || emit == out.Frames() {
			tail = nil
		} else {
			tail, err = out.Slice(emit, out.Frames())
			if err != nil {
				return fail(err)
			}
		}
		chunks++
	}
	if w == nil {
		return nil, ErrRenderAborted
	}
	// A well-formed stream marks its last chunk, leaving no tail behind.
	if tail != nil && tail.Frames() > 0 {
		if err := w.Write(tail); err != nil {
			return fail(err)
		}
		written += int64(tail.Frames())
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	r.log.WithField("chunks", chunks).WithField("frames", written).
		Debug("streamed render complete")

	res := &Result{}
	res.Metrics = computeMetrics(r.analyzer, firstSrc, firstOut)
	return res, nil
}
