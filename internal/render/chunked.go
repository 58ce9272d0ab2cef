package render

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
)

// chunkRange is a half-open frame range of the source buffer.
type chunkRange struct {
	start, end int
}

// splitRanges covers frames with windows of chunkFrames stepping by
// chunkFrames-overlap, so adjacent windows share overlap frames for the
// crossfade stitch.
func splitRanges(frames, chunkFrames, overlap int) []chunkRange {
	step := chunkFrames - overlap
	if step < 1 {
		step = 1
	}
	var ranges []chunkRange
	for start := 0; start < frames; start += step {
		end := start + chunkFrames
		if end > frames {
			end = frames
		}
		ranges = append(ranges, chunkRange{start: start, end: end})
		if end == frames {
			break
		}
	}
	return ranges
}

// processChunks applies process to overlapping windows of buf concurrently
// and stitches the results with a linear crossfade over each shared region.
// The output has exactly the input frame count. process must treat its
// argument as owned; it receives a copy of the window.
func processChunks(ctx context.Context, buf *audiobuf.Buffer, chunkFrames, overlap, workers int, process func(*audiobuf.Buffer)) (*audiobuf.Buffer, error) {
	frames := buf.Frames()
	if frames <= chunkFrames {
		out := buf.Clone()
		process(out)
		return out, nil
	}

	ranges := splitRanges(frames, chunkFrames, overlap)
	processed := make([]*audiobuf.Buffer, len(ranges))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rng := range ranges {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			window, err := buf.Slice(rng.start, rng.end)
			if err != nil {
				return err
			}
			chunk := window.Clone()
			process(chunk)
			mu.Lock()
			processed[i] = chunk
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return stitchChunks(processed, overlap, frames, buf.SampleRate, buf.Channels()), nil
}

// stitchChunks crossfades each chunk into its predecessor's tail and
// concatenates. Every chunk after the first rewinds by exactly overlap so
// its samples land at their source positions; the fade only shapes the
// blend inside that region. splitRanges guarantees each chunk is longer
// than the overlap, so the rewound position never regresses past a join.
func stitchChunks(chunks []*audiobuf.Buffer, overlap, frames, sampleRate, channels int) *audiobuf.Buffer {
	out := audiobuf.New(channels, frames, sampleRate)

	pos := 0
	for idx, chunk := range chunks {
		fade := 0
		if idx > 0 {
			pos -= overlap
			fade = overlap
			if fade > chunk.Frames() {
				fade = chunk.Frames()
			}
		}
		for ch := 0; ch < channels; ch++ {
			dst := out.Data[ch]
			src := chunk.Data[ch]
			for i := 0; i < chunk.Frames() && pos+i < frames; i++ {
				if i < fade {
					t := float32(i) / float32(fade)
					dst[pos+i] = dst[pos+i]*(1-t) + src[i]*t
				} else {
					dst[pos+i] = src[i]
				}
			}
		}
		pos += chunk.Frames()
		if pos > frames {
			pos = frames
		}
	}
	return out
}
