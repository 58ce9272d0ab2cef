// Package decode opens audio files and streams their samples as
// memory-bounded chunks. Format support (wav, mp3, flac, ogg) is provided by
// one Decoder implementation per container, dispatched on file extension.
package decode

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrDecode indicates an unreadable or corrupt input file. It is returned
// both from Open for broken headers and mid-stream for damaged payloads.
var ErrDecode = errors.New("audio decode failed")

// ErrUnsupportedFormat indicates a file extension with no registered decoder.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Info describes an audio file without its sample data.
type Info struct {
	SampleRate int
	Channels   int
	Frames     int64
	Duration   time.Duration
	Format     string
}

// Decoder reads deinterleaved float32 frames from one audio file.
// Implementations are single-pass; re-reading requires a fresh Open.
type Decoder interface {
	// Info returns the stream metadata. Frames may be 0 when the container
	// does not declare a length (some ogg streams).
	Info() Info

	// ReadFrames fills dst (one slice per channel, equal lengths) with up to
	// len(dst[0]) frames and returns the count read. io.EOF signals the end
	// of the stream; a frame count may accompany it.
	ReadFrames(dst [][]float32) (int, error)

	Close() error
}

// Open opens path with the decoder matching its extension.
func Open(path string) (Decoder, error) {
	switch normalizeExt(path) {
	case ".wav", ".wave":
		return openWAV(path)
	case ".mp3":
		return openMP3(path)
	case ".flac":
		return openFLAC(path)
	case ".ogg", ".oga":
		return openVorbis(path)
	case ".aac", ".m4a":
		// No pure-Go AAC decoder is wired in; transcode to wav or flac
		// before loading.
		return nil, fmt.Errorf("%w: %s requires transcoding to wav, flac, mp3 or ogg",
			ErrUnsupportedFormat, normalizeExt(path))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Probe returns file metadata without reading sample data beyond the header.
func Probe(path string) (Info, error) {
	d, err := Open(path)
	if err != nil {
		return Info{}, err
	}
	defer d.Close()
	return d.Info(), nil
}

func normalizeExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// frameDuration converts a frame count at a rate to a duration.
func frameDuration(frames int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / float64(rate) * float64(time.Second))
}
