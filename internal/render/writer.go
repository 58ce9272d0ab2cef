package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/mkarjala/go-audio-styler/internal/audiobuf"
)

// outputBitDepth is the PCM bit depth of rendered files.
const outputBitDepth = 24

// WriteWAV encodes buf as 24-bit PCM WAV at path. The file is written to a
// temp sibling and renamed in, so a crashed render never leaves a truncated
// file under the final name.
func WriteWAV(path string, buf *audiobuf.Buffer) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".render-*.wav")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := encodeWAV(tmp, buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish output: %w", err)
	}
	return nil
}

func encodeWAV(f *os.File, buf *audiobuf.Buffer) error {
	enc := wav.NewEncoder(f, buf.SampleRate, outputBitDepth, buf.Channels(), 1)
	if err := enc.Write(pcmBuffer(buf)); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// pcmBuffer interleaves and quantizes buf for the encoder.
func pcmBuffer(buf *audiobuf.Buffer) *audio.IntBuffer {
	const scale = 1 << (outputBitDepth - 1)
	channels := buf.Channels()
	frames := buf.Frames()
	data := make([]int, frames*channels)
	for i := range frames {
		for ch := 0; ch < channels; ch++ {
			v := float64(buf.Data[ch][i]) * scale
			if v > scale-1 {
				v = scale - 1
			} else if v < -scale {
				v = -scale
			}
			data[i*channels+ch] = int(v)
		}
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: buf.SampleRate},
		Data:           data,
		SourceBitDepth: outputBitDepth,
	}
}

// wavWriter encodes PCM incrementally, publishing the file under its final
// name only on Close. Used by the streaming render path so a long file
// never needs its full output in memory.
type wavWriter struct {
	f    *os.File
	enc  *wav.Encoder
	path string
}

func newWAVWriter(path string, sampleRate, channels int) (*wavWriter, error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".render-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	return &wavWriter{
		f:    f,
		enc:  wav.NewEncoder(f, sampleRate, outputBitDepth, channels, 1),
		path: path,
	}, nil
}

func (w *wavWriter) Write(buf *audiobuf.Buffer) error {
	if err := w.enc.Write(pcmBuffer(buf)); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}

// Close finalizes the header and renames the file into place.
func (w *wavWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		w.Abort()
		return fmt.Errorf("finalize wav: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.f.Name())
		return fmt.Errorf("close temp output: %w", err)
	}
	if err := os.Rename(w.f.Name(), w.path); err != nil {
		os.Remove(w.f.Name())
		return fmt.Errorf("publish output: %w", err)
	}
	return nil
}

// Abort discards the partial file.
func (w *wavWriter) Abort() {
	w.f.Close()
	os.Remove(w.f.Name())
}
