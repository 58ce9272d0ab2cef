package decode

import (
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

type vorbisDecoder struct {
	file *os.File
	r    *oggvorbis.Reader
	info Info
	buf  []float32
	rem  []float32 // partial frame carried between reads
}

func openVorbis(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	r, err := oggvorbis.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	frames := r.Length()
	return &vorbisDecoder{
		file: f,
		r:    r,
		info: Info{
			SampleRate: r.SampleRate(),
			Channels:   r.Channels(),
			Frames:     frames,
			Duration:   frameDuration(frames, r.SampleRate()),
			Format:     "ogg",
		},
	}, nil
}

func (d *vorbisDecoder) Info() Info { return d.info }

func (d *vorbisDecoder) ReadFrames(dst [][]float32) (int, error) {
	channels := d.info.Channels
	want := len(dst[0])
	need := want*channels - len(d.rem)
	if cap(d.buf) < len(d.rem)+need {
		d.buf = make([]float32, len(d.rem)+need)
	}
	d.buf = d.buf[:len(d.rem)+need]
	copy(d.buf, d.rem)

	got := len(d.rem)
	var readErr error
	for got < len(d.buf) {
		n, err := d.r.Read(d.buf[got:])
		got += n
		if err != nil {
			readErr = err
			break
		}
	}

	frames := got / channels
	if frames > want {
		frames = want
	}
	for i := range frames {
		for ch := range channels {
			dst[ch][i] = d.buf[i*channels+ch]
		}
	}
	d.rem = append(d.rem[:0], d.buf[frames*channels:got]...)

	if readErr == io.EOF {
		return frames, io.EOF
	}
	if readErr != nil {
		return frames, fmt.Errorf("%w: %v", ErrDecode, readErr)
	}
	return frames, nil
}

func (d *vorbisDecoder) Close() error {
	return d.file.Close()
}
