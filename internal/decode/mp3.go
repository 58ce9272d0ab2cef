package decode

import (
	"fmt"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// go-mp3 always emits 16-bit little-endian stereo PCM.
const (
	mp3Channels       = 2
	mp3BytesPerSample = 2
	mp3BytesPerFrame  = mp3Channels * mp3BytesPerSample
	mp3SampleScale    = 32768.0
)

type mp3Decoder struct {
	file *os.File
	dec  *gomp3.Decoder
	info Info
	buf  []byte
	rem  []byte // partial frame carried between reads
}

func openMP3(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	frames := dec.Length() / mp3BytesPerFrame
	return &mp3Decoder{
		file: f,
		dec:  dec,
		info: Info{
			SampleRate: dec.SampleRate(),
			Channels:   mp3Channels,
			Frames:     frames,
			Duration:   frameDuration(frames, dec.SampleRate()),
			Format:     "mp3",
		},
	}, nil
}

func (d *mp3Decoder) Info() Info { return d.info }

func (d *mp3Decoder) ReadFrames(dst [][]float32) (int, error) {
	want := len(dst[0])
	need := want*mp3BytesPerFrame - len(d.rem)
	if cap(d.buf) < len(d.rem)+need {
		d.buf = make([]byte, len(d.rem)+need)
	}
	d.buf = d.buf[:len(d.rem)+need]
	copy(d.buf, d.rem)

	got := len(d.rem)
	var readErr error
	for got < len(d.buf) {
		n, err := d.dec.Read(d.buf[got:])
		got += n
		if err != nil {
			readErr = err
			break
		}
	}

	frames := got / mp3BytesPerFrame
	if frames > want {
		frames = want
	}
	for i := range frames {
		base := i * mp3BytesPerFrame
		for ch := range mp3Channels {
			off := base + ch*mp3BytesPerSample
			v := int16(uint16(d.buf[off]) | uint16(d.buf[off+1])<<8)
			dst[ch][i] = float32(v) / mp3SampleScale
		}
	}
	d.rem = append(d.rem[:0], d.buf[frames*mp3BytesPerFrame:got]...)

	if readErr == io.EOF {
		return frames, io.EOF
	}
	if readErr != nil {
		return frames, fmt.Errorf("%w: %v", ErrDecode, readErr)
	}
	return frames, nil
}

func (d *mp3Decoder) Close() error {
	return d.file.Close()
}
