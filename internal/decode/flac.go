package decode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

type flacDecoder struct {
	file    *os.File
	stream  *flac.Stream
	info    Info
	scale   float32
	pending [][]float32 // per-channel leftovers from the last parsed frame
	eof     bool
}

func openFLAC(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	stream, err := flac.New(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	si := stream.Info
	frames := int64(si.NSamples)
	channels := int(si.NChannels)
	rate := int(si.SampleRate)

	return &flacDecoder{
		file:   f,
		stream: stream,
		info: Info{
			SampleRate: rate,
			Channels:   channels,
			Frames:     frames,
			Duration:   frameDuration(frames, rate),
			Format:     "flac",
		},
		scale:   float32(int64(1) << (si.BitsPerSample - 1)),
		pending: make([][]float32, channels),
	}, nil
}

func (d *flacDecoder) Info() Info { return d.info }

func (d *flacDecoder) ReadFrames(dst [][]float32) (int, error) {
	want := len(dst[0])
	filled := 0

	for filled < want {
		if len(d.pending[0]) > 0 {
			n := min(want-filled, len(d.pending[0]))
			for ch := range d.pending {
				copy(dst[ch][filled:], d.pending[ch][:n])
				d.pending[ch] = d.pending[ch][n:]
			}
			filled += n
			continue
		}
		if d.eof {
			return filled, io.EOF
		}

		frame, err := d.stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.eof = true
				continue
			}
			return filled, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		for ch, sub := range frame.Subframes {
			if ch >= len(d.pending) {
				break
			}
			for _, s := range sub.Samples {
				d.pending[ch] = append(d.pending[ch], float32(s)/d.scale)
			}
		}
	}
	return filled, nil
}

func (d *flacDecoder) Close() error {
	return d.file.Close()
}
