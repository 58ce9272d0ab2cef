package decode

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavReadFrames is the PCM read granularity in frames.
const wavReadFrames = 8192

type wavDecoder struct {
	file    *os.File
	dec     *wav.Decoder
	info    Info
	scale   float32
	pcm     *audio.IntBuffer
	pending []int // leftover interleaved ints from the last PCM read
}

func openWAV(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: invalid WAV file %s", ErrDecode, path)
	}

	format := dec.Format()
	dur, err := dec.Duration()
	if err != nil {
		dur = 0
	}
	frames := int64(dur.Seconds() * float64(format.SampleRate))

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}

	d := &wavDecoder{
		file: f,
		dec:  dec,
		info: Info{
			SampleRate: format.SampleRate,
			Channels:   format.NumChannels,
			Frames:     frames,
			Duration:   dur,
			Format:     "wav",
		},
		scale: float32(int64(1) << (bitDepth - 1)),
		pcm: &audio.IntBuffer{
			Format: format,
			Data:   make([]int, wavReadFrames*format.NumChannels),
		},
	}
	return d, nil
}

func (d *wavDecoder) Info() Info { return d.info }

func (d *wavDecoder) ReadFrames(dst [][]float32) (int, error) {
	channels := d.info.Channels
	want := len(dst[0])
	filled := 0

	for filled < want {
		if len(d.pending) >= channels {
			n := d.deinterleave(dst, filled, want)
			filled += n
			continue
		}

		d.pcm.Data = d.pcm.Data[:cap(d.pcm.Data)]
		n, err := d.dec.PCMBuffer(d.pcm)
		if n == 0 {
			if err != nil && err != io.EOF {
				return filled, fmt.Errorf("%w: %v", ErrDecode, err)
			}
			return filled, io.EOF
		}
		d.pending = append(d.pending, d.pcm.Data[:n]...)
	}
	return filled, nil
}

// deinterleave moves as many whole frames as possible from pending into dst
// starting at frame offset, returning the number of frames moved.
func (d *wavDecoder) deinterleave(dst [][]float32, offset, want int) int {
	channels := d.info.Channels
	frames := len(d.pending) / channels
	if frames > want-offset {
		frames = want - offset
	}
	for i := range frames {
		for ch := range channels {
			dst[ch][offset+i] = float32(d.pending[i*channels+ch]) / d.scale
		}
	}
	d.pending = d.pending[frames*channels:]
	return frames
}

func (d *wavDecoder) Close() error {
	return d.file.Close()
}
