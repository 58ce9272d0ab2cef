// Package audiobuf defines the in-memory sample containers passed between the
// streaming loader, the feature extractor and the renderer.
//
// Samples are stored deinterleaved as one float32 slice per channel. A Buffer
// is owned by exactly one component at a time; functions that need to retain
// data across a hand-off must Clone it.
package audiobuf

import (
	"fmt"
	"time"
)

// Buffer holds multi-channel audio as channels x frames of 32-bit floats.
type Buffer struct {
	// Data holds one sample slice per channel. All channels have equal length.
	Data [][]float32

	// SampleRate is the sample rate of the stored audio in Hz.
	SampleRate int
}

// New allocates a zeroed buffer with the given shape.
func New(channels, frames, sampleRate int) *Buffer {
	data := make([][]float32, channels)
	for ch := range channels {
		data[ch] = make([]float32, frames)
	}
	return &Buffer{Data: data, SampleRate: sampleRate}
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	return len(b.Data)
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the buffer duration at its sample rate.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	out := New(b.Channels(), b.Frames(), b.SampleRate)
	for ch := range b.Data {
		copy(out.Data[ch], b.Data[ch])
	}
	return out
}

// Slice returns a view of frames [start, end) sharing the underlying storage.
// Mutating the view mutates the parent.
func (b *Buffer) Slice(start, end int) (*Buffer, error) {
	if start < 0 || end > b.Frames() || start > end {
		return nil, fmt.Errorf("audiobuf: slice range [%d, %d) out of bounds for %d frames", start, end, b.Frames())
	}
	data := make([][]float32, b.Channels())
	for ch := range b.Data {
		data[ch] = b.Data[ch][start:end]
	}
	return &Buffer{Data: data, SampleRate: b.SampleRate}, nil
}

// Mono mixes all channels down to a single float64 slice for analysis.
// A mono buffer is converted without mixing.
func (b *Buffer) Mono() []float64 {
	frames := b.Frames()
	out := make([]float64, frames)
	channels := b.Channels()
	if channels == 0 {
		return out
	}
	if channels == 1 {
		for i, s := range b.Data[0] {
			out[i] = float64(s)
		}
		return out
	}
	scale := 1.0 / float64(channels)
	for ch := range b.Data {
		for i, s := range b.Data[ch] {
			out[i] += float64(s) * scale
		}
	}
	return out
}

// Channel64 converts one channel to float64 for analysis.
func (b *Buffer) Channel64(ch int) []float64 {
	out := make([]float64, b.Frames())
	for i, s := range b.Data[ch] {
		out[i] = float64(s)
	}
	return out
}

// Peak returns the maximum absolute sample value across all channels.
func (b *Buffer) Peak() float32 {
	var peak float32
	for ch := range b.Data {
		for _, s := range b.Data[ch] {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
	}
	return peak
}

// Clip limits every sample to [-1, 1] in place.
func (b *Buffer) Clip() {
	for ch := range b.Data {
		for i, s := range b.Data[ch] {
			if s > 1 {
				b.Data[ch][i] = 1
			} else if s < -1 {
				b.Data[ch][i] = -1
			}
		}
	}
}

// Append extends the buffer with the frames of other. Sample rates and channel
// counts must match.
func (b *Buffer) Append(other *Buffer) error {
	if other.Channels() != b.Channels() {
		return fmt.Errorf("audiobuf: channel mismatch %d != %d", other.Channels(), b.Channels())
	}
	if other.SampleRate != b.SampleRate {
		return fmt.Errorf("audiobuf: sample rate mismatch %d != %d", other.SampleRate, b.SampleRate)
	}
	for ch := range b.Data {
		b.Data[ch] = append(b.Data[ch], other.Data[ch]...)
	}
	return nil
}
