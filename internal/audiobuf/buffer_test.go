package audiobuf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampBuffer(channels, frames int) *Buffer {
	b := New(channels, frames, 48000)
	for ch := range b.Data {
		for i := range b.Data[ch] {
			b.Data[ch][i] = float32(ch*frames + i)
		}
	}
	return b
}

func TestNewAndAccessors(t *testing.T) {
	b := New(2, 480, 48000)
	assert.Equal(t, 2, b.Channels())
	assert.Equal(t, 480, b.Frames())
	assert.Equal(t, 10*time.Millisecond, b.Duration())

	empty := &Buffer{}
	assert.Equal(t, 0, empty.Channels())
	assert.Equal(t, 0, empty.Frames())
}

func TestCloneIsIndependent(t *testing.T) {
	b := rampBuffer(2, 16)
	c := b.Clone()
	c.Data[0][0] = 99

	assert.Equal(t, float32(0), b.Data[0][0], "clone must not alias the source")
	assert.Equal(t, b.Frames(), c.Frames())
	assert.Equal(t, b.SampleRate, c.SampleRate)
}

func TestSliceSharesStorage(t *testing.T) {
	b := rampBuffer(2, 16)
	v, err := b.Slice(4, 12)
	require.NoError(t, err)
	assert.Equal(t, 8, v.Frames())
	assert.Equal(t, float32(4), v.Data[0][0])

	v.Data[0][0] = -1
	assert.Equal(t, float32(-1), b.Data[0][4], "slice is a view, not a copy")

	_, err = b.Slice(-1, 8)
	assert.Error(t, err)
	_, err = b.Slice(0, 17)
	assert.Error(t, err)
	_, err = b.Slice(10, 4)
	assert.Error(t, err)
}

func TestMonoMixdown(t *testing.T) {
	b := New(2, 4, 48000)
	for i := range b.Data[0] {
		b.Data[0][i] = 1
		b.Data[1][i] = -1
	}
	mono := b.Mono()
	for _, s := range mono {
		assert.InDelta(t, 0.0, s, 1e-9, "equal and opposite channels cancel")
	}

	m := New(1, 4, 48000)
	m.Data[0][2] = 0.5
	assert.InDelta(t, 0.5, m.Mono()[2], 1e-9)
}

func TestPeakAndClip(t *testing.T) {
	b := New(2, 4, 48000)
	b.Data[0][1] = -1.5
	b.Data[1][3] = 0.75
	assert.Equal(t, float32(1.5), b.Peak())

	b.Clip()
	assert.Equal(t, float32(-1), b.Data[0][1])
	assert.Equal(t, float32(0.75), b.Data[1][3])
	assert.LessOrEqual(t, b.Peak(), float32(1))
}

func TestAppend(t *testing.T) {
	a := rampBuffer(2, 8)
	b := rampBuffer(2, 4)
	require.NoError(t, a.Append(b))
	assert.Equal(t, 12, a.Frames())
	assert.Equal(t, float32(0), a.Data[0][8], "appended frames follow the original")

	mono := New(1, 4, 48000)
	assert.Error(t, a.Append(mono), "channel mismatch must fail")

	wrongRate := New(2, 4, 44100)
	assert.Error(t, a.Append(wrongRate), "rate mismatch must fail")
}

func TestChunkFrames(t *testing.T) {
	c := &Chunk{
		Data:        New(2, 100, 48000),
		StartSample: 400,
		EndSample:   500,
		SampleRate:  48000,
		IsLast:      true,
	}
	assert.Equal(t, 100, c.Frames())
	assert.Equal(t, int64(c.Frames()), c.EndSample-c.StartSample)
}
