package audiobuf

// Chunk is one window of a streamed file. Adjacent chunks overlap by the
// loader's guard band; StartSample/EndSample are positions in the resampled
// stream, so EndSample-StartSample equals the chunk's frame count and the
// first overlap samples duplicate the tail of the previous chunk.
type Chunk struct {
	Data        *Buffer
	StartSample int64
	EndSample   int64
	SampleRate  int
	IsLast      bool
}

// Frames returns the chunk's frame count.
func (c *Chunk) Frames() int {
	return c.Data.Frames()
}
