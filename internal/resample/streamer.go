package resample

// Streamer converts one channel between rates incrementally. It carries the
// interpolation history and fractional phase across Push calls, so feeding a
// signal block by block produces exactly the samples Channel produces on the
// whole signal: no edge clamping or length rounding at block boundaries.
type Streamer struct {
	fromRate, toRate int
	step             float64

	// buf holds pending input; buf[0] is absolute input index base.
	buf  []float32
	base int64

	totalIn  int64
	outIndex int64
}

// NewStreamer returns a streamer converting fromRate to toRate.
func NewStreamer(fromRate, toRate int) *Streamer {
	return &Streamer{
		fromRate: fromRate,
		toRate:   toRate,
		step:     float64(fromRate) / float64(toRate),
	}
}

// Push appends input samples and returns the output samples that are fully
// determined by the input seen so far. Matching rates pass the input through.
func (s *Streamer) Push(in []float32) []float32 {
	if s.fromRate == s.toRate {
		return in
	}
	s.buf = append(s.buf, in...)
	s.totalIn += int64(len(in))
	return s.emit(false)
}

// Flush returns the trailing samples held back by Push, interpolated with
// the same right-edge clamp the one-shot converter applies. After Flush the
// total output length equals OutputLen over all pushed input.
func (s *Streamer) Flush() []float32 {
	if s.fromRate == s.toRate {
		return nil
	}
	out := s.emit(true)
	s.buf = nil
	return out
}

// emit produces outputs whose 4-point support is available, or, when last,
// everything remaining with edge clamping.
func (s *Streamer) emit(last bool) []float32 {
	newest := s.base + int64(len(s.buf)) - 1
	total := int64(OutputLen(int(s.totalIn), s.fromRate, s.toRate))

	var out []float32
	for s.outIndex < total {
		pos := float64(s.outIndex) * s.step
		idx := int64(pos)
		if !last && idx+2 > newest {
			break
		}
		frac := pos - float64(idx)
		out = append(out, float32(interpolate(s.buf, int(idx-s.base), frac)))
		s.outIndex++
	}

	if !last {
		// Drop input behind the next output's history point.
		keepFrom := int64(float64(s.outIndex)*s.step) - 1
		if keepFrom > s.base {
			n := keepFrom - s.base
			if n > int64(len(s.buf)) {
				n = int64(len(s.buf))
			}
			s.buf = append(s.buf[:0], s.buf[n:]...)
			s.base += n
		}
	}
	return out
}
