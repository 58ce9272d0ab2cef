package render

import (
	"github.com/tphakala/simd/c128"
	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Convolution constants.
const (
	// Below this kernel length direct SIMD convolution beats the FFT path.
	minKernelForFFT = 400

	// Base FFT block size; grows to fit long impulse responses.
	baseFFTBlockSize = 512
)

// fftConvolver performs overlap-save convolution against a fixed impulse
// response. The IR spectrum is computed once; per-block work is two FFTs and
// a complex multiply.
type fftConvolver struct {
	fft       *fourier.FFT
	fftSize   int
	blockSize int // valid output samples per block

	kernelFFT []complex128
	kernelLen int
	scale     float64 // gonum's inverse transform is unnormalized

	signalBlock []float64
	signalFFT   []complex128
	productFFT  []complex128
	ifftResult  []float64
}

func newFFTConvolver(kernel []float64) *fftConvolver {
	kernelLen := len(kernel)
	if kernelLen == 0 {
		return nil
	}

	fftSize := baseFFTBlockSize
	for fftSize < 2*kernelLen {
		fftSize *= 2
	}
	blockSize := fftSize - kernelLen + 1
	fft := fourier.NewFFT(fftSize)

	// The kernel is stored reversed so the circular product realizes a
	// convolution rather than a correlation.
	kernelPadded := make([]float64, fftSize)
	for i := range kernelLen {
		kernelPadded[i] = kernel[kernelLen-1-i]
	}
	fftLen := fftSize/2 + 1

	return &fftConvolver{
		fft:         fft,
		fftSize:     fftSize,
		blockSize:   blockSize,
		kernelFFT:   fft.Coefficients(nil, kernelPadded),
		kernelLen:   kernelLen,
		scale:       1.0 / float64(fftSize),
		signalBlock: make([]float64, fftSize),
		signalFFT:   make([]complex128, fftLen),
		productFFT:  make([]complex128, fftLen),
		ifftResult:  make([]float64, fftSize),
	}
}

// convolve writes the valid convolution of signal into dst, which must hold
// len(signal)-kernelLen+1 samples. The first kernelLen-1 samples of each
// block wrap circularly and are discarded.
func (c *fftConvolver) convolve(dst, signal []float64) {
	outputLen := len(signal) - c.kernelLen + 1
	if outputLen <= 0 || len(dst) < outputLen {
		return
	}

	overlap := c.kernelLen - 1
	outIdx := 0
	for outIdx < outputLen {
		for i := range c.signalBlock {
			c.signalBlock[i] = 0
		}
		copyLen := c.fftSize
		if outIdx+copyLen > len(signal) {
			copyLen = len(signal) - outIdx
		}
		copy(c.signalBlock, signal[outIdx:outIdx+copyLen])

		c.signalFFT = c.fft.Coefficients(c.signalFFT, c.signalBlock)
		c128.Mul(c.productFFT, c.signalFFT, c.kernelFFT)
		c.ifftResult = c.fft.Sequence(c.ifftResult, c.productFFT)
		f64.Scale(c.ifftResult, c.ifftResult, c.scale)

		validSamples := c.blockSize
		if outIdx+validSamples > outputLen {
			validSamples = outputLen - outIdx
		}
		copy(dst[outIdx:outIdx+validSamples], c.ifftResult[overlap:overlap+validSamples])
		outIdx += validSamples
	}
}

// convolveTail computes the first len(signal) samples of the full
// convolution of signal with kernel, which is what a reverb tail needs.
// The signal is padded in front so every output aligns with its input
// sample; the tail past the input length is dropped. The convolver slides a
// dot product, so the kernel is reversed here to realize a convolution.
func convolveTail(signal, kernel []float64) []float64 {
	if len(signal) == 0 || len(kernel) == 0 {
		return make([]float64, len(signal))
	}
	padded := make([]float64, len(kernel)-1+len(signal))
	copy(padded[len(kernel)-1:], signal)

	reversed := make([]float64, len(kernel))
	for i, v := range kernel {
		reversed[len(kernel)-1-i] = v
	}

	out := make([]float64, len(signal))
	if len(reversed) < minKernelForFFT {
		f64.ConvolveValid(out, padded, reversed)
		return out
	}
	conv := newFFTConvolver(reversed)
	conv.convolve(out, padded)
	return out
}
