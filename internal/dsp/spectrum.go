package dsp

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// FullScale is the magnitude of a full-scale signed 16 bit sample.
const FullScale = 32768.0

// FFTShift returns the FFT output shifted so that DC is centered.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	if n == 0 {
		return []complex128{}
	}
	half := n / 2
	shifted := make([]complex128, 0, n)
	shifted = append(shifted, data[half:]...)
	return append(shifted, data[:half]...)
}

// Analyzer computes windowed power spectra of fixed-size blocks. The window
// and FFT plan are built once and reused.
type Analyzer struct {
	mu        sync.Mutex
	windowFn  WindowFunc
	window    []float64
	windowSum float64
	size      int
	fft       *fourier.CmplxFFT
}

// NewAnalyzer creates an analyzer for blocks of size samples using a
// Blackman-Harris window.
func NewAnalyzer(size int) *Analyzer {
	return NewAnalyzerWindow(size, BlackmanHarris)
}

// NewAnalyzerWindow creates an analyzer with the given window function.
func NewAnalyzerWindow(size int, fn WindowFunc) *Analyzer {
	if fn == nil {
		fn = BlackmanHarris
	}
	a := &Analyzer{windowFn: fn}
	a.Resize(size)
	return a
}

// Resize rebuilds the cached window and FFT plan.
func (a *Analyzer) Resize(size int) {
	if size < 2 {
		size = 2
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.size = size
	a.window = a.windowFn(size)
	a.windowSum = floats.Sum(a.window)
	a.fft = fourier.NewCmplxFFT(size)
}

// Size returns the block size.
func (a *Analyzer) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// PowerDB returns the DC-centered spectrum of samples in dB relative to full
// scale. Samples are raw 16 bit values; a short block is zero padded and a
// long one truncated.
func (a *Analyzer) PowerDB(samples []complex64) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	block := make([]complex64, a.size)
	copy(block, samples)
	windowed := ApplyWindow(block, a.window)
	coeffs := a.fft.Coefficients(nil, windowed)
	for i := range coeffs {
		coeffs[i] /= complex(a.windowSum, 0)
	}

	shifted := FFTShift(coeffs)
	out := make([]float64, len(shifted))
	for i, v := range shifted {
		mag := cmplx.Abs(v) / FullScale
		out[i] = DbPower(mag * mag)
	}
	return out
}

// PeakBin returns the index of the largest value, or -1 for an empty slice.
func PeakBin(bins []float64) int {
	best, idx := math.Inf(-1), -1
	for i, v := range bins {
		if v > best {
			best, idx = v, i
		}
	}
	return idx
}
