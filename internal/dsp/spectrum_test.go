package dsp

import (
	"math"
	"testing"
)

func TestFFTShift(t *testing.T) {
	in := []complex128{0, 1, 2, 3}
	out := FFTShift(in)
	want := []complex128{2, 3, 0, 1}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("index %d expected %v got %v", i, want[i], out[i])
		}
	}
	if in[0] != 0 {
		t.Fatalf("input must not be modified")
	}
	if len(FFTShift(nil)) != 0 {
		t.Fatalf("expected empty output")
	}
}

func TestAnalyzerFindsTone(t *testing.T) {
	const n = 64
	a := NewAnalyzer(n)
	samples := make([]complex64, n)
	for i := range samples {
		phase := 2 * math.Pi * 8 * float64(i) / n
		samples[i] = complex64(complex(16384*math.Cos(phase), 16384*math.Sin(phase)))
	}
	bins := a.PowerDB(samples)
	if len(bins) != n {
		t.Fatalf("expected %d bins got %d", n, len(bins))
	}
	if got := PeakBin(bins); got != n/2+8 {
		t.Fatalf("expected peak at %d got %d", n/2+8, got)
	}
	// half-scale tone, window gain already normalized out
	if math.Abs(bins[n/2+8]-(-6.02)) > 0.1 {
		t.Fatalf("unexpected peak level %.2f dB", bins[n/2+8])
	}
}

func TestAnalyzerResize(t *testing.T) {
	a := NewAnalyzer(128)
	if a.Size() != 128 {
		t.Fatalf("size mismatch: %d", a.Size())
	}
	a.Resize(32)
	if got := len(a.PowerDB(make([]complex64, 10))); got != 32 {
		t.Fatalf("expected padded block of 32 bins, got %d", got)
	}
}

func TestPeakBinEmpty(t *testing.T) {
	if PeakBin(nil) != -1 {
		t.Fatalf("expected -1 for empty input")
	}
}

func TestAnalyzerWithHammingStillFindsTone(t *testing.T) {
	const n = 64
	a := NewAnalyzerWindow(n, Hamming)
	block := make([]complex64, n)
	for i := range block {
		phase := 2 * math.Pi * 4 * float64(i) / n
		block[i] = complex64(complex(16384*math.Cos(phase), 16384*math.Sin(phase)))
	}
	if got := PeakBin(a.PowerDB(block)); got != n/2+4 {
		t.Fatalf("expected peak at %d, got %d", n/2+4, got)
	}
}
