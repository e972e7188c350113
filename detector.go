package sdrcore

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// detector runs the windowed-FFT power-spectral-density computation
// the PSD-worker thread applies to every ref-held buffer it consumes,
// per spec §5's thread table ("PSD-worker... runs smoothed-PSD, emits
// PSD messages") and §3's detector parameters (window size, window
// function, sample rate, decimation, alpha).
//
// Grounded on analyzer/source.c's su_smoothpsd integration point; the
// FFT and window itself are delegated to gonum, spec's out-of-scope
// "concrete DSP blocks" list does not cover spectral estimation, which
// is core analyzer behavior here.
type detector struct {
	mu sync.Mutex

	params detectorParams
	fft    *fourier.CmplxFFT
	win    []float64

	smoothed []float64
	n0       float64
}

func newDetector(p detectorParams) *detector {
	d := &detector{}
	d.rebuild(p)
	return d
}

// rebuild replaces the FFT plan and window coefficients for a new
// parameter set, per spec §4.10's "rebuild the detector if its
// parameter set changed."
func (d *detector) rebuild(p detectorParams) {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := p.windowSize
	if size <= 0 {
		size = 1024
	}
	d.params = p
	d.fft = fourier.NewCmplxFFT(size)
	d.win = windowCoefficients(p.windowFunc, size)
	d.smoothed = make([]float64, size)
}

func windowCoefficients(name string, size int) []float64 {
	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch name {
	case "hamming":
		window.Hamming(coeffs)
	case "blackman_harris", "blackmanharris":
		window.BlackmanHarris(coeffs)
	default: // "hann", "" and anything unrecognized fall back to Hann
		window.Hann(coeffs)
	}
	return coeffs
}

// feed applies the window, computes |X[k]|^2, and exponentially
// smooths it by alpha, returning the current smoothed PSD in
// natural-index order (DC-centered).
func (d *detector) feed(samples []complex64) (psd []float32, n0 float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := len(d.win)
	if len(samples) < size {
		return nil, d.n0
	}

	windowed := make([]complex128, size)
	for i := 0; i < size; i++ {
		windowed[i] = complex(real(samples[i])*d.win[i], imag(samples[i])*d.win[i])
	}

	spectrum := d.fft.Coefficients(nil, windowed)

	scale := 8.0 / 3.0 / float64(size)
	out := make([]float32, size)
	var noiseFloor float64
	for k, c := range spectrum {
		mag2 := cmplx.Abs(c) * cmplx.Abs(c) * scale
		shifted := (k + size/2) % size
		d.smoothed[shifted] = d.params.alpha*mag2 + (1-d.params.alpha)*d.smoothed[shifted]
		out[shifted] = float32(10 * math.Log10(d.smoothed[shifted]+1e-20))
		noiseFloor += d.smoothed[shifted]
	}
	d.n0 = noiseFloor / float64(size)

	return out, d.n0
}
