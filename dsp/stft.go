// Package dsp holds the numerical kernels behind track analysis: short-time
// spectra, onset envelopes, tempo autocorrelation, chroma, and envelope
// segmentation. Everything operates on mono float32 PCM.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Hann returns the n-point Hann window.
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// STFT computes the magnitude spectrogram of x with the given frame and hop
// sizes. Each row holds the n/2 positive-frequency bin magnitudes.
func STFT(x []float32, n, hop int) [][]float64 {
	win := Hann(n)
	fft := fourier.NewFFT(n)
	return stftWithPlan(x, n, hop, win, fft)
}

func stftWithPlan(x []float32, n, hop int, win []float64, fft *fourier.FFT) [][]float64 {
	if n <= 0 || hop <= 0 {
		panic("bad stft params")
	}
	frames := 1 + int(math.Max(0, float64(len(x)-n))/float64(hop))
	if len(x) < n {
		frames = 1
	}
	spec := make([][]float64, frames)
	buf := make([]float64, n)
	for i := 0; i < frames; i++ {
		start := i * hop
		for k := 0; k < n; k++ {
			if start+k < len(x) {
				buf[k] = float64(x[start+k]) * win[k]
			} else {
				buf[k] = 0
			}
		}
		out := fft.Coefficients(nil, buf)
		mags := make([]float64, n/2)
		for k := 0; k < n/2; k++ {
			mags[k] = math.Hypot(real(out[k]), imag(out[k]))
		}
		spec[i] = mags
	}
	return spec
}

// BinFrequency converts a bin index of an n-point transform into Hz.
func BinFrequency(bin, n, sampleRate int) float64 {
	return float64(bin) * float64(sampleRate) / float64(n)
}
