package dsp

import (
	"errors"
	"math"
	"sort"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// Onset envelope frame geometry.
	onsetFrameSize = 2048
	onsetHopSize   = 512

	// Tempo search range and the band favored by the lag weighting.
	minBPM      = 40.0
	maxBPM      = 220.0
	biasLowBPM  = 90.0
	biasHighBPM = 150.0
	biasCenter  = 120.0

	// The winning autocorrelation peak must rise above the median of the
	// lag scores by at least this ratio of the median envelope value.
	tempoProminenceRatio = 0.1
)

// ErrLowConfidence is returned when the onset envelope carries no usable
// periodicity, e.g. on silence or unpitched noise.
var ErrLowConfidence = errors.New("tempo estimate below confidence threshold")

// OnsetEnvelope computes a positive spectral-flux envelope: per frame, the
// sum of magnitude increases over the previous frame.
func OnsetEnvelope(x []float32, sampleRate int) []float64 {
	spec := STFT(x, onsetFrameSize, onsetHopSize)
	if len(spec) < 2 {
		return nil
	}
	onset := make([]float64, len(spec))
	for i := 1; i < len(spec); i++ {
		flux := 0.0
		for b, m := range spec[i] {
			if d := m - spec[i-1][b]; d > 0 {
				flux += d
			}
		}
		onset[i] = flux
	}
	return onset
}

// OnsetFramesPerSecond is the envelope sample rate for a given PCM rate.
func OnsetFramesPerSecond(sampleRate int) float64 {
	return float64(sampleRate) / float64(onsetHopSize)
}

// EstimateBPM picks the tempo whose lag maximizes the weighted envelope
// autocorrelation, corrects octave errors, and refines the winning lag to
// sub-frame precision. The result is rounded to one decimal.
func EstimateBPM(onset []float64, sampleRate int) (float64, error) {
	if len(onset) < 8 {
		return 0, ErrLowConfidence
	}
	frameRate := OnsetFramesPerSecond(sampleRate)
	corr := autocorrelate(onset)

	minLag := int(math.Ceil(frameRate * 60.0 / maxBPM))
	maxLag := int(math.Floor(frameRate * 60.0 / minBPM))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(corr) {
		maxLag = len(corr) - 1
	}
	if maxLag <= minLag {
		return 0, ErrLowConfidence
	}

	score := func(lag int) float64 {
		bpm := frameRate * 60.0 / float64(lag)
		return corr[lag] * lagWeight(bpm)
	}

	bestLag := minLag
	for lag := minLag + 1; lag <= maxLag; lag++ {
		if score(lag) > score(bestLag) {
			bestLag = lag
		}
	}

	// Octave correction on the raw candidate: a sub-80 tempo whose double
	// scores within 10% is almost always a halved detection, and vice versa
	// above 180.
	bestBPM := frameRate * 60.0 / float64(bestLag)
	if bestBPM < 80 {
		if lag := bestLag / 2; lag >= minLag && corr[lag] >= 0.9*corr[bestLag] {
			bestLag = lag
		}
	} else if bestBPM > 180 {
		if lag := bestLag * 2; lag <= maxLag && corr[lag] >= 0.9*corr[bestLag] {
			bestLag = lag
		}
	}

	if !prominentEnough(corr[minLag:maxLag+1], corr[bestLag], onset) {
		return 0, ErrLowConfidence
	}

	lag := refineLag(corr, bestLag)
	bpm := frameRate * 60.0 / lag
	if bpm < minBPM || bpm > maxBPM {
		return 0, ErrLowConfidence
	}
	return math.Round(bpm*10) / 10, nil
}

// lagWeight is a triangular bias toward the common DJ tempo band, peaking
// at 120 BPM and flat outside [90, 150].
func lagWeight(bpm float64) float64 {
	if bpm < biasLowBPM || bpm > biasHighBPM {
		return 1.0
	}
	return 1.0 + 0.5*(1.0-math.Abs(bpm-biasCenter)/(biasCenter-biasLowBPM))
}

func prominentEnough(window []float64, peak float64, onset []float64) bool {
	med := median(window)
	prominence := peak - med
	floor := tempoProminenceRatio * median(onset)
	if floor < 1e-12 {
		floor = 1e-12
	}
	return prominence >= floor
}

func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

// refineLag recovers the fractional lag the integer grid cannot express:
// the centroid of the baseline-subtracted correlation mass around the
// peak. On sharply periodic material the true period splits its weight
// between two neighboring integer lags, and the centroid lands between
// them.
func refineLag(corr []float64, lag int) float64 {
	lo := lag - 2
	if lo < 0 {
		lo = 0
	}
	hi := lag + 2
	if hi >= len(corr) {
		hi = len(corr) - 1
	}
	base := corr[lo]
	for i := lo; i <= hi; i++ {
		if corr[i] < base {
			base = corr[i]
		}
	}
	num, den := 0.0, 0.0
	for i := lo; i <= hi; i++ {
		w := corr[i] - base
		num += w * float64(i)
		den += w
	}
	if den < 1e-12 {
		return float64(lag)
	}
	return num / den
}

// autocorrelate computes the full autocorrelation of x via the
// Wiener-Khinchin route: FFT, power spectrum, inverse FFT.
func autocorrelate(x []float64) []float64 {
	n := len(x)
	size := nextPow2(2 * n)
	padded := make([]float64, size)
	copy(padded, x)
	spec := fft.FFTReal(padded)
	for i, c := range spec {
		re := real(c)
		im := imag(c)
		spec[i] = complex(re*re+im*im, 0)
	}
	inv := fft.IFFT(spec)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = real(inv[i])
	}
	return out
}

func nextPow2(n int) int {
	v := 1
	for v < n {
		v <<= 1
	}
	return v
}
