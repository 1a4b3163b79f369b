package dsp

import (
	"math"
	"sort"
)

const (
	bassFrameSize = 2048
	bassHopSize   = 512
	bassMinHz     = 20.0
	bassMaxHz     = 200.0

	// Fraction trimmed from each end before averaging frame energies.
	rmsTrimFraction = 0.05

	// Full-scale RMS of club-mastered material rarely exceeds this; it is
	// the reference for the [0, 1] energy scale.
	rmsFullScale = 0.4
)

// RMSFrames computes root-mean-square energy over non-overlapping
// one-second frames.
func RMSFrames(x []float32, sampleRate int) []float64 {
	if sampleRate <= 0 || len(x) == 0 {
		return nil
	}
	n := len(x) / sampleRate
	if n == 0 {
		n = 1
	}
	frames := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		start := i * sampleRate
		end := start + sampleRate
		if end > len(x) {
			end = len(x)
		}
		sum := 0.0
		for _, s := range x[start:end] {
			sum += float64(s) * float64(s)
		}
		frames = append(frames, math.Sqrt(sum/float64(end-start)))
	}
	return frames
}

// TrimmedMean averages x after dropping the lowest and highest trim
// fraction of values.
func TrimmedMean(x []float64, trim float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	drop := int(float64(len(s)) * trim)
	s = s[drop : len(s)-drop]
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

// Energy reports the trimmed mean RMS scaled to [0, 1].
func Energy(x []float32, sampleRate int) float64 {
	frames := RMSFrames(x, sampleRate)
	mean := TrimmedMean(frames, rmsTrimFraction)
	return clamp01(mean / rmsFullScale)
}

// BassRatio reports the share of spectral magnitude in the 20-200 Hz band,
// averaged over STFT frames and clamped to [0, 1].
func BassRatio(x []float32, sampleRate int) float64 {
	spec := STFT(x, bassFrameSize, bassHopSize)
	if len(spec) == 0 {
		return 0
	}
	lowBin := int(math.Ceil(bassMinHz * float64(bassFrameSize) / float64(sampleRate)))
	highBin := int(math.Floor(bassMaxHz * float64(bassFrameSize) / float64(sampleRate)))
	if lowBin < 1 {
		lowBin = 1
	}
	sum := 0.0
	counted := 0
	for _, frame := range spec {
		total := 0.0
		bass := 0.0
		for bin := lowBin; bin < len(frame); bin++ {
			total += frame[bin]
			if bin <= highBin {
				bass += frame[bin]
			}
		}
		if total > 1e-12 {
			sum += bass / total
			counted++
		}
	}
	if counted == 0 {
		return 0
	}
	return clamp01(sum / float64(counted))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
