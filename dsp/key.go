package dsp

import (
	"errors"
	"math"

	"github.com/montanaflynn/stats"

	"harmonix/camelot"
)

const (
	chromaFrameSize = 4096
	chromaHopSize   = 2048

	// Pitched content below ~C2 or above ~C8 contributes mostly noise to
	// the chroma estimate.
	chromaMinHz = 65.0
	chromaMaxHz = 4000.0

	// Reference for pitch-class mapping: C4.
	middleCHz = 261.63
)

// Krumhansl-Schmuckler key profiles, C first.
var (
	majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// ErrNoTonality is returned when the chroma vector carries no energy to
// correlate against the key profiles.
var ErrNoTonality = errors.New("no tonal content for key estimation")

// Chroma accumulates a 12-bin pitch-class profile over the middle 80% of
// the signal, skipping the untypical intro and outro material.
func Chroma(x []float32, sampleRate int) [12]float64 {
	var chroma [12]float64
	start := len(x) / 10
	end := len(x) - len(x)/10
	if end-start < chromaFrameSize {
		start, end = 0, len(x)
	}
	spec := STFT(x[start:end], chromaFrameSize, chromaHopSize)
	for _, frame := range spec {
		for bin := 1; bin < len(frame); bin++ {
			freq := BinFrequency(bin, chromaFrameSize, sampleRate)
			if freq < chromaMinHz || freq > chromaMaxHz {
				continue
			}
			semitones := 12 * math.Log2(freq/middleCHz)
			pc := ((int(math.Round(semitones)) % 12) + 12) % 12
			chroma[pc] += frame[bin]
		}
	}
	return chroma
}

// EstimateKey correlates the chroma vector with all 24 rotated key
// profiles and returns the best match.
func EstimateKey(chroma [12]float64) (root string, mode camelot.Mode, err error) {
	total := 0.0
	for _, v := range chroma {
		total += v
	}
	if total < 1e-9 {
		return "", camelot.Minor, ErrNoTonality
	}

	bestCorr := math.Inf(-1)
	bestRoot := ""
	bestMode := camelot.Minor
	for rot := 0; rot < 12; rot++ {
		rolled := make([]float64, 12)
		for i := 0; i < 12; i++ {
			rolled[i] = chroma[(i+rot)%12]
		}
		if corr, err := stats.Pearson(rolled, majorProfile); err == nil && corr > bestCorr {
			bestCorr = corr
			bestRoot = camelot.Notes[rot]
			bestMode = camelot.Major
		}
		if corr, err := stats.Pearson(rolled, minorProfile); err == nil && corr > bestCorr {
			bestCorr = corr
			bestRoot = camelot.Notes[rot]
			bestMode = camelot.Minor
		}
	}
	if bestRoot == "" {
		return "", camelot.Minor, ErrNoTonality
	}
	return bestRoot, bestMode, nil
}
