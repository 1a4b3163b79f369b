package analysis

import (
	"math"
	"sort"

	"harmonix/dsp"
	"harmonix/track"
)

const (
	// Envelope geometry for structure detection: the RMS envelope runs at
	// one frame per second.
	envFramesPerSecond = 1.0
	envSmoothWindow    = 5

	maxSections       = 8
	minSectionSeconds = 8

	barsPerPhrase = 16
	beatsPerBar   = 4

	// RMS reference shared with the energy scale.
	sectionRMSFullScale = 0.4
)

// buildStructure segments the energy envelope, labels the sections, and
// places the mix points on phrase boundaries. When segmentation yields
// fewer than three sections it falls back to fixed fractional mix points
// and flags the record.
func buildStructure(env []float64, durationS, bpm float64) (sections []track.Section, mixIn, mixOut float64, fallback bool) {
	tBar := 240.0 / bpm // seconds per 4/4 bar
	phrase := barsPerPhrase * tBar

	smoothed := dsp.SmoothEnvelope(env, envSmoothWindow)
	minLen := int(minSectionSeconds * envFramesPerSecond)
	if minLen < 2 {
		minLen = 2
	}
	cuts := dsp.SegmentEnvelope(smoothed, maxSections, minLen)

	bounds := make([]float64, 0, len(cuts)+2)
	bounds = append(bounds, 0)
	for _, c := range cuts {
		bounds = append(bounds, float64(c)/envFramesPerSecond)
	}
	bounds = append(bounds, durationS)

	if len(bounds)-1 < 3 {
		return fallbackStructure(durationS, phrase, tBar, smoothed)
	}

	energies := make([]float64, len(bounds)-1)
	for i := range energies {
		energies[i] = segmentEnergy(smoothed, bounds[i], bounds[i+1])
	}
	labels := labelSections(energies)

	sections = make([]track.Section, len(labels))
	for i := range labels {
		sections[i] = track.Section{
			Label:     labels[i],
			StartS:    bounds[i],
			EndS:      bounds[i+1],
			StartBar:  int(math.Round(bounds[i] / tBar)),
			EndBar:    int(math.Round(bounds[i+1] / tBar)),
			AvgEnergy: energies[i],
		}
	}

	introEnd := sections[0].EndS
	outroStart := sections[len(sections)-1].StartS

	mixIn = math.Ceil(introEnd/phrase) * phrase
	if mixIn > durationS/2 {
		mixIn = durationS / 2
	}
	mixOut = math.Floor(outroStart/phrase) * phrase
	if mixOut < durationS/2 {
		mixOut = durationS / 2
	}
	if mixOut > durationS {
		mixOut = durationS
	}
	if mixIn >= mixOut {
		// Degenerate geometry on very short tracks.
		mixIn = durationS * 0.15
		mixOut = durationS * 0.85
	}
	return sections, mixIn, mixOut, false
}

// fallbackStructure is used when the envelope carries too little shape to
// segment: fixed fractional mix points, a single verse between intro and
// outro bounds.
func fallbackStructure(durationS, phrase, tBar float64, env []float64) ([]track.Section, float64, float64, bool) {
	mixIn := math.Min(phrase, durationS*0.15)
	mixOut := math.Max(durationS-phrase, durationS*0.85)
	if mixOut <= mixIn {
		mixIn = durationS * 0.15
		mixOut = durationS * 0.85
	}

	bounds := []float64{0, mixIn, mixOut, durationS}
	labels := []track.SectionLabel{track.Intro, track.Verse, track.Outro}
	sections := make([]track.Section, len(labels))
	for i := range labels {
		sections[i] = track.Section{
			Label:     labels[i],
			StartS:    bounds[i],
			EndS:      bounds[i+1],
			StartBar:  int(math.Round(bounds[i] / tBar)),
			EndBar:    int(math.Round(bounds[i+1] / tBar)),
			AvgEnergy: segmentEnergy(env, bounds[i], bounds[i+1]),
		}
	}
	return sections, mixIn, mixOut, true
}

// labelSections applies the fixed rule: first intro, last outro, the most
// energetic middle section is the drop, quiet sections flanked by louder
// neighbors are breakdowns, everything else a verse.
func labelSections(energies []float64) []track.SectionLabel {
	n := len(energies)
	labels := make([]track.SectionLabel, n)
	for i := range labels {
		labels[i] = track.Verse
	}
	labels[0] = track.Intro
	labels[n-1] = track.Outro
	if n <= 2 {
		return labels
	}

	dropIdx := 1
	for i := 2; i < n-1; i++ {
		if energies[i] > energies[dropIdx] {
			dropIdx = i
		}
	}
	labels[dropIdx] = track.Drop

	med := medianOf(energies)
	for i := 1; i < n-1; i++ {
		if labels[i] != track.Verse {
			continue
		}
		if energies[i] < med/2 && energies[i-1] > energies[i] && energies[i+1] > energies[i] {
			labels[i] = track.Breakdown
		}
	}
	return labels
}

func segmentEnergy(env []float64, startS, endS float64) float64 {
	lo := int(startS * envFramesPerSecond)
	hi := int(endS * envFramesPerSecond)
	if hi > len(env) {
		hi = len(env)
	}
	if lo >= hi {
		if lo >= len(env) {
			return 0
		}
		hi = lo + 1
	}
	sum := 0.0
	for _, v := range env[lo:hi] {
		sum += v
	}
	mean := sum / float64(hi-lo)
	scaled := mean / sectionRMSFullScale
	if scaled > 1 {
		scaled = 1
	}
	if scaled < 0 {
		scaled = 0
	}
	return scaled
}

func medianOf(x []float64) float64 {
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
