package sequencer

import (
	"math"
	"strings"

	"harmonix/track"
)

// Transition is the suggested mix window between two consecutive playlist
// entries: when to start fading the outgoing track, where the incoming one
// enters, and how risky the blend is.
type Transition struct {
	Index        int
	From         *track.Track
	To           *track.Track
	FadeOutStart float64
	FadeOutEnd   float64
	FadeInStart  float64
	Overlap      float64
	BPMDelta     float64
	EnergyDelta  float64
	Compat       float64
	Risk         string
	Notes        string
}

const defaultOverlapS = 12.0

// Transitions derives mix recommendations for each adjacent pair of the
// playlist.
func Transitions(playlist []*track.Track, strategy Strategy, p Params) []Transition {
	p = p.normalized()
	if len(playlist) < 2 {
		return nil
	}
	n := len(playlist)
	out := make([]Transition, 0, n-1)
	for i := 0; i < n-1; i++ {
		cur, next := playlist[i], playlist[i+1]

		overlap := defaultOverlapS
		if shorter := math.Min(cur.DurationS, next.DurationS); shorter > 0 {
			overlap = math.Min(overlap, math.Max(6, shorter*0.2))
		}

		fadeOutStart := math.Max(0, cur.MixOutS-overlap)
		fadeInStart := math.Max(0, next.MixInS-overlap/2)

		compat := Score(cur, next, i+1, n, strategy, p)
		bpmDelta := next.BPM - cur.BPM
		energyDelta := next.Energy - cur.Energy

		out = append(out, Transition{
			Index:        i,
			From:         cur,
			To:           next,
			FadeOutStart: fadeOutStart,
			FadeOutEnd:   cur.MixOutS,
			FadeInStart:  fadeInStart,
			Overlap:      cur.MixOutS - fadeOutStart,
			BPMDelta:     bpmDelta,
			EnergyDelta:  energyDelta,
			Compat:       compat,
			Risk:         riskLevel(compat, bpmDelta, energyDelta, p.BPMTolerance),
			Notes:        transitionNotes(compat, bpmDelta, energyDelta, p.BPMTolerance),
		})
	}
	return out
}

func riskLevel(compat, bpmDelta, energyDelta, tolerance float64) string {
	switch {
	case math.Abs(bpmDelta) > tolerance || compat < 50:
		return "high"
	case compat >= 80 && math.Abs(energyDelta) <= 0.2:
		return "low"
	case math.Abs(energyDelta) > 0.35 && compat < 70:
		return "high"
	case compat >= 70:
		return "medium-low"
	}
	return "medium"
}

func transitionNotes(compat, bpmDelta, energyDelta, tolerance float64) string {
	var parts []string
	switch {
	case energyDelta > 0.12:
		parts = append(parts, "energy lift")
	case energyDelta < -0.12:
		parts = append(parts, "energy dip")
	default:
		parts = append(parts, "energy steady")
	}
	if math.Abs(bpmDelta) > tolerance {
		parts = append(parts, "beatmatch manually")
	}
	switch {
	case compat >= 80:
		parts = append(parts, "harmonic safe zone")
	case compat >= 60:
		parts = append(parts, "monitor harmony")
	default:
		parts = append(parts, "consider alternative")
	}
	return strings.Join(parts, "; ")
}
