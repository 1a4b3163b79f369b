// Package sequencer orders analyzed tracks into a DJ set. Strategies walk
// a harmonic-compatibility graph over the Camelot wheel under BPM, energy,
// and genre constraints, and every ordering is scored with aggregate
// quality metrics.
package sequencer

import "fmt"

// Strategy is the closed set of ordering policies.
type Strategy int

const (
	HarmonicFlow Strategy = iota
	HarmonicFlowEnhanced
	WarmUp
	CoolDown
	PeakTimeEnhanced
	EnergyWaveEnhanced
	ConsistentEnhanced
	GenreFlow
	EmotionalJourney
	SmartHarmonic
)

var strategyNames = map[Strategy]string{
	HarmonicFlow:         "Harmonic Flow",
	HarmonicFlowEnhanced: "Harmonic Flow Enhanced",
	WarmUp:               "Warm-Up",
	CoolDown:             "Cool-Down",
	PeakTimeEnhanced:     "Peak-Time Enhanced",
	EnergyWaveEnhanced:   "Energy Wave Enhanced",
	ConsistentEnhanced:   "Consistent Enhanced",
	GenreFlow:            "Genre Flow",
	EmotionalJourney:     "Emotional Journey",
	SmartHarmonic:        "Smart Harmonic",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy resolves a strategy by its display name.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return HarmonicFlow, fmt.Errorf("unknown strategy %q", name)
}

// Strategies lists all strategies in declaration order.
func Strategies() []Strategy {
	out := make([]Strategy, 0, len(strategyNames))
	for s := HarmonicFlow; s <= SmartHarmonic; s++ {
		out = append(out, s)
	}
	return out
}

// Params are the numeric knobs shared by all strategies.
type Params struct {
	BPMTolerance       float64 // hard window for BPM-filtered strategies
	PeakPosition       float64 // percent of the playlist where energy peaks
	HarmonicStrictness int     // 1..10, scales the harmonic weight
	GenreWeight        float64 // 0..1, scales the genre factor
	AllowExperimental  bool    // permit distant wheel jumps at low score
}

// DefaultParams mirror a typical club set.
func DefaultParams() Params {
	return Params{
		BPMTolerance:       6,
		PeakPosition:       66,
		HarmonicStrictness: 5,
		GenreWeight:        0.5,
	}
}

func (p Params) normalized() Params {
	if p.BPMTolerance <= 0 {
		p.BPMTolerance = 6
	}
	if p.PeakPosition <= 0 || p.PeakPosition > 100 {
		p.PeakPosition = 66
	}
	if p.HarmonicStrictness < 1 {
		p.HarmonicStrictness = 1
	} else if p.HarmonicStrictness > 10 {
		p.HarmonicStrictness = 10
	}
	if p.GenreWeight < 0 {
		p.GenreWeight = 0
	} else if p.GenreWeight > 1 {
		p.GenreWeight = 1
	}
	return p
}
