package sequencer

import (
	"math"

	"github.com/montanaflynn/stats"

	"harmonix/track"
)

// MeanCompatUndefined is reported instead of NaN when a playlist has no
// adjacent pair to score.
const MeanCompatUndefined = -1

// Metrics are the aggregate quality numbers for one ordering.
type Metrics struct {
	MeanCompat        float64
	HarmonicHitRate   float64
	BPMJumpMax        float64
	BPMJumpP95        float64
	BPMJumpMean       float64
	EnergyCorrelation float64
	GenreSwitches     int
}

func computeMetrics(playlist []*track.Track, strategy Strategy, p Params) Metrics {
	n := len(playlist)
	if n < 2 {
		// One track has no adjacent pair: mean compatibility is undefined,
		// reported as the sentinel rather than NaN.
		return Metrics{MeanCompat: MeanCompatUndefined}
	}

	pairs := n - 1
	compat := make([]float64, pairs)
	jumps := make([]float64, pairs)
	hits := 0
	switches := 0
	for i := 0; i < pairs; i++ {
		a, b := playlist[i], playlist[i+1]
		compat[i] = Score(a, b, i+1, n, strategy, p)
		jumps[i] = math.Abs(a.BPM - b.BPM)
		if HarmonicScore(a.Camelot, b.Camelot, p.AllowExperimental) >= 70 {
			hits++
		}
		if canonicalGenre(a.Genre) != canonicalGenre(b.Genre) {
			switches++
		}
	}

	m := Metrics{
		HarmonicHitRate: float64(hits) / float64(pairs),
		GenreSwitches:   switches,
	}
	if v, err := stats.Mean(compat); err == nil {
		m.MeanCompat = v
	}
	if v, err := stats.Max(jumps); err == nil {
		m.BPMJumpMax = v
	}
	if v, err := stats.Percentile(jumps, 95); err == nil {
		m.BPMJumpP95 = v
	} else {
		m.BPMJumpP95 = m.BPMJumpMax
	}
	if v, err := stats.Mean(jumps); err == nil {
		m.BPMJumpMean = v
	}

	realized := make([]float64, n)
	for i, t := range playlist {
		realized[i] = t.Energy
	}
	intended := intendedCurve(strategy, n, p)
	if v, err := stats.Pearson(realized, intended); err == nil && !math.IsNaN(v) {
		m.EnergyCorrelation = v
	}
	return m
}

// intendedCurve is the energy shape a strategy aims for, sampled per
// playlist position.
func intendedCurve(strategy Strategy, n int, p Params) []float64 {
	curve := make([]float64, n)
	if n == 1 {
		return curve
	}
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		switch strategy {
		case WarmUp:
			curve[i] = x
		case CoolDown:
			curve[i] = 1 - x
		case PeakTimeEnhanced, EmotionalJourney:
			peak := p.PeakPosition / 100
			if peak <= 0 || peak >= 1 {
				peak = 0.66
			}
			if x <= peak {
				curve[i] = math.Sin(x / peak * math.Pi / 2)
			} else {
				curve[i] = math.Sin((1 + (x-peak)/(1-peak)) * math.Pi / 2)
			}
		case EnergyWaveEnhanced:
			if i%2 == 0 {
				curve[i] = 0
			} else {
				curve[i] = 1
			}
		default:
			// Flat intent: correlation degenerates and reports 0.
			curve[i] = 0.5
		}
	}
	return curve
}
