package sequencer

import (
	"fmt"
	"math"
	"sort"

	"harmonix/track"
)

// Event is a non-fatal sequencing occurrence, currently only widened
// constraints.
type Event struct {
	Step   int
	Detail string
}

// Result bundles the ordered playlist with its quality metrics and any
// relaxation events.
type Result struct {
	Playlist []*track.Track
	Metrics  Metrics
	Events   []Event
}

// Sequence orders tracks under the given strategy. It always returns a
// permutation of the input: when a strategy's hard filter rejects every
// remaining candidate, the filter widens monotonically instead of
// aborting.
func Sequence(tracks []*track.Track, strategy Strategy, p Params) Result {
	p = p.normalized()
	if len(tracks) == 0 {
		// Empty input reports every metric as zero; the undefined-compat
		// sentinel is reserved for single-track playlists.
		return Result{Playlist: []*track.Track{}, Metrics: Metrics{}}
	}

	pool := make([]*track.Track, len(tracks))
	copy(pool, tracks)

	var playlist []*track.Track
	var events []Event

	switch strategy {
	case WarmUp:
		playlist = sortByTempo(pool, false)
	case CoolDown:
		playlist = sortByTempo(pool, true)
	case GenreFlow:
		playlist, events = genreFlow(pool, p)
	case EmotionalJourney:
		playlist, events = emotionalJourney(pool, p)
	default:
		playlist, events = greedyChain(pool, strategy, p)
	}

	return Result{
		Playlist: playlist,
		Metrics:  computeMetrics(playlist, strategy, p),
		Events:   events,
	}
}

// sortByTempo implements Warm-Up and its dual: BPM first, energy as the
// tie-break, path as the deterministic last resort.
func sortByTempo(pool []*track.Track, descending bool) []*track.Track {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if descending {
			a, b = b, a
		}
		if a.BPM != b.BPM {
			return a.BPM < b.BPM
		}
		if a.Energy != b.Energy {
			return a.Energy < b.Energy
		}
		return pool[i].Path < pool[j].Path
	})
	return pool
}

// seedTrack picks the deterministic opener: lowest BPM, then lowest
// energy, then lexicographic path.
func seedTrack(pool []*track.Track) int {
	best := 0
	for i := 1; i < len(pool); i++ {
		a, b := pool[i], pool[best]
		switch {
		case a.BPM != b.BPM:
			if a.BPM < b.BPM {
				best = i
			}
		case a.Energy != b.Energy:
			if a.Energy < b.Energy {
				best = i
			}
		case a.Path < b.Path:
			best = i
		}
	}
	return best
}

// pickFunc rates candidate cand as the track at position pos, given the
// current tail prev and the rest of the pool.
type pickFunc func(prev, cand *track.Track, pos int, rest []*track.Track) float64

// greedyChain is the shared iterative-append loop: seed, then repeatedly
// take the best-scoring candidate inside the BPM window, widening the
// window by 1 BPM whenever it empties.
func greedyChain(pool []*track.Track, strategy Strategy, p Params) ([]*track.Track, []Event) {
	n := len(pool)
	pick := pickerFor(strategy, p, n)
	return chainWith(pool, p, pick)
}

func chainWith(pool []*track.Track, p Params, pick pickFunc) ([]*track.Track, []Event) {
	var events []Event

	seed := seedTrack(pool)
	playlist := []*track.Track{pool[seed]}
	pool = append(pool[:seed], pool[seed+1:]...)

	for len(pool) > 0 {
		pos := len(playlist)
		prev := playlist[len(playlist)-1]

		window := p.BPMTolerance
		var candidates []int
		for {
			candidates = candidates[:0]
			for i, c := range pool {
				if math.Abs(c.BPM-prev.BPM) <= window {
					candidates = append(candidates, i)
				}
			}
			if len(candidates) > 0 {
				break
			}
			window++
			events = append(events, Event{
				Step:   pos,
				Detail: fmt.Sprintf("constraint_relaxed: bpm window widened to %.0f", window),
			})
		}

		bestIdx := candidates[0]
		bestScore := math.Inf(-1)
		for _, i := range candidates {
			rest := restExcluding(pool, i)
			s := pick(prev, pool[i], pos, rest)
			if s > bestScore || (s == bestScore && pool[i].Path < pool[bestIdx].Path) {
				bestScore = s
				bestIdx = i
			}
		}
		playlist = append(playlist, pool[bestIdx])
		pool = append(pool[:bestIdx], pool[bestIdx+1:]...)
	}
	return playlist, events
}

func restExcluding(pool []*track.Track, skip int) []*track.Track {
	rest := make([]*track.Track, 0, len(pool)-1)
	for i, c := range pool {
		if i != skip {
			rest = append(rest, c)
		}
	}
	return rest
}

func pickerFor(strategy Strategy, p Params, n int) pickFunc {
	switch strategy {
	case HarmonicFlowEnhanced:
		// One-step lookahead: reward candidates that leave a good exit.
		return func(prev, cand *track.Track, pos int, rest []*track.Track) float64 {
			s := Score(prev, cand, pos, n, strategy, p)
			best := 0.0
			for _, x := range rest {
				if v := Score(cand, x, pos+1, n, strategy, p); v > best {
					best = v
				}
			}
			return s + 0.5*best
		}
	case ConsistentEnhanced:
		// Cost-driven: minimize tempo and energy jumps, harmonic
		// preference as the tie-break.
		return func(prev, cand *track.Track, pos int, rest []*track.Track) float64 {
			cost := math.Abs(prev.BPM-cand.BPM) + 20*math.Abs(prev.Energy-cand.Energy)
			return -cost + HarmonicScore(prev.Camelot, cand.Camelot, p.AllowExperimental)/1000
		}
	case SmartHarmonic:
		// Conservative opening: strictness decays 10 -> 5 across the set.
		return func(prev, cand *track.Track, pos int, rest []*track.Track) float64 {
			strictness := 10.0
			if n > 2 {
				strictness = 10 - 5*float64(pos-1)/float64(n-2)
			}
			return scoreWithStrictness(prev, cand, pos, n, strategy, p, int(math.Round(strictness)))
		}
	default:
		return func(prev, cand *track.Track, pos int, rest []*track.Track) float64 {
			return Score(prev, cand, pos, n, strategy, p)
		}
	}
}

// genreFlow clusters by genre, orders clusters by mean energy, and runs
// the harmonic chain inside each cluster.
func genreFlow(pool []*track.Track, p Params) ([]*track.Track, []Event) {
	clusters := map[string][]*track.Track{}
	for _, t := range pool {
		g := canonicalGenre(t.Genre)
		clusters[g] = append(clusters[g], t)
	}

	type cluster struct {
		genre      string
		tracks     []*track.Track
		meanEnergy float64
	}
	ordered := make([]cluster, 0, len(clusters))
	for g, ts := range clusters {
		sum := 0.0
		for _, t := range ts {
			sum += t.Energy
		}
		ordered = append(ordered, cluster{genre: g, tracks: ts, meanEnergy: sum / float64(len(ts))})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].meanEnergy != ordered[j].meanEnergy {
			return ordered[i].meanEnergy < ordered[j].meanEnergy
		}
		return ordered[i].genre < ordered[j].genre
	})

	var playlist []*track.Track
	var events []Event
	for _, c := range ordered {
		sub, ev := chainWith(c.tracks, p, pickerFor(HarmonicFlow, p, len(c.tracks)))
		playlist = append(playlist, sub...)
		events = append(events, ev...)
	}
	return playlist, events
}

// emotionalJourney partitions the set by energy into intro, build, peak,
// and cool phases and chains each phase harmonically with the phase's
// energy direction.
func emotionalJourney(pool []*track.Track, p Params) ([]*track.Track, []Event) {
	n := len(pool)
	byEnergy := make([]*track.Track, n)
	copy(byEnergy, pool)
	sort.SliceStable(byEnergy, func(i, j int) bool {
		if byEnergy[i].Energy != byEnergy[j].Energy {
			return byEnergy[i].Energy < byEnergy[j].Energy
		}
		return byEnergy[i].Path < byEnergy[j].Path
	})

	introN := n * 20 / 100
	buildN := n * 30 / 100
	peakN := n * 25 / 100
	if n > 0 && introN == 0 {
		introN = 1
		if introN+buildN+peakN > n {
			buildN = 0
			peakN = 0
		}
	}
	coolN := n - introN - buildN - peakN

	intro := byEnergy[:introN]
	build := byEnergy[introN : introN+buildN]
	cool := byEnergy[introN+buildN : introN+buildN+coolN]
	peak := byEnergy[introN+buildN+coolN:]

	phases := []struct {
		tracks    []*track.Track
		direction int
	}{
		{intro, 1},
		{build, 1},
		{peak, 0},
		{cool, -1},
	}

	var playlist []*track.Track
	var events []Event
	for _, phase := range phases {
		if len(phase.tracks) == 0 {
			continue
		}
		want := phase.direction
		pick := func(prev, cand *track.Track, pos int, rest []*track.Track) float64 {
			base := Score(prev, cand, pos, n, HarmonicFlow, p)
			return base + 0.15*energyDirectionScore(prev, cand, want)
		}
		sub, ev := chainWith(phase.tracks, p, pick)
		playlist = append(playlist, sub...)
		events = append(events, ev...)
	}
	return playlist, events
}
