// Package track defines the analyzed feature record that flows between the
// analyzer, the cache, the sequencer, and the exporters.
package track

import (
	"fmt"

	"harmonix/camelot"
)

// SectionLabel classifies a span of a track by its role in the arrangement.
type SectionLabel string

const (
	Intro     SectionLabel = "intro"
	Verse     SectionLabel = "verse"
	Breakdown SectionLabel = "breakdown"
	Drop      SectionLabel = "drop"
	Outro     SectionLabel = "outro"
)

// Section is one labeled span. Sections are contiguous and cover the whole
// track: each EndS equals the next StartS.
type Section struct {
	Label     SectionLabel `msgpack:"label"`
	StartS    float64      `msgpack:"start_s"`
	EndS      float64      `msgpack:"end_s"`
	StartBar  int          `msgpack:"start_bar"`
	EndBar    int          `msgpack:"end_bar"`
	AvgEnergy float64      `msgpack:"avg_energy"`
}

// Track is the feature record for one audio file. It is produced once by
// analysis, written once to the cache, and immutable afterwards.
type Track struct {
	Path      string `msgpack:"path"`
	SizeBytes int64  `msgpack:"size_bytes"`
	MtimeNS   int64  `msgpack:"mtime_ns"`

	Artist string `msgpack:"artist"`
	Title  string `msgpack:"title"`
	Genre  string `msgpack:"genre"`

	DurationS float64      `msgpack:"duration_s"`
	BPM       float64      `msgpack:"bpm"`
	KeyRoot   string       `msgpack:"key_root"`
	KeyMode   camelot.Mode `msgpack:"key_mode"`
	Camelot   string       `msgpack:"camelot"`

	Energy        float64 `msgpack:"energy"`
	BassIntensity float64 `msgpack:"bass_intensity"`

	Sections []Section `msgpack:"sections"`
	MixInS   float64   `msgpack:"mix_in_s"`
	MixOutS  float64   `msgpack:"mix_out_s"`

	StructureFallback bool `msgpack:"structure_fallback"`
}

// Validate checks the record invariants. Analysis output and cache reads
// are expected to pass.
func (t *Track) Validate() error {
	if t.Path == "" {
		return fmt.Errorf("track has no path")
	}
	if t.DurationS <= 0 {
		return fmt.Errorf("%s: non-positive duration %v", t.Path, t.DurationS)
	}
	if t.BPM < 40 || t.BPM > 220 {
		return fmt.Errorf("%s: bpm %v outside [40, 220]", t.Path, t.BPM)
	}
	if code, ok := camelot.FromKey(t.KeyRoot, t.KeyMode); !ok || code != t.Camelot {
		return fmt.Errorf("%s: camelot %q does not match key %s %s", t.Path, t.Camelot, t.KeyRoot, t.KeyMode)
	}
	if t.Energy < 0 || t.Energy > 1 {
		return fmt.Errorf("%s: energy %v outside [0, 1]", t.Path, t.Energy)
	}
	if t.BassIntensity < 0 || t.BassIntensity > 1 {
		return fmt.Errorf("%s: bass intensity %v outside [0, 1]", t.Path, t.BassIntensity)
	}
	if t.MixInS < 0 || t.MixInS >= t.MixOutS || t.MixOutS > t.DurationS {
		return fmt.Errorf("%s: mix points %v/%v outside 0 <= in < out <= %v",
			t.Path, t.MixInS, t.MixOutS, t.DurationS)
	}
	return t.validateSections()
}

func (t *Track) validateSections() error {
	if len(t.Sections) == 0 {
		return fmt.Errorf("%s: no sections", t.Path)
	}
	first, last := t.Sections[0], t.Sections[len(t.Sections)-1]
	if first.Label != Intro {
		return fmt.Errorf("%s: first section is %s, not intro", t.Path, first.Label)
	}
	if last.Label != Outro {
		return fmt.Errorf("%s: last section is %s, not outro", t.Path, last.Label)
	}
	if first.StartS != 0 {
		return fmt.Errorf("%s: sections start at %v, not 0", t.Path, first.StartS)
	}
	const eps = 1e-6
	if d := last.EndS - t.DurationS; d > eps || d < -eps {
		return fmt.Errorf("%s: sections end at %v, duration is %v", t.Path, last.EndS, t.DurationS)
	}
	for i := 1; i < len(t.Sections); i++ {
		prev, cur := t.Sections[i-1], t.Sections[i]
		if d := cur.StartS - prev.EndS; d > eps || d < -eps {
			return fmt.Errorf("%s: gap between sections %d and %d (%v != %v)",
				t.Path, i-1, i, prev.EndS, cur.StartS)
		}
	}
	return nil
}
