// Package analysis derives the track feature record from decoded PCM:
// tempo, tonality, energy, bass intensity, section structure, and the
// phrase-aligned mix points.
package analysis

import (
	"context"
	"fmt"
	"os"

	"harmonix/camelot"
	"harmonix/decode"
	"harmonix/dsp"
	"harmonix/track"
)

// DefaultSampleRate is the analysis rate all kernels assume.
const DefaultSampleRate = 22050

// DefaultBPM substitutes for tempo on silent material, where no onset
// periodicity exists to measure.
const DefaultBPM = 120.0

// Below this trimmed-RMS energy a signal is treated as silence: tempo and
// key confidence failures degrade to defaults instead of rejecting the
// file.
const silenceEnergyFloor = 1e-3

// Stage identifies the analysis phase that rejected a file.
type Stage string

const (
	StageDecode    Stage = "decode"
	StageTempo     Stage = "tempo"
	StageKey       Stage = "key"
	StageStructure Stage = "structure"
)

// StageError reports which stage could not produce a confident value.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AnalyzeFile decodes and analyzes one file. The returned record carries
// the file's current (size, mtime) fingerprint.
func AnalyzeFile(ctx context.Context, path string, sampleRate int) (*track.Track, error) {
	pcm, err := decode.File(ctx, path, sampleRate)
	if err != nil {
		return nil, &StageError{Stage: StageDecode, Err: err}
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, &StageError{Stage: StageDecode, Err: err}
	}

	t, err := AnalyzePCM(ctx, pcm, path)
	if err != nil {
		return nil, err
	}
	t.SizeBytes = st.Size()
	t.MtimeNS = st.ModTime().UnixNano()

	artist, title, genre := ResolveMetadata(path)
	t.Artist, t.Title, t.Genre = artist, title, genre
	return t, nil
}

// AnalyzePCM runs the feature extraction stages over an already decoded
// signal. The context is consulted between stages so an abandoned job
// stops burning CPU.
func AnalyzePCM(ctx context.Context, pcm decode.PCM, path string) (*track.Track, error) {
	energy := dsp.Energy(pcm.Samples, pcm.SampleRate)
	silent := energy < silenceEnergyFloor

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	onset := dsp.OnsetEnvelope(pcm.Samples, pcm.SampleRate)
	bpm, err := dsp.EstimateBPM(onset, pcm.SampleRate)
	if err != nil {
		if !silent {
			return nil, &StageError{Stage: StageTempo, Err: err}
		}
		bpm = DefaultBPM
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chroma := dsp.Chroma(pcm.Samples, pcm.SampleRate)
	root, mode, err := dsp.EstimateKey(chroma)
	if err != nil {
		if !silent {
			return nil, &StageError{Stage: StageKey, Err: err}
		}
		root, mode = "C", camelot.Major
	}
	code, ok := camelot.FromKey(root, mode)
	if !ok {
		return nil, &StageError{Stage: StageKey, Err: fmt.Errorf("no camelot code for %s %s", root, mode)}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bass := dsp.BassRatio(pcm.Samples, pcm.SampleRate)
	env := dsp.RMSFrames(pcm.Samples, pcm.SampleRate)
	sections, mixIn, mixOut, fallback := buildStructure(env, pcm.Duration, bpm)

	return &track.Track{
		Path:              path,
		DurationS:         pcm.Duration,
		BPM:               bpm,
		KeyRoot:           root,
		KeyMode:           mode,
		Camelot:           code,
		Energy:            energy,
		BassIntensity:     bass,
		Sections:          sections,
		MixInS:            mixIn,
		MixOutS:           mixOut,
		StructureFallback: fallback,
	}, nil
}
