package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"harmonix/decode"
	"harmonix/track"
)

const testSampleRate = 22050

func silencePCM(seconds float64) decode.PCM {
	n := int(seconds * testSampleRate)
	return decode.PCM{
		Samples:    make([]float32, n),
		SampleRate: testSampleRate,
		Duration:   seconds,
	}
}

func clickPCM(bpm, seconds float64) decode.PCM {
	n := int(seconds * testSampleRate)
	x := make([]float32, n)
	period := 60.0 / bpm
	for t := 0.0; t < seconds; t += period {
		start := int(t * testSampleRate)
		for i := 0; i < 256 && start+i < n; i++ {
			decay := math.Exp(-float64(i) / 32.0)
			x[start+i] += float32(decay * math.Sin(2*math.Pi*1000*float64(i)/testSampleRate))
		}
	}
	return decode.PCM{Samples: x, SampleRate: testSampleRate, Duration: seconds}
}

func TestAnalyzePCMSilenceFallback(t *testing.T) {
	pcm := silencePCM(180)
	got, err := AnalyzePCM(context.Background(), pcm, "/music/silence.wav")
	if err != nil {
		t.Fatalf("AnalyzePCM: %v", err)
	}
	if !got.StructureFallback {
		t.Error("expected StructureFallback flag")
	}
	if got.BPM != DefaultBPM {
		t.Errorf("bpm = %v, want default %v", got.BPM, DefaultBPM)
	}
	// phrase = 16 bars at 120 BPM = 32 s; mix-in min(32, 27) = 27,
	// mix-out max(180-32, 153) = 153.
	if math.Abs(got.MixInS-27) > 0.5 {
		t.Errorf("mix-in = %v, want ~27", got.MixInS)
	}
	if math.Abs(got.MixOutS-153) > 0.5 {
		t.Errorf("mix-out = %v, want ~153", got.MixOutS)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("record invalid: %v", err)
	}
}

func TestAnalyzePCMClickTrack(t *testing.T) {
	got, err := AnalyzePCM(context.Background(), clickPCM(128, 10), "/music/click.wav")
	if err != nil {
		t.Fatalf("AnalyzePCM: %v", err)
	}
	if got.BPM < 127.5 || got.BPM > 128.5 {
		t.Errorf("bpm = %v, want 128 +/- 0.5", got.BPM)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("record invalid: %v", err)
	}
	if got.MixInS >= got.MixOutS {
		t.Errorf("mix points inverted: %v >= %v", got.MixInS, got.MixOutS)
	}
}

func TestAnalyzePCMCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := AnalyzePCM(ctx, clickPCM(128, 10), "/music/click.wav"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuildStructureLabels(t *testing.T) {
	// 300 one-second frames shaped like a club track: quiet intro, verse,
	// loud drop, quiet breakdown, second drop, outro.
	levels := []struct {
		level float64
		n     int
	}{
		{0.02, 40},  // intro
		{0.15, 60},  // verse
		{0.35, 60},  // drop
		{0.03, 40},  // breakdown
		{0.30, 60},  // second peak
		{0.02, 40},  // outro
	}
	var env []float64
	for _, l := range levels {
		for i := 0; i < l.n; i++ {
			env = append(env, l.level)
		}
	}
	duration := float64(len(env))
	sections, mixIn, mixOut, fallback := buildStructure(env, duration, 120)
	if fallback {
		t.Fatal("unexpected fallback")
	}
	if len(sections) < 4 {
		t.Fatalf("got %d sections, want >= 4", len(sections))
	}
	if sections[0].Label != track.Intro {
		t.Errorf("first section = %s", sections[0].Label)
	}
	if sections[len(sections)-1].Label != track.Outro {
		t.Errorf("last section = %s", sections[len(sections)-1].Label)
	}
	var haveDrop bool
	for _, s := range sections[1 : len(sections)-1] {
		if s.Label == track.Drop {
			haveDrop = true
		}
	}
	if !haveDrop {
		t.Error("no drop labeled")
	}

	// Mix points sit on 16-bar phrase boundaries (32 s at 120 BPM) within
	// their halves of the track.
	phrase := 32.0
	if mixIn > duration/2 {
		t.Errorf("mix-in %v beyond midpoint", mixIn)
	}
	if mixOut < duration/2 || mixOut > duration {
		t.Errorf("mix-out %v outside [%v, %v]", mixOut, duration/2, duration)
	}
	if r := math.Mod(mixIn, phrase); r > 1e-9 && mixIn != duration/2 {
		t.Errorf("mix-in %v not phrase aligned", mixIn)
	}
	if r := math.Mod(mixOut, phrase); r > 1e-9 && mixOut != duration/2 {
		t.Errorf("mix-out %v not phrase aligned", mixOut)
	}

	// Contiguity.
	for i := 1; i < len(sections); i++ {
		if sections[i].StartS != sections[i-1].EndS {
			t.Errorf("gap between sections %d and %d", i-1, i)
		}
	}
	if sections[0].StartS != 0 || sections[len(sections)-1].EndS != duration {
		t.Error("sections do not cover the track")
	}
}

func TestParseFilename(t *testing.T) {
	cases := []struct {
		in            string
		artist, title string
		ok            bool
	}{
		{"Boris Brejcha - Purple Noise.mp3", "Boris Brejcha", "Purple Noise", true},
		{"03 - Tale Of Us - Nova.flac", "Tale Of Us", "Nova", true},
		{"Adam_Beyer_Your_Mind.wav", "Adam", "Beyer_Your_Mind", true},
		{"Artist-Title.aiff", "Artist", "Title", true},
		{"plaintitle.mp3", "", "", false},
		{"042 - Solo.mp3", "", "", false},
	}
	for _, c := range cases {
		artist, title, ok := ParseFilename(c.in)
		if ok != c.ok {
			t.Errorf("ParseFilename(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if !ok {
			continue
		}
		if artist != c.artist || title != c.title {
			t.Errorf("ParseFilename(%q) = %q, %q; want %q, %q", c.in, artist, title, c.artist, c.title)
		}
	}
}

func TestResolveMetadataUnknowns(t *testing.T) {
	artist, title, genre := ResolveMetadata("/music/justaname.wav")
	if artist != UnknownField || title != UnknownField || genre != UnknownField {
		t.Errorf("got %q %q %q, want all %q", artist, title, genre, UnknownField)
	}
	artist, title, _ = ResolveMetadata("/music/Charlotte de Witte - Doppler.wav")
	if artist != "Charlotte de Witte" || title != "Doppler" {
		t.Errorf("filename fallback failed: %q / %q", artist, title)
	}
}
