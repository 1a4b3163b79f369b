package dsp

import (
	"math"
	"testing"
)

const testSampleRate = 22050

// clickTrack synthesizes an impulse train at the given BPM: a short burst
// of decaying noise-free ticks, the classic metronome test signal.
func clickTrack(bpm float64, seconds float64, sr int) []float32 {
	n := int(seconds * float64(sr))
	x := make([]float32, n)
	period := 60.0 / bpm
	for t := 0.0; t < seconds; t += period {
		start := int(t * float64(sr))
		for i := 0; i < 256 && start+i < n; i++ {
			decay := math.Exp(-float64(i) / 32.0)
			x[start+i] += float32(decay * math.Sin(2*math.Pi*1000*float64(i)/float64(sr)))
		}
	}
	return x
}

func sineMix(freqs []float64, seconds float64, sr int) []float32 {
	n := int(seconds * float64(sr))
	x := make([]float32, n)
	for i := 0; i < n; i++ {
		v := 0.0
		for _, f := range freqs {
			v += math.Sin(2 * math.Pi * f * float64(i) / float64(sr))
		}
		x[i] = float32(v / float64(len(freqs)))
	}
	return x
}

func TestEstimateBPMClickTrack(t *testing.T) {
	x := clickTrack(128.0, 10, testSampleRate)
	onset := OnsetEnvelope(x, testSampleRate)
	bpm, err := EstimateBPM(onset, testSampleRate)
	if err != nil {
		t.Fatalf("EstimateBPM: %v", err)
	}
	if bpm < 127.5 || bpm > 128.5 {
		t.Errorf("bpm = %v, want 128.0 +/- 0.5", bpm)
	}
}

func TestEstimateBPMSilence(t *testing.T) {
	x := make([]float32, 10*testSampleRate)
	onset := OnsetEnvelope(x, testSampleRate)
	if _, err := EstimateBPM(onset, testSampleRate); err == nil {
		t.Fatal("expected low-confidence failure on silence")
	}
}

func TestEstimateKeyAMinorTriad(t *testing.T) {
	// A3 + C4 + E4: the A minor triad.
	x := sineMix([]float64{220.0, 261.63, 329.63}, 3, testSampleRate)
	chroma := Chroma(x, testSampleRate)
	root, mode, err := EstimateKey(chroma)
	if err != nil {
		t.Fatalf("EstimateKey: %v", err)
	}
	if root != "A" || mode.String() != "Minor" {
		t.Errorf("key = %s %s, want A Minor", root, mode)
	}
}

func TestEstimateKeySilence(t *testing.T) {
	var chroma [12]float64
	if _, _, err := EstimateKey(chroma); err == nil {
		t.Fatal("expected ErrNoTonality on empty chroma")
	}
}

func TestEnergyScaling(t *testing.T) {
	silence := make([]float32, 5*testSampleRate)
	if e := Energy(silence, testSampleRate); e != 0 {
		t.Errorf("silence energy = %v, want 0", e)
	}

	loud := make([]float32, 5*testSampleRate)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 1
		} else {
			loud[i] = -1
		}
	}
	if e := Energy(loud, testSampleRate); e != 1 {
		t.Errorf("full-scale energy = %v, want clamped 1", e)
	}

	quiet := sineMix([]float64{440}, 5, testSampleRate)
	for i := range quiet {
		quiet[i] *= 0.1
	}
	e := Energy(quiet, testSampleRate)
	if e <= 0 || e >= 1 {
		t.Errorf("sine energy = %v, want inside (0, 1)", e)
	}
}

func TestBassRatioBounds(t *testing.T) {
	bassHeavy := sineMix([]float64{60}, 3, testSampleRate)
	trebleHeavy := sineMix([]float64{4000}, 3, testSampleRate)

	b := BassRatio(bassHeavy, testSampleRate)
	tr := BassRatio(trebleHeavy, testSampleRate)
	if b < 0 || b > 1 || tr < 0 || tr > 1 {
		t.Fatalf("ratios out of range: %v %v", b, tr)
	}
	if b <= tr {
		t.Errorf("60 Hz ratio (%v) should exceed 4 kHz ratio (%v)", b, tr)
	}
	if b < 0.8 {
		t.Errorf("pure 60 Hz tone bass ratio = %v, want near 1", b)
	}
}

func TestSegmentEnvelopeSteps(t *testing.T) {
	// Five plateaus of 60 frames each.
	levels := []float64{0.1, 0.6, 0.9, 0.3, 0.1}
	var env []float64
	for _, l := range levels {
		for i := 0; i < 60; i++ {
			env = append(env, l)
		}
	}
	cuts := SegmentEnvelope(env, 8, 10)
	if len(cuts) != len(levels)-1 {
		t.Fatalf("got %d cuts (%v), want %d", len(cuts), cuts, len(levels)-1)
	}
	for i, want := range []int{60, 120, 180, 240} {
		if diff := cuts[i] - want; diff < -2 || diff > 2 {
			t.Errorf("cut %d at %d, want ~%d", i, cuts[i], want)
		}
	}
}

func TestSegmentEnvelopeFlat(t *testing.T) {
	env := make([]float64, 300)
	for i := range env {
		env[i] = 0.5
	}
	if cuts := SegmentEnvelope(env, 8, 10); len(cuts) != 0 {
		t.Errorf("flat envelope produced cuts %v", cuts)
	}
}

func TestSmoothEnvelope(t *testing.T) {
	env := []float64{0, 0, 10, 0, 0}
	sm := SmoothEnvelope(env, 3)
	if sm[2] >= 10 {
		t.Errorf("peak not smoothed: %v", sm)
	}
	total, smoothedTotal := 0.0, 0.0
	for i := range env {
		total += env[i]
		smoothedTotal += sm[i]
	}
	if math.Abs(total-smoothedTotal) > 1.0 {
		t.Errorf("smoothing lost mass: %v -> %v", total, smoothedTotal)
	}
}
