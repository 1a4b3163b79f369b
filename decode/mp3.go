package decode

import (
	"fmt"
	"io"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// mp3Decode reads an MP3 natively, downmixes the interleaved stereo output
// to mono, and resamples linearly to the target rate.
func mp3Decode(path string, sampleRate int) (PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCM{}, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return PCM{}, fmt.Errorf("mp3 decode: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("mp3 decode: %w", err)
	}

	// The decoder always emits 16-bit little-endian stereo frames.
	frames := len(raw) / 4
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(uint16(raw[4*i]) | uint16(raw[4*i+1])<<8)
		r := int16(uint16(raw[4*i+2]) | uint16(raw[4*i+3])<<8)
		mono[i] = (float32(l) + float32(r)) / 2 / 32768.0
	}

	srcRate := dec.SampleRate()
	samples := resampleLinear(mono, srcRate, sampleRate)
	return PCM{
		Samples:    samples,
		SampleRate: sampleRate,
		Duration:   float64(frames) / float64(srcRate),
	}, nil
}

func resampleLinear(x []float32, from, to int) []float32 {
	if from == to || len(x) == 0 {
		return x
	}
	n := int(float64(len(x)) * float64(to) / float64(from))
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	for i := 0; i < n; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(x)-1 {
			out[i] = x[len(x)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = x[j]*(1-frac) + x[j+1]*frac
	}
	return out
}
