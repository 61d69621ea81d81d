package tts

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/example/kokoro-stream/internal/text"
)

// ToneEngine is a model-free engine that renders one sine chunk per
// sentence. It needs no model artifacts, which makes it useful for smoke
// tests and client development.
type ToneEngine struct {
	SampleRate     int
	Frequency      float64
	Amplitude      float64
	SecondsPerRune float64
	// MaxSegmentRunes packs short sentences into one chunk; 0 renders
	// every sentence separately.
	MaxSegmentRunes int
}

func NewToneEngine() *ToneEngine {
	return &ToneEngine{
		SampleRate:     24000,
		Frequency:      220,
		Amplitude:      0.2,
		SecondsPerRune: 0.06,
	}
}

func (e *ToneEngine) SynthesizeStream(ctx context.Context, req Request, out chan<- Chunk) error {
	defer close(out)

	speed := req.Speed
	if speed <= 0 {
		speed = 1
	}

	// offset keeps the phase continuous across chunks.
	offset := 0
	for _, sentence := range text.Segments(req.Text, e.MaxSegmentRunes) {
		runes := utf8.RuneCountInString(sentence)
		n := int(float64(runes) * e.SecondsPerRune * float64(e.SampleRate) / speed)
		if n == 0 {
			continue
		}

		samples := make([]float32, n)
		for i := range samples {
			t := float64(offset+i) / float64(e.SampleRate)
			samples[i] = float32(e.Amplitude * math.Sin(2*math.Pi*e.Frequency*t))
		}
		offset += n

		select {
		case out <- Chunk{Samples: samples, SampleRate: e.SampleRate}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
