package tts

import (
	"context"
	"errors"
)

// Request is one validated synthesis request.
type Request struct {
	Text  string
	Voice string
	Speed float64
	Lang  string
}

// Chunk is one incremental unit of synthesized audio. Samples are mono
// float32 in [-1, 1].
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Engine produces audio for a request incrementally.
//
// SynthesizeStream sends chunks on out in playback order and closes out
// before it returns. It returns nil once the audio is exhausted and an error
// if synthesis failed; a chunk is either sent whole or not at all. When ctx is
// done the engine stops producing and returns ctx.Err().
type Engine interface {
	SynthesizeStream(ctx context.Context, req Request, out chan<- Chunk) error
}

// ErrUnsupportedVoice is returned for voices missing from the catalog.
var ErrUnsupportedVoice = errors.New("unsupported voice")

// EngineError reports a synthesis failure. Its message is what the client
// sees.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return "synthesis failed"
	}
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error { return e.Err }
