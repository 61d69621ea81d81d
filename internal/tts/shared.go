package tts

import (
	"context"
	"fmt"
	"log/slog"
)

// Shared is the single engine handle injected into every session. It bounds
// concurrent synthesis and rejects voices missing from the catalog before
// the underlying engine is asked for audio.
type Shared struct {
	engine Engine
	voices *VoiceManager
	sem    chan struct{}
	log    *slog.Logger
}

type SharedOption func(*Shared)

// WithConcurrency sets the maximum number of streams synthesized at once.
// n <= 0 removes the limit.
func WithConcurrency(n int) SharedOption {
	return func(s *Shared) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		} else {
			s.sem = nil
		}
	}
}

// WithVoices validates request voices against vm.
func WithVoices(vm *VoiceManager) SharedOption {
	return func(s *Shared) { s.voices = vm }
}

func WithEngineLogger(l *slog.Logger) SharedOption {
	return func(s *Shared) { s.log = l }
}

func NewShared(engine Engine, opts ...SharedOption) *Shared {
	s := &Shared{
		engine: engine,
		sem:    make(chan struct{}, 1),
		log:    slog.Default(),
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

func (s *Shared) SynthesizeStream(ctx context.Context, req Request, out chan<- Chunk) error {
	if s.voices != nil && !s.voices.Has(req.Voice) {
		close(out)
		return fmt.Errorf("%w %q", ErrUnsupportedVoice, req.Voice)
	}

	// Acquire a synthesis slot; waiting has no deadline but honours ctx.
	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			close(out)
			return ctx.Err()
		}
		defer func() { <-s.sem }()
	}

	s.log.DebugContext(ctx, "synthesis started",
		slog.String("voice", req.Voice),
		slog.String("lang", req.Lang),
		slog.Float64("speed", req.Speed),
		slog.Int("text_len", len(req.Text)),
	)

	return s.engine.SynthesizeStream(ctx, req, out)
}
