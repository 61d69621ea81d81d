// Package stream turns an engine's incremental output into the ordered frame
// sequence sent to a client.
package stream

import (
	"context"
	"errors"
	"io"

	"github.com/example/kokoro-stream/internal/tts"
)

// Sequence is a lazy, forward-only view of one synthesis. The engine runs in
// its own goroutine and hands over one chunk at a time; nothing is buffered
// beyond the chunk being delivered.
type Sequence struct {
	ctx    context.Context
	cancel context.CancelFunc
	chunks chan tts.Chunk
	errc   chan error

	finished bool
	err      error
}

// Open starts synthesis of req on engine. The returned Sequence must be
// closed.
func Open(ctx context.Context, engine tts.Engine, req tts.Request) *Sequence {
	ctx, cancel := context.WithCancel(ctx)
	s := &Sequence{
		ctx:    ctx,
		cancel: cancel,
		chunks: make(chan tts.Chunk),
		errc:   make(chan error, 1),
	}
	go func() { s.errc <- engine.SynthesizeStream(ctx, req, s.chunks) }()
	return s
}

// Next blocks until the engine produces the next chunk. It returns io.EOF
// once the engine is exhausted, a *tts.EngineError if synthesis failed, and
// ctx.Err() if ctx ends first. After io.EOF or an engine error every call
// returns the same error.
func (s *Sequence) Next(ctx context.Context) (tts.Chunk, error) {
	if s.finished {
		return tts.Chunk{}, s.err
	}

	select {
	case c, ok := <-s.chunks:
		if ok {
			return c, nil
		}
		s.finish(<-s.errc)
		return tts.Chunk{}, s.err
	case <-ctx.Done():
		return tts.Chunk{}, ctx.Err()
	}
}

func (s *Sequence) finish(err error) {
	s.finished = true

	var engineErr *tts.EngineError
	switch {
	case err == nil:
		s.err = io.EOF
	case s.ctx.Err() != nil && errors.Is(err, s.ctx.Err()):
		s.err = err
	case errors.As(err, &engineErr):
		s.err = err
	default:
		s.err = &tts.EngineError{Err: err}
	}
}

// Close stops the engine if it is still producing and waits for it to
// return.
func (s *Sequence) Close() {
	s.cancel()
	if s.finished {
		return
	}
	for range s.chunks {
	}
	s.finish(<-s.errc)
}
