// Package testutil provides test doubles and assertions shared by the
// streaming tests, plus skip helpers for integration tests that need a real
// synthesis worker.
//
// Typical usage:
//
//	eng := testutil.NewScriptedEngine(
//	    testutil.Chunk(24000, 0, 0.5),
//	    testutil.Chunk(24000, -0.5, 1),
//	)
//	eng.Gate, eng.GateAt = make(chan struct{}), 1 // hold the second chunk
package testutil

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"testing"

	"github.com/example/kokoro-stream/internal/tts"
	"github.com/mattn/go-shellwords"
)

// Chunk builds a tts.Chunk.
func Chunk(rate int, samples ...float32) tts.Chunk {
	return tts.Chunk{Samples: samples, SampleRate: rate}
}

// ScriptedEngine is a tts.Engine that replays fixed chunks and then returns
// Err. When Gate is set, the engine waits for Gate to close before sending
// chunk GateAt (GateAt == len(Chunks) holds the final result).
type ScriptedEngine struct {
	Chunks []tts.Chunk
	Err    error
	Gate   chan struct{}
	GateAt int

	mu       sync.Mutex
	requests []tts.Request
	once     sync.Once
	stopped  chan struct{}
}

func NewScriptedEngine(chunks ...tts.Chunk) *ScriptedEngine {
	return &ScriptedEngine{Chunks: chunks}
}

func (e *ScriptedEngine) SynthesizeStream(ctx context.Context, req tts.Request, out chan<- tts.Chunk) error {
	defer close(out)

	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	for i := 0; i <= len(e.Chunks); i++ {
		if e.Gate != nil && i == e.GateAt {
			select {
			case <-e.Gate:
			case <-ctx.Done():
				e.markStopped()
				return ctx.Err()
			}
		}
		if i == len(e.Chunks) {
			break
		}

		select {
		case out <- e.Chunks[i]:
		case <-ctx.Done():
			e.markStopped()
			return ctx.Err()
		}
	}

	return e.Err
}

// Calls returns how many times SynthesizeStream was invoked.
func (e *ScriptedEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.requests)
}

// Requests returns the requests received so far.
func (e *ScriptedEngine) Requests() []tts.Request {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]tts.Request(nil), e.requests...)
}

// Stopped is closed once the engine abandons a stream because its context
// ended.
func (e *ScriptedEngine) Stopped() <-chan struct{} {
	e.once.Do(func() { e.stopped = make(chan struct{}) })
	return e.stopped
}

func (e *ScriptedEngine) markStopped() {
	e.Stopped()
	ch := e.stopped

	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-ch:
	default:
		close(ch)
	}
}

// RequireWorker skips the test unless KOKOROSTREAM_TTS_COMMAND names a
// runnable synthesis worker, and returns the command.
func RequireWorker(tb testing.TB) string {
	tb.Helper()

	command := os.Getenv("KOKOROSTREAM_TTS_COMMAND")
	if command == "" {
		tb.Skip("KOKOROSTREAM_TTS_COMMAND not set; skipping real worker test")
	}

	args, err := shellwords.Parse(command)
	if err != nil || len(args) == 0 {
		tb.Skipf("KOKOROSTREAM_TTS_COMMAND %q is not a valid command", command)
	}

	if _, err := exec.LookPath(args[0]); err != nil {
		tb.Skipf("worker executable %q not found in PATH", args[0])
	}

	return command
}

// RequireFile skips the test if path does not exist.
func RequireFile(tb testing.TB, path string) {
	tb.Helper()

	if _, err := os.Stat(path); err != nil {
		tb.Skipf("required file %q not available: %v", path, err)
	}
}
