package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/example/kokoro-stream/internal/audio"
	"github.com/example/kokoro-stream/internal/protocol"
	"github.com/example/kokoro-stream/internal/tts"
)

type State int

const (
	StateStart State = iota
	StateStreaming
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var ErrSampleRateChanged = errors.New("sample rate changed mid-stream")

// Framer converts chunks into frames for one stream. The sample rate is
// announced once, before the first audio frame, and the stream ends with
// exactly one end or error frame.
type Framer struct {
	state State
	rate  int
}

func (f *Framer) State() State { return f.state }

// Terminal reports whether the stream has ended.
func (f *Framer) Terminal() bool { return f.state == StateDone || f.state == StateFailed }

// Push frames one chunk. A chunk with an invalid or changed sample rate
// fails the stream. Push after the stream has ended returns nil.
func (f *Framer) Push(c tts.Chunk) []protocol.Frame {
	switch {
	case f.Terminal():
		return nil
	case c.SampleRate <= 0:
		return f.Finish(fmt.Errorf("invalid sample rate %d", c.SampleRate))
	case f.state == StateStreaming && c.SampleRate != f.rate:
		return f.Finish(fmt.Errorf("%w: %d to %d", ErrSampleRateChanged, f.rate, c.SampleRate))
	}

	pcm := protocol.AudioFrame(audio.EncodePCM16(c.Samples))
	if f.state == StateStart {
		f.state = StateStreaming
		f.rate = c.SampleRate
		return []protocol.Frame{protocol.SampleRateFrame(c.SampleRate), pcm}
	}
	return []protocol.Frame{pcm}
}

// Finish ends the stream: a nil err yields an end frame, anything else an
// error frame carrying err's message. Finish on an ended stream returns nil.
func (f *Framer) Finish(err error) []protocol.Frame {
	if f.Terminal() {
		return nil
	}
	if err != nil {
		f.state = StateFailed
		return []protocol.Frame{protocol.ErrorFrame(err.Error())}
	}
	f.state = StateDone
	return []protocol.Frame{protocol.EndFrame()}
}

// Frames pulls chunks from seq and yields their frames in order, ending with
// the terminal frame. If ctx ends first the iteration stops without a
// terminal frame, since nobody is left to receive it. Stopping the
// iteration early does not close seq.
func Frames(ctx context.Context, seq *Sequence) iter.Seq[protocol.Frame] {
	return func(yield func(protocol.Frame) bool) {
		var f Framer
		for !f.Terminal() {
			c, err := seq.Next(ctx)

			var frames []protocol.Frame
			switch {
			case err == nil:
				frames = f.Push(c)
			case errors.Is(err, io.EOF):
				frames = f.Finish(nil)
			case ctx.Err() != nil:
				return
			default:
				frames = f.Finish(err)
			}

			for _, fr := range frames {
				if !yield(fr) {
					return
				}
			}
		}
	}
}
