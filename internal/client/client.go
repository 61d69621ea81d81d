// Package client speaks the streaming protocol from the client side. It is
// used by the say command and by tests.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/kokoro-stream/internal/audio"
	"github.com/example/kokoro-stream/internal/protocol"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Request is the message sent to the server. Empty fields are omitted so
// the server applies its defaults.
type Request struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
	Lang  string  `json:"lang,omitempty"`
}

// ServerError carries the message of an error frame.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server error: " + e.Message }

var (
	// ErrIncomplete is returned when the connection closes before an end or
	// error message arrives.
	ErrIncomplete = errors.New("stream closed before it ended")

	ErrAudioBeforeSampleRate = errors.New("audio received before sample rate")
)

// maxMessageBytes bounds a single inbound audio message.
const maxMessageBytes = 16 << 20

// Stream sends req to the server at url and calls fn with every frame,
// including the terminal one. It returns nil after an end frame, a
// *ServerError after an error frame and fn's error if fn fails.
func Stream(ctx context.Context, url string, req Request, fn func(protocol.Frame) error) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	conn.SetReadLimit(maxMessageBytes)

	if err := wsjson.Write(ctx, conn, req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				return fmt.Errorf("%w: %v", ErrIncomplete, err)
			}
			return fmt.Errorf("read: %w", err)
		}

		var f protocol.Frame
		if typ == websocket.MessageBinary {
			f = protocol.AudioFrame(data)
		} else if f, err = protocol.ParseControl(data); err != nil {
			return err
		}

		if err := fn(f); err != nil {
			return err
		}

		switch f.Kind {
		case protocol.KindEnd:
			return nil
		case protocol.KindError:
			return &ServerError{Message: f.Message}
		}
	}
}

// Result is a fully received stream.
type Result struct {
	SampleRate int
	Samples    []float32
	Chunks     int
}

// Synthesize streams req and collects the audio. On a server error the audio
// received so far is returned alongside the error.
func Synthesize(ctx context.Context, url string, req Request) (*Result, error) {
	var res Result

	err := Stream(ctx, url, req, func(f protocol.Frame) error {
		switch f.Kind {
		case protocol.KindSampleRate:
			res.SampleRate = f.SampleRate
		case protocol.KindAudio:
			if res.SampleRate == 0 {
				return ErrAudioBeforeSampleRate
			}
			pcm, err := audio.DecodePCM16(f.PCM)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", res.Chunks, err)
			}
			res.Samples = append(res.Samples, audio.Float32Samples(pcm)...)
			res.Chunks++
		}
		return nil
	})

	return &res, err
}
