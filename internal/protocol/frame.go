package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind int

const (
	KindSampleRate Kind = iota + 1
	KindAudio
	KindEnd
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSampleRate:
		return "sample_rate"
	case KindAudio:
		return "audio"
	case KindEnd:
		return "end"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one outbound message. Audio frames travel as binary messages,
// everything else as a JSON text message.
type Frame struct {
	Kind       Kind
	SampleRate int
	PCM        []byte
	Message    string
}

func SampleRateFrame(rate int) Frame { return Frame{Kind: KindSampleRate, SampleRate: rate} }

func AudioFrame(pcm []byte) Frame { return Frame{Kind: KindAudio, PCM: pcm} }

func EndFrame() Frame { return Frame{Kind: KindEnd} }

func ErrorFrame(msg string) Frame {
	if msg == "" {
		msg = "synthesis failed"
	}
	return Frame{Kind: KindError, Message: msg}
}

// Binary reports whether the frame is sent as a binary message.
func (f Frame) Binary() bool { return f.Kind == KindAudio }

// Terminal reports whether the frame ends the stream.
func (f Frame) Terminal() bool { return f.Kind == KindEnd || f.Kind == KindError }

type sampleRateMessage struct {
	SampleRate int `json:"sample_rate"`
}

type endMessage struct {
	End bool `json:"end"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// Encode returns the message payload: raw PCM for audio frames and a JSON
// object for control frames.
func (f Frame) Encode() ([]byte, error) {
	switch f.Kind {
	case KindAudio:
		return f.PCM, nil
	case KindSampleRate:
		return json.Marshal(sampleRateMessage{SampleRate: f.SampleRate})
	case KindEnd:
		return json.Marshal(endMessage{End: true})
	case KindError:
		return json.Marshal(errorMessage{Error: f.Message})
	default:
		return nil, fmt.Errorf("encode frame: unknown kind %v", f.Kind)
	}
}

var ErrUnknownControl = errors.New("unknown control message")

type controlMessage struct {
	SampleRate *int    `json:"sample_rate"`
	End        *bool   `json:"end"`
	Error      *string `json:"error"`
}

// ParseControl decodes a JSON control message received by a client.
func ParseControl(data []byte) (Frame, error) {
	var m controlMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return Frame{}, fmt.Errorf("decode control message: %w", err)
	}

	switch {
	case m.Error != nil:
		return ErrorFrame(*m.Error), nil
	case m.End != nil && *m.End:
		return EndFrame(), nil
	case m.SampleRate != nil:
		return SampleRateFrame(*m.SampleRate), nil
	default:
		return Frame{}, fmt.Errorf("%w: %s", ErrUnknownControl, data)
	}
}
