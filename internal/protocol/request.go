// Package protocol defines the wire format spoken with streaming clients:
// the single inbound synthesis request and the outbound frames.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/example/kokoro-stream/internal/tts"
)

var (
	ErrMalformed    = errors.New("malformed request")
	ErrEmptyText    = errors.New("no text provided")
	ErrTextTooLarge = errors.New("text too large")
)

// DecodeError is returned by DecodeRequest. Kind is one of the Err*
// sentinels above and is matched by errors.Is.
type DecodeError struct {
	Kind   error
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *DecodeError) Unwrap() error { return e.Kind }

// Defaults fills fields a request omits.
type Defaults struct {
	Voice string
	Speed float64
	Lang  string
	// MaxTextBytes rejects longer text; <= 0 disables the limit.
	MaxTextBytes int
}

func DefaultRequestDefaults() Defaults {
	return Defaults{
		Voice: "af_sarah",
		Speed: 1.0,
		Lang:  "en-us",
	}
}

type wireRequest struct {
	Text     *string  `json:"text"`
	Voice    *string  `json:"voice"`
	Speed    *float64 `json:"speed"`
	Lang     *string  `json:"lang"`
	Language *string  `json:"language"`
}

// DecodeRequest parses one inbound message into a synthesis request.
func DecodeRequest(raw []byte, d Defaults) (tts.Request, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return tts.Request{}, &DecodeError{Kind: ErrMalformed, Detail: "expected a JSON object"}
	}

	var w wireRequest
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return tts.Request{}, &DecodeError{Kind: ErrMalformed, Detail: err.Error()}
	}

	if w.Text == nil || strings.TrimSpace(*w.Text) == "" {
		return tts.Request{}, &DecodeError{Kind: ErrEmptyText}
	}
	if d.MaxTextBytes > 0 && len(*w.Text) > d.MaxTextBytes {
		return tts.Request{}, &DecodeError{
			Kind:   ErrTextTooLarge,
			Detail: fmt.Sprintf("%d bytes exceeds the limit of %d", len(*w.Text), d.MaxTextBytes),
		}
	}

	req := tts.Request{
		Text:  *w.Text,
		Voice: d.Voice,
		Speed: d.Speed,
		Lang:  d.Lang,
	}

	if w.Voice != nil && strings.TrimSpace(*w.Voice) != "" {
		req.Voice = strings.TrimSpace(*w.Voice)
	}

	if w.Speed != nil {
		if *w.Speed <= 0 || math.IsNaN(*w.Speed) || math.IsInf(*w.Speed, 0) {
			return tts.Request{}, &DecodeError{Kind: ErrMalformed, Detail: fmt.Sprintf("speed must be positive, got %v", *w.Speed)}
		}
		req.Speed = *w.Speed
	}

	lang := w.Lang
	if lang == nil {
		lang = w.Language
	}
	if lang != nil && strings.TrimSpace(*lang) != "" {
		req.Lang = strings.TrimSpace(*lang)
	}

	return req, nil
}
