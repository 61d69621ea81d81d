package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/kokoro-stream/internal/protocol"
	"github.com/example/kokoro-stream/internal/stream"
	"github.com/example/kokoro-stream/internal/tts"
	"github.com/google/uuid"
)

// Conn is the client side of one session as the session sees it.
type Conn interface {
	// Receive blocks until the client sends a message.
	Receive(ctx context.Context) ([]byte, error)
	// Send writes one frame.
	Send(ctx context.Context, f protocol.Frame) error
	// Watch returns a context that is cancelled once the client goes away.
	// It is called after the request has been received; Receive is not
	// called again.
	Watch(ctx context.Context) context.Context
}

// Outcome describes how a session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeAborted   Outcome = "aborted"
	OutcomeNoRequest Outcome = "no_request"
)

// Session serves exactly one synthesis request on one connection.
type Session struct {
	ID string

	conn     Conn
	engine   tts.Engine
	defaults protocol.Defaults
	log      *slog.Logger
	metrics  *Metrics
}

func NewSession(conn Conn, engine tts.Engine, defaults protocol.Defaults, log *slog.Logger, metrics *Metrics) *Session {
	if log == nil {
		log = slog.Default()
	}

	id := uuid.NewString()

	return &Session{
		ID:       id,
		conn:     conn,
		engine:   engine,
		defaults: defaults,
		log:      log.With(slog.String("session_id", id)),
		metrics:  metrics,
	}
}

// Serve reads the request, streams the synthesized audio and returns how the
// session ended. Transport failures end the session without a report to
// the client.
func (s *Session) Serve(ctx context.Context) Outcome {
	raw, err := s.conn.Receive(ctx)
	if err != nil {
		s.log.DebugContext(ctx, "connection closed before request", slog.String("error", err.Error()))
		s.metrics.sessionFinished(ctx, OutcomeNoRequest, false)
		return OutcomeNoRequest
	}

	req, err := protocol.DecodeRequest(raw, s.defaults)
	if err != nil {
		s.log.WarnContext(ctx, "request rejected",
			slog.Int("request_bytes", len(raw)),
			slog.String("error", err.Error()),
		)
		if err := s.conn.Send(ctx, protocol.ErrorFrame(err.Error())); err != nil {
			s.log.DebugContext(ctx, "send rejection failed", slog.String("error", err.Error()))
		}
		s.metrics.sessionFinished(ctx, OutcomeRejected, false)
		return OutcomeRejected
	}

	ctx = s.conn.Watch(ctx)
	start := time.Now()

	s.metrics.sessionStarted(ctx)
	outcome, chunks, sent := s.stream(ctx, req, start)
	s.metrics.sessionFinished(context.WithoutCancel(ctx), outcome, true)

	return s.finish(ctx, req, outcome, chunks, sent, time.Since(start))
}

func (s *Session) stream(ctx context.Context, req tts.Request, start time.Time) (outcome Outcome, chunks, sent int) {
	seq := stream.Open(ctx, s.engine, req)
	defer seq.Close()

	outcome = OutcomeAborted
	for f := range stream.Frames(ctx, seq) {
		if err := s.conn.Send(ctx, f); err != nil {
			s.log.DebugContext(ctx, "send failed", slog.String("error", err.Error()))
			return OutcomeAborted, chunks, sent
		}

		switch f.Kind {
		case protocol.KindAudio:
			chunks++
			sent += len(f.PCM)
			if chunks == 1 {
				s.metrics.firstAudio(ctx, time.Since(start))
			}
			s.metrics.audioSent(ctx, len(f.PCM))
		case protocol.KindEnd:
			outcome = OutcomeCompleted
		case protocol.KindError:
			outcome = OutcomeFailed
			s.log.ErrorContext(ctx, "synthesis failed",
				slog.String("voice", req.Voice),
				slog.String("error", f.Message),
			)
		}
	}

	return outcome, chunks, sent
}

func (s *Session) finish(ctx context.Context, req tts.Request, outcome Outcome, chunks, sent int, took time.Duration) Outcome {
	s.log.InfoContext(context.WithoutCancel(ctx), "session finished",
		slog.String("voice", req.Voice),
		slog.String("lang", req.Lang),
		slog.Float64("speed", req.Speed),
		slog.Int("text_len", len(req.Text)),
		slog.Int("chunks", chunks),
		slog.Int("audio_bytes", sent),
		slog.Int64("duration_ms", took.Milliseconds()),
		slog.String("outcome", string(outcome)),
	)

	return outcome
}
