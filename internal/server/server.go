package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/example/kokoro-stream/internal/config"
	"github.com/example/kokoro-stream/internal/protocol"
	"github.com/example/kokoro-stream/internal/tts"
	"nhooyr.io/websocket"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// VoiceLister returns the list of available voices.
type VoiceLister interface {
	ListVoices() []tts.Voice
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	path           string
	defaults       protocol.Defaults
	readLimit      int64
	allowedOrigins []string
	logger         *slog.Logger
	metrics        *Metrics
	metricsHandler http.Handler
}

func defaultOptions() options {
	return options{
		path:           "/",
		defaults:       protocol.DefaultRequestDefaults(),
		readLimit:      64 << 10,
		allowedOrigins: []string{"*"},
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithPath sets the path the streaming endpoint is served on.
func WithPath(p string) Option {
	return func(o *options) { o.path = p }
}

// WithRequestDefaults sets the values used for fields a request omits and
// the text size limit.
func WithRequestDefaults(d protocol.Defaults) Option {
	return func(o *options) { o.defaults = d }
}

// WithReadLimit caps the size of the inbound request message.
func WithReadLimit(n int64) Option {
	return func(o *options) { o.readLimit = n }
}

// WithAllowedOrigins sets the websocket origin patterns accepted.
func WithAllowedOrigins(patterns []string) Option {
	return func(o *options) { o.allowedOrigins = patterns }
}

// WithLogger sets the slog.Logger used for session logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records session metrics on m and serves handler on /metrics.
// handler may be nil.
func WithMetrics(m *Metrics, handler http.Handler) Option {
	return func(o *options) {
		o.metrics = m
		o.metricsHandler = handler
	}
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// Handler serves the streaming endpoint plus /health, /voices and, when
// configured, /metrics.
type Handler struct {
	mux    *http.ServeMux
	engine tts.Engine
	voices VoiceLister
	opts   options
	log    *slog.Logger

	sessions sync.WaitGroup
}

func NewHandler(engine tts.Engine, voices VoiceLister, optFns ...Option) *Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.path == "" {
		opts.path = "/"
	}

	h := &Handler{
		mux:    http.NewServeMux(),
		engine: engine,
		voices: voices,
		opts:   opts,
		log:    opts.logger,
	}

	h.mux.HandleFunc("/health", h.handleHealth)
	h.mux.HandleFunc("/voices", h.handleVoices)
	if opts.metricsHandler != nil {
		h.mux.Handle("/metrics", opts.metricsHandler)
	}
	h.mux.HandleFunc(opts.path, h.handleStream)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Wait blocks until every running session has ended or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *Handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	var voices []tts.Voice
	if h.voices != nil {
		voices = h.voices.ListVoices()
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	writeJSON(w, http.StatusOK, voices)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	// Counted before Accept: http.Server.Shutdown stops tracking the
	// connection once it is hijacked, and Wait must not race a late Add.
	h.sessions.Add(1)
	defer h.sessions.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.allowedOrigins,
	})
	if err != nil {
		// Accept has already written the HTTP error response.
		h.log.DebugContext(r.Context(), "websocket handshake failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusInternalError, "") }()

	conn.SetReadLimit(h.opts.readLimit)

	sess := NewSession(wsConn{c: conn}, h.engine, h.opts.defaults, h.log, h.opts.metrics)
	sess.log.DebugContext(r.Context(), "session opened", slog.String("remote_addr", r.RemoteAddr))

	switch sess.Serve(r.Context()) {
	case OutcomeCompleted, OutcomeFailed, OutcomeRejected:
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	engine          tts.Engine
	voices          VoiceLister
	log             *slog.Logger
	shutdownTimeout time.Duration
}

func New(cfg config.Config, engine tts.Engine, voices VoiceLister) *Server {
	timeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return &Server{
		cfg:             cfg,
		engine:          engine,
		voices:          voices,
		log:             slog.Default(),
		shutdownTimeout: timeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the logger, which defaults to slog.Default().
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.log = l
	return s
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. On shutdown it stops accepting
// connections, lets running sessions finish within the shutdown timeout and
// then cancels the rest.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	handlerOpts := []Option{
		WithPath(s.cfg.Server.Path),
		WithRequestDefaults(protocol.Defaults{
			Voice:        s.cfg.TTS.Voice,
			Speed:        s.cfg.TTS.Speed,
			Lang:         s.cfg.TTS.Lang,
			MaxTextBytes: s.cfg.Server.MaxTextBytes,
		}),
		WithLogger(s.log),
	}
	if s.cfg.Server.ReadLimit > 0 {
		handlerOpts = append(handlerOpts, WithReadLimit(s.cfg.Server.ReadLimit))
	}
	if len(s.cfg.Server.AllowedOrigins) > 0 {
		handlerOpts = append(handlerOpts, WithAllowedOrigins(s.cfg.Server.AllowedOrigins))
	}

	if s.cfg.Metrics.Enabled {
		metrics, metricsHandler, shutdownMetrics, err := NewPrometheusMetrics()
		if err != nil {
			s.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		} else {
			defer func() { _ = shutdownMetrics(context.Background()) }()
			handlerOpts = append(handlerOpts, WithMetrics(metrics, metricsHandler))
		}
	}

	h := NewHandler(s.engine, s.voices, handlerOpts...)

	sessionCtx, cancelSessions := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSessions()

	httpServer := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return sessionCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	s.log.Info("server listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("path", s.cfg.Server.Path),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		if werr := h.Wait(shutdownCtx); werr != nil {
			s.log.Warn("cancelling sessions still running at shutdown")
			cancelSessions()
			_ = h.Wait(context.Background())
		}
		if err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	}
}

// ProbeHTTP checks that a server is answering /health on addr.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
