package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/kokoro-stream/internal/config"
	"github.com/example/kokoro-stream/internal/tts"
)

func loadVoices(cfg config.Config) (*tts.VoiceManager, error) {
	if cfg.TTS.VoicesManifest == "" {
		return tts.DefaultVoiceManager(), nil
	}

	vm, err := tts.NewVoiceManager(cfg.TTS.VoicesManifest)
	if err != nil {
		return nil, fmt.Errorf("load voice manifest: %w", err)
	}
	return vm, nil
}

// buildEngine creates the configured backend wrapped for shared use. The
// returned close func releases the backend.
func buildEngine(ctx context.Context, cfg config.Config, voices *tts.VoiceManager, log *slog.Logger) (tts.Engine, func() error, error) {
	backend, err := config.NormalizeBackend(cfg.TTS.Backend)
	if err != nil {
		return nil, nil, err
	}

	var (
		base    tts.Engine
		closeFn = func() error { return nil }
	)

	switch backend {
	case config.BackendExec:
		e, err := tts.NewExecEngine(cfg.TTS.Command, cfg.TTS.ModelPath, cfg.TTS.VoicesPath, log)
		if err != nil {
			return nil, nil, err
		}
		if err := e.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("start synthesis worker: %w", err)
		}
		base, closeFn = e, e.Close
	case config.BackendTone:
		base = tts.NewToneEngine()
	default:
		return nil, nil, fmt.Errorf("unsupported backend %q", backend)
	}

	log.Info("engine ready",
		slog.String("backend", backend),
		slog.Int("concurrency", cfg.TTS.Concurrency),
		slog.Int("voices", len(voices.ListVoices())),
	)

	shared := tts.NewShared(base,
		tts.WithConcurrency(cfg.TTS.Concurrency),
		tts.WithVoices(voices),
		tts.WithEngineLogger(log),
	)
	return shared, closeFn, nil
}
