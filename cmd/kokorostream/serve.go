package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/example/kokoro-stream/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the streaming WebSocket server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			voices, err := loadVoices(cfg)
			if err != nil {
				return err
			}

			log := slog.Default()

			engine, closeEngine, err := buildEngine(ctx, cfg, voices, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeEngine() }()

			return server.New(cfg, engine, voices).WithLogger(log).Start(ctx)
		},
	}
}
