package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/example/kokoro-stream/internal/audio"
	"github.com/example/kokoro-stream/internal/client"
	"github.com/example/kokoro-stream/internal/config"
	"github.com/spf13/cobra"
)

func newSayCmd() *cobra.Command {
	var (
		url   string
		text  string
		voice string
		speed float64
		lang  string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "say [text]",
		Short: "Stream text through a running server and save the audio as WAV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if text == "" {
				text = strings.Join(args, " ")
			}
			if url == "" {
				url = serverURL(cfg)
			}

			start := time.Now()
			res, err := client.Synthesize(cmd.Context(), url, client.Request{
				Text:  text,
				Voice: voice,
				Speed: speed,
				Lang:  lang,
			})
			if res.Chunks == 0 {
				if err == nil {
					err = errors.New("server returned no audio")
				}
				return err
			}

			wav, encErr := audio.EncodeWAV(res.Samples, res.SampleRate)
			if encErr != nil {
				return errors.Join(err, encErr)
			}

			if out == "-" {
				_, writeErr := cmd.OutOrStdout().Write(wav)
				return errors.Join(err, writeErr)
			}

			if writeErr := os.WriteFile(out, wav, 0o644); writeErr != nil {
				return errors.Join(err, writeErr)
			}

			slog.Info("audio written",
				slog.String("path", out),
				slog.Int("sample_rate", res.SampleRate),
				slog.Int("chunks", res.Chunks),
				slog.Int("samples", len(res.Samples)),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
			return err
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "WebSocket URL (defaults to the configured listen address and path)")
	cmd.Flags().StringVar(&text, "text", "", "Text to speak (defaults to the positional arguments)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice ID (server default when empty)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Speaking rate (server default when 0)")
	cmd.Flags().StringVar(&lang, "lang", "", "Language code (server default when empty)")
	cmd.Flags().StringVarP(&out, "out", "o", "out.wav", "Output WAV path, - for stdout")

	return cmd
}

func serverURL(cfg config.Config) string {
	path := cfg.Server.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("ws://%s%s", cfg.Server.ListenAddr, path)
}
