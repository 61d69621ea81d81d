package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/kokoro-stream/internal/bench"
	"github.com/example/kokoro-stream/internal/client"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		url          string
		text         string
		voice        string
		runs         int
		format       string
		rtfThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark first-audio latency and realtime factor of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}
			if url == "" {
				url = serverURL(cfg)
			}

			results, err := bench.Run(cmd.Context(), url, client.Request{Text: text, Voice: voice}, runs)
			if err != nil {
				return err
			}

			firstAudio := make([]time.Duration, len(results))
			for i, r := range results {
				firstAudio[i] = r.FirstAudio
			}
			stats := bench.ComputeStats(firstAudio)

			switch format {
			case "json":
				bench.FormatJSON(results, stats, cmd.OutOrStdout())
			default:
				bench.FormatTable(results, stats, cmd.OutOrStdout())
			}

			return bench.CheckRTFThreshold(bench.MeanRTF(results), rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "WebSocket URL of the server (default derived from --server-listen-addr)")
	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (required)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice ID (server default when empty)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of sequential runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Fail if mean RTF exceeds this value (0 disables)")

	return cmd
}
