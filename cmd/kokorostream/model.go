package main

import (
	"fmt"
	"path/filepath"

	"github.com/example/kokoro-stream/internal/model"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model acquisition and verification commands",
	}

	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelVerifyCmd())
	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var (
		outDir  string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the Kokoro model and voice files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = filepath.Dir(cfg.TTS.ModelPath)
			}

			err = model.Download(cmd.Context(), model.DownloadOptions{
				Manifest: model.KokoroManifest(baseURL),
				OutDir:   outDir,
				Stdout:   cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("model download failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out-dir", "", "Directory where model files are stored (default: directory of --tts-model-path)")
	cmd.Flags().StringVar(&baseURL, "base-url", model.DefaultBaseURL, "Base URL the model files are fetched from")

	return cmd
}

func newModelVerifyCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check downloaded model files against the lock file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = filepath.Dir(cfg.TTS.ModelPath)
			}

			if err := model.Verify(dir, cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("model verify failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "model files verified")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding the model files (default: directory of --tts-model-path)")

	return cmd
}
