package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/example/kokoro-stream/internal/config"
	"github.com/example/kokoro-stream/internal/doctor"
	"github.com/example/kokoro-stream/internal/model"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the synthesis worker, model files and voice catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err := config.NormalizeBackend(cfg.TTS.Backend)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend: %s\n", backend)

			dcfg, err := doctorConfig(cfg, backend)
			if err != nil {
				return err
			}

			result := doctor.Run(dcfg, out)

			if backend == config.BackendExec {
				checkModelLock(filepath.Dir(cfg.TTS.ModelPath), out, &result)
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}
				return errors.New("doctor checks failed")
			}

			fmt.Fprintln(out, "doctor checks passed")
			return nil
		},
	}

	return cmd
}

// doctorConfig derives the checks from the worker command line. Python is
// only probed when the worker is launched through a python interpreter.
func doctorConfig(cfg config.Config, backend string) (doctor.Config, error) {
	dcfg := doctor.Config{
		LookPath:      exec.LookPath,
		PythonVersion: probePythonVersion,
		SkipWorker:    backend != config.BackendExec,
		VoiceCatalog: func() (int, error) {
			vm, err := loadVoices(cfg)
			if err != nil {
				return 0, err
			}
			return len(vm.ListVoices()), nil
		},
	}

	if dcfg.SkipWorker {
		return dcfg, nil
	}

	args, err := shellwords.Parse(cfg.TTS.Command)
	if err != nil {
		return doctor.Config{}, fmt.Errorf("parse worker command: %w", err)
	}

	if len(args) > 0 {
		dcfg.WorkerExecutable = args[0]
	}
	dcfg.SkipPython = !strings.HasPrefix(filepath.Base(dcfg.WorkerExecutable), "python")

	for _, a := range args[min(1, len(args)):] {
		if strings.HasSuffix(a, ".py") {
			dcfg.Files = append(dcfg.Files, doctor.File{Label: "worker script", Path: a})
		}
	}
	dcfg.Files = append(dcfg.Files,
		doctor.File{Label: "model file", Path: cfg.TTS.ModelPath},
		doctor.File{Label: "voices file", Path: cfg.TTS.VoicesPath},
	)

	return dcfg, nil
}

// checkModelLock verifies downloaded model files when a lock file is present.
func checkModelLock(dir string, w io.Writer, result *doctor.Result) {
	lockPath := filepath.Join(dir, model.LockFileName)
	if _, err := os.Stat(lockPath); err != nil {
		fmt.Fprintf(w, "%s model checksums: skipped (no lock file at %s)\n", doctor.PassMark, lockPath)
		return
	}

	if err := model.Verify(dir, io.Discard); err != nil {
		result.AddFailure(fmt.Sprintf("model checksums: %v", err))
		fmt.Fprintf(w, "%s model checksums: %v\n", doctor.FailMark, err)
		return
	}
	fmt.Fprintf(w, "%s model checksums: ok\n", doctor.PassMark)
}

// probePythonVersion tries python3 then python and returns the version string.
func probePythonVersion() (string, error) {
	for _, bin := range []string{"python3", "python"} {
		out, err := exec.CommandContext(context.Background(), bin, "--version").Output()
		if err != nil {
			continue
		}
		// Output is e.g. "Python 3.11.4\n"
		raw := strings.TrimPrefix(strings.TrimSpace(string(out)), "Python ")
		if raw != "" {
			return raw, nil
		}
	}

	return "", errors.New("python3/python not found on PATH")
}
