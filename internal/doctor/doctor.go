// Package doctor provides environment preflight checks for kokorostream.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// File is a path the worker needs at runtime.
type File struct {
	Label string
	Path  string
}

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// WorkerExecutable is the first word of the worker command.
	WorkerExecutable string
	// LookPath resolves WorkerExecutable, usually exec.LookPath.
	LookPath func(string) (string, error)
	// SkipWorker skips the worker checks (tone backend).
	SkipWorker bool
	// PythonVersion returns the Python version string (e.g. "3.11.4").
	PythonVersion VersionFunc
	// SkipPython skips the Python check when the worker is not a Python script.
	SkipPython bool
	// Files lists model, voice and script files to verify on disk.
	Files []File
	// VoiceCatalog loads the voice catalog and returns its size.
	VoiceCatalog func() (int, error)
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- worker executable ------------------------------------------------
	switch {
	case cfg.SkipWorker:
		fmt.Fprintf(w, "%s worker executable: skipped\n", PassMark)
	case cfg.WorkerExecutable == "":
		res.fail("worker executable: command is empty")
		fmt.Fprintf(w, "%s worker executable: command is empty\n", FailMark)
	default:
		path, err := cfg.LookPath(cfg.WorkerExecutable)
		if err != nil {
			res.fail(fmt.Sprintf("worker executable %q: %v", cfg.WorkerExecutable, err))
			fmt.Fprintf(w, "%s worker executable %s: not found (%v)\n", FailMark, cfg.WorkerExecutable, err)
		} else {
			fmt.Fprintf(w, "%s worker executable: %s\n", PassMark, path)
		}
	}

	// ---- Python version ---------------------------------------------------
	if cfg.SkipWorker || cfg.SkipPython {
		fmt.Fprintf(w, "%s python version: skipped\n", PassMark)
	} else {
		pyVer, err := cfg.PythonVersion()
		if err != nil {
			res.fail(fmt.Sprintf("python version: %v", err))
			fmt.Fprintf(w, "%s python version: not found (%v)\n", FailMark, err)
		} else if pyErr := checkPythonVersion(pyVer); pyErr != nil {
			res.fail(fmt.Sprintf("python version: %v", pyErr))
			fmt.Fprintf(w, "%s python version %s: %v\n", FailMark, pyVer, pyErr)
		} else {
			fmt.Fprintf(w, "%s python version: %s\n", PassMark, pyVer)
		}
	}

	// ---- model, voice and script files -------------------------------------
	for _, f := range cfg.Files {
		if cfg.SkipWorker {
			break
		}
		if _, err := os.Stat(f.Path); err != nil {
			res.fail(fmt.Sprintf("%s %q: %v", f.Label, f.Path, err))
			fmt.Fprintf(w, "%s %s %s: not found\n", FailMark, f.Label, f.Path)
		} else {
			fmt.Fprintf(w, "%s %s: %s\n", PassMark, f.Label, f.Path)
		}
	}

	// ---- voice catalog ------------------------------------------------------
	if cfg.VoiceCatalog != nil {
		n, err := cfg.VoiceCatalog()
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("voice catalog: %v", err))
			fmt.Fprintf(w, "%s voice catalog: %v\n", FailMark, err)
		case n == 0:
			res.fail("voice catalog: no voices")
			fmt.Fprintf(w, "%s voice catalog: no voices\n", FailMark)
		default:
			fmt.Fprintf(w, "%s voice catalog: %d voices\n", PassMark, n)
		}
	}

	return res
}

// checkPythonVersion returns an error if ver is outside [3.10, 3.15).
// ver is expected to be a string like "3.11.4".
func checkPythonVersion(ver string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 3 {
		return fmt.Errorf("requires Python 3, got %d", major)
	}
	if minor < 10 {
		return fmt.Errorf("requires Python >=3.10, got 3.%d", minor)
	}
	if minor >= 15 {
		return fmt.Errorf("requires Python <3.15, got 3.%d", minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
