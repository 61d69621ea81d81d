package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// maxWorkerLine bounds a single JSON line from the worker. A base64 chunk of
// several seconds of 24 kHz float32 audio fits comfortably.
const maxWorkerLine = 64 << 20

// ExecEngine drives a long-lived worker process that keeps the model loaded
// between requests. The worker speaks JSON lines:
//
//	stdin:  {"text": "...", "voice": "af_sarah", "speed": 1.0, "lang": "en-us"}
//	stdout: {"samples": "<base64 float32 little-endian>", "sample_rate": 24000}
//	        {"error": "..."}
//	        {"end": true}
//
// Each request produces zero or more sample lines followed by exactly one
// error or end line. Requests are serialized; a cancelled request kills the
// worker and the next request starts a fresh one.
type ExecEngine struct {
	args []string
	log  *slog.Logger
	lock chan struct{}
	proc *workerProc
}

type workerProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines *bufio.Scanner
}

type workerRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	Lang  string  `json:"lang"`
}

type workerResponse struct {
	Samples    string `json:"samples"`
	SampleRate int    `json:"sample_rate"`
	Error      string `json:"error"`
	End        bool   `json:"end"`
}

// NewExecEngine parses command with shell quoting rules and appends the
// model and voice-data paths as --model and --voices arguments when set.
func NewExecEngine(command, modelPath, voicesPath string, log *slog.Logger) (*ExecEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("tts command empty")
	}
	if modelPath != "" {
		args = append(args, "--model", modelPath)
	}
	if voicesPath != "" {
		args = append(args, "--voices", voicesPath)
	}
	if log == nil {
		log = slog.Default()
	}
	return &ExecEngine{
		args: args,
		log:  log.With(slog.String("component", "exec-engine")),
		lock: make(chan struct{}, 1),
	}, nil
}

// Start launches the worker ahead of the first request so the model load
// happens at process start.
func (e *ExecEngine) Start(ctx context.Context) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	_, err := e.worker()
	return err
}

// Close stops the worker, if any.
func (e *ExecEngine) Close() error {
	e.lock <- struct{}{}
	defer e.release()

	e.discard()
	return nil
}

func (e *ExecEngine) SynthesizeStream(ctx context.Context, req Request, out chan<- Chunk) (err error) {
	defer close(out)

	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	p, err := e.worker()
	if err != nil {
		return err
	}

	line, err := json.Marshal(workerRequest{
		Text:  req.Text,
		Voice: req.Voice,
		Speed: req.Speed,
		Lang:  req.Lang,
	})
	if err != nil {
		return fmt.Errorf("encode worker request: %w", err)
	}
	if _, err := p.stdin.Write(append(line, '\n')); err != nil {
		e.discard()
		return fmt.Errorf("write worker request: %w", err)
	}

	// Killing the worker unblocks the pending read when ctx ends mid-stream.
	stop := context.AfterFunc(ctx, func() { _ = p.cmd.Process.Kill() })
	defer func() {
		if !stop() {
			e.discard()
			if ctx.Err() != nil {
				err = ctx.Err()
			}
		}
	}()

	for {
		if !p.lines.Scan() {
			scanErr := p.lines.Err()
			e.discard()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if scanErr != nil {
				return fmt.Errorf("read worker output: %w", scanErr)
			}
			return errors.New("tts worker exited unexpectedly")
		}

		var resp workerResponse
		if err := json.Unmarshal(p.lines.Bytes(), &resp); err != nil {
			e.discard()
			return fmt.Errorf("decode worker output: %w", err)
		}

		switch {
		case resp.Error != "":
			return errors.New(resp.Error)
		case resp.End:
			return nil
		}

		samples, err := decodeSamples(resp.Samples)
		if err != nil {
			e.discard()
			return err
		}

		select {
		case out <- Chunk{Samples: samples, SampleRate: resp.SampleRate}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *ExecEngine) acquire(ctx context.Context) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *ExecEngine) release() { <-e.lock }

// worker returns the running worker, starting one if needed. Callers hold
// the lock.
func (e *ExecEngine) worker() (*workerProc, error) {
	if e.proc != nil {
		return e.proc, nil
	}

	cmd := exec.Command(e.args[0], e.args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	cmd.Stderr = &stderrLogger{log: e.log}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tts worker: %w", err)
	}

	lines := bufio.NewScanner(stdout)
	lines.Buffer(make([]byte, 0, 64*1024), maxWorkerLine)

	e.log.Info("tts worker started",
		slog.String("command", strings.Join(e.args, " ")),
		slog.Int("pid", cmd.Process.Pid),
	)

	e.proc = &workerProc{cmd: cmd, stdin: stdin, lines: lines}
	return e.proc, nil
}

// discard kills and reaps the current worker. Callers hold the lock.
func (e *ExecEngine) discard() {
	p := e.proc
	if p == nil {
		return
	}
	e.proc = nil

	_ = p.stdin.Close()
	_ = p.cmd.Process.Kill()
	_ = p.cmd.Wait()

	e.log.Info("tts worker stopped", slog.Int("pid", p.cmd.Process.Pid))
}

func decodeSamples(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode worker samples: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("worker samples: %d bytes is not a whole number of float32 values", len(raw))
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

type stderrLogger struct {
	log *slog.Logger
}

func (s *stderrLogger) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			s.log.Debug("tts worker stderr", slog.String("line", line))
		}
	}
	return len(p), nil
}
