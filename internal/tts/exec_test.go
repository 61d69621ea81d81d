package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const helperEnv = "KOKOROSTREAM_HELPER_WORKER"

// TestHelperWorker is not a real test: it acts as the worker process when
// the engine re-executes the test binary.
func TestHelperWorker(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper process")
	}

	in := bufio.NewScanner(os.Stdin)
	enc := json.NewEncoder(os.Stdout)

	for in.Scan() {
		var req workerRequest
		if err := json.Unmarshal(in.Bytes(), &req); err != nil {
			_ = enc.Encode(map[string]any{"error": "bad request"})
			continue
		}

		switch req.Text {
		case "fail":
			_ = enc.Encode(map[string]any{"error": "voice not found: " + req.Voice})
		case "crash":
			os.Exit(3)
		case "hang":
			_ = enc.Encode(map[string]any{"samples": encodeFloats(0.25), "sample_rate": 24000})
			time.Sleep(time.Hour)
		default:
			_ = enc.Encode(map[string]any{"samples": encodeFloats(0, 0.5), "sample_rate": 24000})
			_ = enc.Encode(map[string]any{"samples": encodeFloats(-0.5, float32(req.Speed)), "sample_rate": 24000})
			_ = enc.Encode(map[string]any{"end": true})
		}
	}

	os.Exit(0)
}

func encodeFloats(vals ...float32) string {
	raw := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	return base64.StdEncoding.EncodeToString(raw)
}

func newHelperEngine(t *testing.T) *ExecEngine {
	t.Helper()
	t.Setenv(helperEnv, "1")

	command := fmt.Sprintf("%q -test.run=^TestHelperWorker$ --", os.Args[0])

	eng, err := NewExecEngine(command, "", "", nil)
	if err != nil {
		t.Fatalf("NewExecEngine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	return eng
}

func TestNewExecEngine_Args(t *testing.T) {
	eng, err := NewExecEngine(`python3 "kokoro worker.py" -q`, "kokoro-v1.0.onnx", "voices-v1.0.bin", nil)
	if err != nil {
		t.Fatalf("NewExecEngine: %v", err)
	}

	want := []string{"python3", "kokoro worker.py", "-q", "--model", "kokoro-v1.0.onnx", "--voices", "voices-v1.0.bin"}
	if strings.Join(eng.args, "|") != strings.Join(want, "|") {
		t.Errorf("args = %q; want %q", eng.args, want)
	}
}

func TestNewExecEngine_EmptyCommand(t *testing.T) {
	if _, err := NewExecEngine("   ", "", "", nil); err == nil {
		t.Error("NewExecEngine(empty) = nil; want error")
	}
}

func TestExecEngine_StreamsChunks(t *testing.T) {
	eng := newHelperEngine(t)

	chunks, err := collect(t, eng, Request{Text: "Hi", Voice: "af_sarah", Speed: 1, Lang: "en-us"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks; want 2", len(chunks))
	}

	if got := chunks[0].Samples; len(got) != 2 || got[0] != 0 || got[1] != 0.5 {
		t.Errorf("chunk 0 samples = %v; want [0 0.5]", got)
	}

	if got := chunks[1].Samples; len(got) != 2 || got[0] != -0.5 || got[1] != 1 {
		t.Errorf("chunk 1 samples = %v; want [-0.5 1]", got)
	}

	if chunks[1].SampleRate != 24000 {
		t.Errorf("sample rate = %d; want 24000", chunks[1].SampleRate)
	}
}

func TestExecEngine_ReusesWorkerAcrossRequests(t *testing.T) {
	eng := newHelperEngine(t)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pid := eng.proc.cmd.Process.Pid

	for range 3 {
		if _, err := collect(t, eng, Request{Text: "again", Speed: 1}); err != nil {
			t.Fatalf("SynthesizeStream: %v", err)
		}
	}

	if eng.proc == nil || eng.proc.cmd.Process.Pid != pid {
		t.Error("worker was restarted between successful requests")
	}
}

func TestExecEngine_WorkerErrorKeepsWorker(t *testing.T) {
	eng := newHelperEngine(t)

	chunks, err := collect(t, eng, Request{Text: "fail", Voice: "xx_bad"})
	if err == nil || !strings.Contains(err.Error(), "voice not found: xx_bad") {
		t.Fatalf("err = %v; want worker error", err)
	}

	if len(chunks) != 0 {
		t.Errorf("got %d chunks; want 0", len(chunks))
	}

	if eng.proc == nil {
		t.Error("worker discarded after a reported error")
	}

	if _, err := collect(t, eng, Request{Text: "ok", Speed: 1}); err != nil {
		t.Errorf("follow-up request failed: %v", err)
	}
}

func TestExecEngine_WorkerCrashRestarts(t *testing.T) {
	eng := newHelperEngine(t)

	if _, err := collect(t, eng, Request{Text: "crash"}); err == nil {
		t.Fatal("crash request succeeded; want error")
	}

	if _, err := collect(t, eng, Request{Text: "ok", Speed: 1}); err != nil {
		t.Errorf("request after crash failed: %v", err)
	}
}

func TestExecEngine_CancelKillsWorker(t *testing.T) {
	eng := newHelperEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Chunk)
	errc := make(chan error, 1)

	go func() { errc <- eng.SynthesizeStream(ctx, Request{Text: "hang"}, out) }()

	if _, ok := <-out; !ok {
		t.Fatal("no chunk before cancellation")
	}

	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v; want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after cancellation")
	}

	if eng.proc != nil {
		t.Error("hung worker was not discarded")
	}
}

func TestExecEngine_MissingBinary(t *testing.T) {
	eng, err := NewExecEngine(filepath.Join(t.TempDir(), "no-such-worker"), "", "", nil)
	if err != nil {
		t.Fatalf("NewExecEngine: %v", err)
	}

	if _, err := collect(t, eng, Request{Text: "hi"}); err == nil {
		t.Error("SynthesizeStream with missing binary = nil; want error")
	}
}

func TestDecodeSamples_RejectsPartialFloat(t *testing.T) {
	if _, err := decodeSamples(base64.StdEncoding.EncodeToString([]byte{1, 2, 3})); err == nil {
		t.Error("decodeSamples(3 bytes) = nil; want error")
	}
}
