package main

import (
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/kokoro-stream/internal/audio"
	"github.com/example/kokoro-stream/internal/config"
	"github.com/example/kokoro-stream/internal/server"
	"github.com/example/kokoro-stream/internal/testutil"
	"github.com/example/kokoro-stream/internal/tts"
)

func startStreamServer(t *testing.T, eng tts.Engine) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(server.NewHandler(eng, tts.DefaultVoiceManager(),
		server.WithLogger(slog.New(slog.DiscardHandler))))
	t.Cleanup(srv.Close)

	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

func TestSayCmd_WritesWAV(t *testing.T) {
	eng := testutil.NewScriptedEngine(
		testutil.Chunk(24000, 0.0, 0.5),
		testutil.Chunk(24000, -0.5, 1.0),
	)
	srv := startStreamServer(t, eng)
	out := filepath.Join(t.TempDir(), "hello.wav")

	if _, err := runCmd(t, "say", "--url", wsURL(srv), "--voice", "am_adam", "--out", out, "Hello", "world"); err != nil {
		t.Fatalf("say: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	testutil.AssertValidWAV(t, data, 24000)

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 24000 || len(samples) != 4 {
		t.Errorf("decoded %d samples at %d Hz; want 4 at 24000", len(samples), rate)
	}

	reqs := eng.Requests()
	if len(reqs) != 1 || reqs[0].Text != "Hello world" || reqs[0].Voice != "am_adam" {
		t.Errorf("server saw %+v", reqs)
	}
}

func TestSayCmd_TextFlagAndStdout(t *testing.T) {
	eng := testutil.NewScriptedEngine(testutil.Chunk(22050, 0.25))
	srv := startStreamServer(t, eng)

	stdout, err := runCmd(t, "say", "--url", wsURL(srv), "--text", "Hi", "-o", "-")
	if err != nil {
		t.Fatalf("say: %v", err)
	}

	testutil.AssertValidWAV(t, []byte(stdout), 22050)
}

func TestSayCmd_ReportsRejection(t *testing.T) {
	eng := testutil.NewScriptedEngine()
	srv := startStreamServer(t, eng)
	out := filepath.Join(t.TempDir(), "none.wav")

	_, err := runCmd(t, "say", "--url", wsURL(srv), "--out", out)
	if err == nil || !strings.Contains(err.Error(), "no text provided") {
		t.Fatalf("err = %v; want no text provided", err)
	}

	if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("output written for a rejected request")
	}
}

func TestSayCmd_KeepsPartialAudio(t *testing.T) {
	eng := testutil.NewScriptedEngine(testutil.Chunk(24000, 0.1, 0.2))
	eng.Err = errors.New("model fault")
	srv := startStreamServer(t, eng)
	out := filepath.Join(t.TempDir(), "partial.wav")

	_, err := runCmd(t, "say", "--url", wsURL(srv), "--out", out, "Hi")
	if err == nil || !strings.Contains(err.Error(), "model fault") {
		t.Fatalf("err = %v; want model fault", err)
	}

	data, readErr := os.ReadFile(out)
	if readErr != nil {
		t.Fatalf("partial audio not written: %v", readErr)
	}
	testutil.AssertValidWAV(t, data, 24000)
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		addr, path, want string
	}{
		{"localhost:5050", "/", "ws://localhost:5050/"},
		{"127.0.0.1:9000", "/tts", "ws://127.0.0.1:9000/tts"},
		{"127.0.0.1:9000", "tts", "ws://127.0.0.1:9000/tts"},
	}

	for _, tt := range tests {
		cfg := config.DefaultConfig()
		cfg.Server.ListenAddr = tt.addr
		cfg.Server.Path = tt.path

		if got := serverURL(cfg); got != tt.want {
			t.Errorf("serverURL(%q, %q) = %q; want %q", tt.addr, tt.path, got, tt.want)
		}
	}
}
