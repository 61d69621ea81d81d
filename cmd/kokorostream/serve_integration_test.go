//go:build integration

package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/example/kokoro-stream/internal/client"
	"github.com/example/kokoro-stream/internal/config"
	"github.com/example/kokoro-stream/internal/server"
	"github.com/example/kokoro-stream/internal/testutil"
)

// TestServe_RealWorker streams a sentence through the exec backend. It needs
// KOKOROSTREAM_TTS_COMMAND plus the model files named by
// KOKOROSTREAM_TTS_MODEL_PATH and KOKOROSTREAM_TTS_VOICES_PATH.
func TestServe_RealWorker(t *testing.T) {
	command := testutil.RequireWorker(t)

	cfg := config.DefaultConfig()
	cfg.TTS.Command = command
	if p := os.Getenv("KOKOROSTREAM_TTS_MODEL_PATH"); p != "" {
		cfg.TTS.ModelPath = p
	}
	if p := os.Getenv("KOKOROSTREAM_TTS_VOICES_PATH"); p != "" {
		cfg.TTS.VoicesPath = p
	}
	testutil.RequireFile(t, cfg.TTS.ModelPath)
	testutil.RequireFile(t, cfg.TTS.VoicesPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	voices, err := loadVoices(cfg)
	if err != nil {
		t.Fatalf("loadVoices: %v", err)
	}

	eng, closeEngine, err := buildEngine(ctx, cfg, voices, slog.Default())
	if err != nil {
		t.Fatalf("buildEngine: %v", err)
	}
	defer func() { _ = closeEngine() }()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srvCtx, stop := context.WithCancel(ctx)
	defer stop()

	go func() { _ = server.New(cfg, eng, voices).Serve(srvCtx, ln) }()

	res, err := client.Synthesize(ctx, "ws://"+ln.Addr().String()+"/", client.Request{
		Text:  "Hello from the streaming server. This is a second sentence.",
		Voice: "af_sarah",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if res.SampleRate != 24000 {
		t.Errorf("sample rate = %d; want 24000", res.SampleRate)
	}

	if res.Chunks == 0 || len(res.Samples) < res.SampleRate/2 {
		t.Errorf("got %d chunks and %d samples; want at least half a second", res.Chunks, len(res.Samples))
	}
}
