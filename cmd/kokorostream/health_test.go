package main

import (
	"strings"
	"testing"

	"github.com/example/kokoro-stream/internal/testutil"
)

func TestHealthCmd(t *testing.T) {
	srv := startStreamServer(t, testutil.NewScriptedEngine())

	out, err := runCmd(t, "health", "--addr", strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("health: %v", err)
	}

	if strings.TrimSpace(out) != "ok" {
		t.Errorf("output = %q; want ok", out)
	}
}

func TestHealthCmd_Unreachable(t *testing.T) {
	if _, err := runCmd(t, "health", "--addr", "127.0.0.1:1"); err == nil {
		t.Fatal("want error for unreachable server")
	}
}
