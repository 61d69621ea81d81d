package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func modelFileServer(t *testing.T) *httptest.Server {
	t.Helper()

	files := map[string]string{
		"kokoro-v1.0.onnx": "onnx-bytes",
		"voices-v1.0.bin":  "voice-bytes",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestModelCmd_DownloadThenVerify(t *testing.T) {
	srv := modelFileServer(t)
	dir := t.TempDir()

	if _, err := runCmd(t, "model", "download", "--out-dir", dir, "--base-url", srv.URL); err != nil {
		t.Fatalf("download: %v", err)
	}

	for _, name := range []string{"kokoro-v1.0.onnx", "voices-v1.0.bin", "kokoro-files.lock.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	out, err := runCmd(t, "model", "verify", "--dir", dir)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out, "model files verified") {
		t.Errorf("verify output = %q", out)
	}

	if err := os.WriteFile(filepath.Join(dir, "voices-v1.0.bin"), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCmd(t, "model", "verify", "--dir", dir); err == nil {
		t.Fatal("want verify failure after tampering")
	}
}

func TestModelCmd_DownloadDefaultsToModelDir(t *testing.T) {
	srv := modelFileServer(t)
	dir := t.TempDir()

	_, err := runCmd(t, "model", "download",
		"--base-url", srv.URL,
		"--tts-model-path", filepath.Join(dir, "kokoro-v1.0.onnx"),
	)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "kokoro-v1.0.onnx")); err != nil {
		t.Errorf("model not written next to --tts-model-path: %v", err)
	}
}

func TestModelCmd_VerifyWithoutLock(t *testing.T) {
	if _, err := runCmd(t, "model", "verify", "--dir", t.TempDir()); err == nil {
		t.Fatal("want error without lock file")
	}
}
