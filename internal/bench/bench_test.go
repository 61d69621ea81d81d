package bench_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/kokoro-stream/internal/bench"
	"github.com/example/kokoro-stream/internal/client"
	"github.com/example/kokoro-stream/internal/server"
	"github.com/example/kokoro-stream/internal/testutil"
)

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

func TestStats_MinMaxMean(t *testing.T) {
	durations := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}
	s := bench.ComputeStats(durations)

	if s.Min != 100*time.Millisecond {
		t.Errorf("want min=100ms, got %v", s.Min)
	}

	if s.Max != 300*time.Millisecond {
		t.Errorf("want max=300ms, got %v", s.Max)
	}

	if s.Mean != 200*time.Millisecond {
		t.Errorf("want mean=200ms, got %v", s.Mean)
	}
}

func TestStats_Empty(t *testing.T) {
	if s := bench.ComputeStats(nil); s != (bench.Stats{}) {
		t.Errorf("empty stats = %+v", s)
	}
}

// ---------------------------------------------------------------------------
// RTF calculation
// ---------------------------------------------------------------------------

func TestRTF_Calculation(t *testing.T) {
	// 1 second of audio synthesised in 500ms → RTF = 0.5
	rtf := bench.CalcRTF(500*time.Millisecond, time.Second)
	if rtf < 0.499 || rtf > 0.501 {
		t.Errorf("want RTF≈0.5, got %.4f", rtf)
	}

	if bench.CalcRTF(time.Second, 0) != 0 {
		t.Error("want 0 RTF for zero audio")
	}
}

func TestAudioDuration(t *testing.T) {
	tests := []struct {
		n, rate int
		want    time.Duration
	}{
		{24000, 24000, time.Second},
		{12000, 24000, 500 * time.Millisecond},
		{100, 0, 0},
	}

	for _, tt := range tests {
		if got := bench.AudioDuration(tt.n, tt.rate); got != tt.want {
			t.Errorf("AudioDuration(%d, %d) = %v; want %v", tt.n, tt.rate, got, tt.want)
		}
	}
}

func TestMeanRTF(t *testing.T) {
	runs := []bench.RunResult{{RTF: 0.2}, {RTF: 0.4}}
	if got := bench.MeanRTF(runs); got < 0.299 || got > 0.301 {
		t.Errorf("MeanRTF = %v; want 0.3", got)
	}
	if bench.MeanRTF(nil) != 0 {
		t.Error("want 0 for no runs")
	}
}

func TestCheckRTFThreshold(t *testing.T) {
	if err := bench.CheckRTFThreshold(2.0, 0); err != nil {
		t.Errorf("disabled gate returned %v", err)
	}
	if err := bench.CheckRTFThreshold(0.5, 1.0); err != nil {
		t.Errorf("under threshold returned %v", err)
	}
	if err := bench.CheckRTFThreshold(1.5, 1.0); err == nil {
		t.Error("want error above threshold")
	}
}

// ---------------------------------------------------------------------------
// Measurement against a live handler
// ---------------------------------------------------------------------------

func startServer(t *testing.T, eng *testutil.ScriptedEngine) string {
	t.Helper()

	srv := httptest.NewServer(server.NewHandler(eng, nil, server.WithLogger(slog.New(slog.DiscardHandler))))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRun_MeasuresEachRun(t *testing.T) {
	samples := make([]float32, 2400)
	eng := testutil.NewScriptedEngine(testutil.Chunk(24000, samples...), testutil.Chunk(24000, samples...))
	url := startServer(t, eng)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runs, err := bench.Run(ctx, url, client.Request{Text: "Hi"}, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(runs) != 3 || eng.Calls() != 3 {
		t.Fatalf("got %d runs and %d engine calls; want 3", len(runs), eng.Calls())
	}

	for i, r := range runs {
		if r.Index != i || r.Cold != (i == 0) {
			t.Errorf("run %d: index=%d cold=%v", i, r.Index, r.Cold)
		}
		if r.Chunks != 2 || r.AudioDuration != 200*time.Millisecond {
			t.Errorf("run %d: %d chunks, %v audio; want 2 and 200ms", i, r.Chunks, r.AudioDuration)
		}
		if r.FirstAudio > r.Duration {
			t.Errorf("run %d: first audio %v after total %v", i, r.FirstAudio, r.Duration)
		}
	}
}

func TestRun_StopsOnServerError(t *testing.T) {
	eng := testutil.NewScriptedEngine()
	eng.Err = errors.New("model fault")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runs, err := bench.Run(ctx, startServer(t, eng), client.Request{Text: "Hi"}, 3)
	if err == nil || !strings.Contains(err.Error(), "run 1 failed") {
		t.Fatalf("err = %v; want run 1 failure", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %d; want 0", len(runs))
	}
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

func sampleRuns() []bench.RunResult {
	return []bench.RunResult{
		{Index: 0, Cold: true, FirstAudio: 300 * time.Millisecond, Duration: time.Second, AudioDuration: 2 * time.Second, Chunks: 3, RTF: 0.5},
		{Index: 1, FirstAudio: 100 * time.Millisecond, Duration: 800 * time.Millisecond, AudioDuration: 2 * time.Second, Chunks: 3, RTF: 0.4},
	}
}

func TestFormatTable(t *testing.T) {
	runs := sampleRuns()
	stats := bench.ComputeStats([]time.Duration{runs[0].FirstAudio, runs[1].FirstAudio})

	var buf bytes.Buffer
	bench.FormatTable(runs, stats, &buf)

	out := buf.String()
	for _, want := range []string{"First(ms)", "yes", "300.0", "0.400", "(mean)"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	runs := sampleRuns()
	stats := bench.ComputeStats([]time.Duration{runs[0].FirstAudio, runs[1].FirstAudio})

	var buf bytes.Buffer
	bench.FormatJSON(runs, stats, &buf)

	var report struct {
		Runs []struct {
			Cold         bool    `json:"cold"`
			FirstAudioMS float64 `json:"first_audio_ms"`
			Chunks       int     `json:"chunks"`
		} `json:"runs"`
		FirstAudio struct {
			MeanMS float64 `json:"mean_ms"`
		} `json:"first_audio"`
	}
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, buf.String())
	}

	if len(report.Runs) != 2 || !report.Runs[0].Cold || report.Runs[0].FirstAudioMS != 300 || report.Runs[1].Chunks != 3 {
		t.Errorf("report runs = %+v", report.Runs)
	}
	if report.FirstAudio.MeanMS != 200 {
		t.Errorf("mean first audio = %v; want 200", report.FirstAudio.MeanMS)
	}
}
