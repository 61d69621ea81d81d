// Package bench measures streaming latency and realtime factor against a
// running server.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/example/kokoro-stream/internal/client"
	"github.com/example/kokoro-stream/internal/protocol"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and audio metadata for a single streamed request.
type RunResult struct {
	Index         int
	Cold          bool // true for the first run (cold-start)
	FirstAudio    time.Duration
	Duration      time.Duration
	AudioDuration time.Duration
	Chunks        int
	RTF           float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
// An empty slice yields zero stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// ---------------------------------------------------------------------------
// Measurement
// ---------------------------------------------------------------------------

// Run streams req to url runs times, one request at a time.
func Run(ctx context.Context, url string, req client.Request, runs int) ([]RunResult, error) {
	results := make([]RunResult, 0, runs)

	for i := range runs {
		r, err := measure(ctx, url, req)
		if err != nil {
			return results, fmt.Errorf("run %d failed: %w", i+1, err)
		}
		r.Index = i
		r.Cold = i == 0
		results = append(results, r)
	}

	return results, nil
}

func measure(ctx context.Context, url string, req client.Request) (RunResult, error) {
	var (
		r       RunResult
		rate    int
		samples int
	)

	start := time.Now()
	err := client.Stream(ctx, url, req, func(f protocol.Frame) error {
		switch f.Kind {
		case protocol.KindSampleRate:
			rate = f.SampleRate
		case protocol.KindAudio:
			if r.Chunks == 0 {
				r.FirstAudio = time.Since(start)
			}
			r.Chunks++
			samples += len(f.PCM) / 2
		}
		return nil
	})
	if err != nil {
		return RunResult{}, err
	}

	r.Duration = time.Since(start)
	r.AudioDuration = AudioDuration(samples, rate)
	r.RTF = CalcRTF(r.Duration, r.AudioDuration)
	return r, nil
}

// ---------------------------------------------------------------------------
// RTF helpers
// ---------------------------------------------------------------------------

// CalcRTF returns synthesis_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(synthDur) / float64(audioDur)
}

// AudioDuration returns the playback time of n mono samples at rate.
func AudioDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// MeanRTF averages the realtime factor over runs.
func MeanRTF(runs []RunResult) float64 {
	if len(runs) == 0 {
		return 0
	}
	var total float64
	for _, r := range runs {
		total += r.RTF
	}
	return total / float64(len(runs))
}

// ---------------------------------------------------------------------------
// RTF threshold gate
// ---------------------------------------------------------------------------

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
// stats summarizes the time to first audio.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %10s  %12s  %8s\n", "Run", "Cold", "First(ms)", "Total(ms)", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 60))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %10.1f  %12.1f  %8.3f\n",
			r.Index+1,
			cold,
			float64(r.FirstAudio.Milliseconds()),
			float64(r.Duration.Milliseconds()),
			float64(r.AudioDuration.Milliseconds()),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 60))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (min)\n", "", "", float64(stats.Min.Milliseconds()))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (mean)\n", "", "", float64(stats.Mean.Milliseconds()))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (max)\n", "", "", float64(stats.Max.Milliseconds()))

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"first_audio"`
}

type jsonRun struct {
	Index        int     `json:"index"`
	Cold         bool    `json:"cold"`
	FirstAudioMS float64 `json:"first_audio_ms"`
	DurationMS   float64 `json:"duration_ms"`
	AudioMS      float64 `json:"audio_ms"`
	Chunks       int     `json:"chunks"`
	RTF          float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:  float64(stats.Min.Milliseconds()),
			MeanMS: float64(stats.Mean.Milliseconds()),
			MaxMS:  float64(stats.Max.Milliseconds()),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:        r.Index,
			Cold:         r.Cold,
			FirstAudioMS: float64(r.FirstAudio.Milliseconds()),
			DurationMS:   float64(r.Duration.Milliseconds()),
			AudioMS:      float64(r.AudioDuration.Milliseconds()),
			Chunks:       r.Chunks,
			RTF:          r.RTF,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
