package server

import (
	"context"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/example/kokoro-stream/server"

// Metrics records per-session counters. A nil *Metrics records nothing.
type Metrics struct {
	sessions   metric.Int64Counter
	chunks     metric.Int64Counter
	audioBytes metric.Int64Counter
	active     metric.Int64UpDownCounter
	firstChunk metric.Float64Histogram
}

// NewMetrics creates the session instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	var (
		m   Metrics
		err error
	)

	m.sessions, err = meter.Int64Counter("kokorostream.sessions",
		metric.WithDescription("Finished sessions by outcome"))
	if err != nil {
		return nil, err
	}

	m.chunks, err = meter.Int64Counter("kokorostream.audio.chunks",
		metric.WithDescription("Audio frames sent to clients"))
	if err != nil {
		return nil, err
	}

	m.audioBytes, err = meter.Int64Counter("kokorostream.audio.bytes",
		metric.WithDescription("PCM bytes sent to clients"), metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	m.active, err = meter.Int64UpDownCounter("kokorostream.sessions.active",
		metric.WithDescription("Sessions currently streaming"))
	if err != nil {
		return nil, err
	}

	m.firstChunk, err = meter.Float64Histogram("kokorostream.first_chunk.duration",
		metric.WithDescription("Time from accepted request to first audio frame"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// NewPrometheusMetrics wires Metrics to a Prometheus exporter with its own
// registry and returns the scrape handler together with a shutdown func.
func NewPrometheusMetrics() (*Metrics, http.Handler, func(context.Context) error, error) {
	reg := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	m, err := NewMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, nil, nil, err
	}

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), provider.Shutdown, nil
}

func (m *Metrics) sessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.active.Add(ctx, 1)
}

func (m *Metrics) sessionFinished(ctx context.Context, outcome Outcome, streamed bool) {
	if m == nil {
		return
	}
	if streamed {
		m.active.Add(ctx, -1)
	}
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (m *Metrics) audioSent(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.chunks.Add(ctx, 1)
	m.audioBytes.Add(ctx, int64(n))
}

func (m *Metrics) firstAudio(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.firstChunk.Record(ctx, d.Seconds())
}
