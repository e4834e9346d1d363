// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope of the service metrics
const MeterName = "domain-search"

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// Metrics holds the orchestrator instruments
type Metrics struct {
	batches   otelmetric.Int64Counter
	generated otelmetric.Int64Counter
	checks    otelmetric.Int64Counter
	terminal  otelmetric.Int64Counter
	batchTime otelmetric.Float64Histogram
	meter     otelmetric.Meter
}

// NewMetrics creates the instruments on the global meter provider. Without
// InitMetrics the global provider is a no-op and recording is free.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(MeterName)
	m := &Metrics{meter: meter}

	var err error
	if m.batches, err = meter.Int64Counter("domain_search.batches",
		otelmetric.WithDescription("Batches run, by outcome")); err != nil {
		return nil, err
	}
	if m.generated, err = meter.Int64Counter("domain_search.candidates.generated",
		otelmetric.WithDescription("Fresh candidates produced by generators")); err != nil {
		return nil, err
	}
	if m.checks, err = meter.Int64Counter("domain_search.availability.checks",
		otelmetric.WithDescription("Availability lookups, by outcome")); err != nil {
		return nil, err
	}
	if m.terminal, err = meter.Int64Counter("domain_search.jobs.terminal",
		otelmetric.WithDescription("Jobs reaching a terminal state, by state")); err != nil {
		return nil, err
	}
	if m.batchTime, err = meter.Float64Histogram("domain_search.batch.duration",
		otelmetric.WithDescription("Batch wall time"),
		otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordBatch counts a finished batch
func (m *Metrics) RecordBatch(ctx context.Context, backend string, degraded bool, seconds float64, generated int) {
	if m == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("backend", backend),
		attribute.Bool("degraded", degraded),
	)
	m.batches.Add(ctx, 1, attrs)
	m.batchTime.Record(ctx, seconds, attrs)
	m.generated.Add(ctx, int64(generated), otelmetric.WithAttributes(attribute.String("backend", backend)))
}

// RecordCheck counts availability lookups with the given outcome
func (m *Metrics) RecordCheck(ctx context.Context, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.checks.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTerminal counts a job reaching a terminal state
func (m *Metrics) RecordTerminal(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.terminal.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("state", state)))
}

// ObserveGauge registers an observable gauge read on every scrape
func (m *Metrics) ObserveGauge(name, description string, read func() int64) error {
	if m == nil {
		return nil
	}
	_, err := m.meter.Int64ObservableGauge(name,
		otelmetric.WithDescription(description),
		otelmetric.WithInt64Callback(func(ctx context.Context, obs otelmetric.Int64Observer) error {
			obs.Observe(read())
			return nil
		}),
	)
	return err
}
