// Package telemetry sets up OpenTelemetry tracing and the transformation
// cycle metrics.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"textassist/internal/config"
)

// InstrumentationName names the tracer and meter.
const InstrumentationName = "textassist"

// Telemetry owns the tracer provider installed by Setup.
type Telemetry struct {
	tp *sdktrace.TracerProvider
}

// Setup installs a global tracer provider that writes spans to w when
// tracing is enabled. With tracing disabled the global no-op provider is
// left in place.
func Setup(cfg config.TelemetryConfig, w io.Writer) (*Telemetry, error) {
	if !cfg.Tracing {
		return &Telemetry{}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return &Telemetry{tp: tp}, nil
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}
	return t.tp.Shutdown(ctx)
}

// Metrics records transformation cycle metrics.
type Metrics struct {
	cyclesStarted   metric.Int64Counter
	cyclesFinished  metric.Int64Counter
	cyclesActive    metric.Int64UpDownCounter
	providerLatency metric.Float64Histogram
	undos           metric.Int64Counter
}

// NewMetrics creates the instruments from the global meter provider, or
// from a no-op provider when disabled.
func NewMetrics(enabled bool) (*Metrics, error) {
	var provider metric.MeterProvider = noop.NewMeterProvider()
	if enabled {
		provider = otel.GetMeterProvider()
	}
	return NewMetricsFrom(provider.Meter(InstrumentationName))
}

// NewMetricsFrom creates the instruments on meter.
func NewMetricsFrom(meter metric.Meter) (*Metrics, error) {
	cyclesStarted, err := meter.Int64Counter(
		"textassist.cycles.started",
		metric.WithDescription("Transformation cycles that entered loading"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cyclesFinished, err := meter.Int64Counter(
		"textassist.cycles.finished",
		metric.WithDescription("Transformation cycles by outcome"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cyclesActive, err := meter.Int64UpDownCounter(
		"textassist.cycles.active",
		metric.WithDescription("Transformation requests in flight"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	providerLatency, err := meter.Float64Histogram(
		"textassist.provider.duration",
		metric.WithDescription("Time from request to provider answer in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	undos, err := meter.Int64Counter(
		"textassist.undo.applied",
		metric.WithDescription("Transformations reverted by the user"),
		metric.WithUnit("{undo}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cyclesStarted:   cyclesStarted,
		cyclesFinished:  cyclesFinished,
		cyclesActive:    cyclesActive,
		providerLatency: providerLatency,
		undos:           undos,
	}, nil
}

// RecordCycleStarted records a cycle entering loading.
func (m *Metrics) RecordCycleStarted(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("action", action))
	m.cyclesStarted.Add(ctx, 1, attrs)
	m.cyclesActive.Add(ctx, 1)
}

// RecordProviderDone records the provider's answer time and releases the
// in-flight count.
func (m *Metrics) RecordProviderDone(ctx context.Context, provider string, duration time.Duration) {
	if m == nil {
		return
	}
	m.providerLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)))
	m.cyclesActive.Add(ctx, -1)
}

// RecordCycleFinished records how a cycle ended: "success", "abandoned", or
// a failure kind name.
func (m *Metrics) RecordCycleFinished(ctx context.Context, action, outcome string) {
	if m == nil {
		return
	}
	m.cyclesFinished.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordUndo records an applied undo.
func (m *Metrics) RecordUndo(ctx context.Context) {
	if m == nil {
		return
	}
	m.undos.Add(ctx, 1)
}
