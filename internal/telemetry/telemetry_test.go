package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"textassist/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	tel, err := Setup(config.TelemetryConfig{}, nil)
	require.NoError(t, err)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetupWritesSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	defer otel.SetTracerProvider(previous)

	var buf bytes.Buffer
	tel, err := Setup(config.TelemetryConfig{Tracing: true}, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer(InstrumentationName).Start(context.Background(), "cycle.test")
	span.End()

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "cycle.test")
}

func TestMetricsRecording(t *testing.T) {
	ctx := context.Background()
	for _, enabled := range []bool{false, true} {
		m, err := NewMetrics(enabled)
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			m.RecordCycleStarted(ctx, "fix_grammar")
			m.RecordProviderDone(ctx, "gemini", 120*time.Millisecond)
			m.RecordCycleFinished(ctx, "fix_grammar", "success")
			m.RecordUndo(ctx)
		})
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCycleStarted(context.Background(), "rewrite")
		m.RecordCycleFinished(context.Background(), "rewrite", "empty_result")
		m.RecordUndo(context.Background())
	})
}
