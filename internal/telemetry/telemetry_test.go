package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/genflow/config"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, mp, prop := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInit_Disabled(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	p, err := Init(context.Background(), config.TelemetryConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Same(t, before, otel.GetTracerProvider())

	_, span := p.Tracer("genflow/test").Start(context.Background(), "workflow.search")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_NilSafe(t *testing.T) {
	var p *Providers
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Tracer("genflow/test"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_ExportsSpansAndMetrics(t *testing.T) {
	restoreGlobals(t)
	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	p, err := Init(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		ServiceName: "genflow-test",
		SampleRate:  1,
	}, zaptest.NewLogger(t),
		WithServiceVersion("1.2.3"),
		WithSpanExporter(spans),
		WithMetricReader(reader),
	)
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)

	_, span := p.Tracer("genflow/test").Start(context.Background(), "workflow.analyze")
	span.End()

	counter, err := otel.Meter("genflow/test").Int64Counter("genflow_test_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)
	assert.Equal(t, "genflow_test_total", rm.ScopeMetrics[0].Metrics[0].Name)

	require.NoError(t, p.Shutdown(context.Background()))

	got := spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, "workflow.analyze", got[0].Name)
	attrs := got[0].Resource.Attributes()
	assert.Contains(t, attrs, attribute.String("service.name", "genflow-test"))
	assert.Contains(t, attrs, attribute.String("service.version", "1.2.3"))
}

func TestSampleRate(t *testing.T) {
	assert.Equal(t, 1.0, sampleRate(0))
	assert.Equal(t, 1.0, sampleRate(-0.5))
	assert.Equal(t, 1.0, sampleRate(3))
	assert.Equal(t, 0.25, sampleRate(0.25))
}
