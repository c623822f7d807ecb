package telemetry

import (
	"context"
	"testing"

	"github.com/aws/smithy-go/ptr"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNew_Disabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config", config: nil},
		{name: "disabled config", config: &Config{Tracing: &TracingConfig{Enabled: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tel, err := New(context.Background(), WithTelemetryConfig(tt.config))
			require.NoError(t, err)
			assert.IsType(t, tracenoop.TracerProvider{}, tel.TracerProvider())
			assert.IsType(t, metricnoop.MeterProvider{}, tel.MeterProvider())
			assert.False(t, tel.PrometheusEnabled())
			assert.NoError(t, tel.Shutdown(context.Background()))
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tel, err := New(context.Background(), WithTelemetryConfig(&Config{
		Enabled: true,
		Tracing: &TracingConfig{Enabled: true, Sampling: ptr.Float64(3)},
	}))
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry configuration")
}

func TestNew_OTLP(t *testing.T) {
	t.Parallel()

	// exporters connect lazily, so no collector is needed
	tel, err := New(context.Background(),
		WithTelemetryConfig(&Config{
			Enabled:  true,
			Endpoint: "127.0.0.1:4318",
			Insecure: true,
			Tracing:  &TracingConfig{Enabled: true, Sampling: ptr.Float64(1)},
			Metrics:  &MetricsConfig{Enabled: true, ExportInterval: "1h"},
		}),
		WithDeviceName("tablet-7"),
	)
	require.NoError(t, err)

	assert.IsType(t, &sdktrace.TracerProvider{}, tel.TracerProvider())
	assert.IsType(t, &sdkmetric.MeterProvider{}, tel.MeterProvider())
	assert.False(t, tel.PrometheusEnabled())
	assert.NotNil(t, tel.Tracer(SyncTracerName))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// flushing to an absent collector fails fast on a cancelled context
	_ = tel.Shutdown(ctx)
}

func TestNew_Prometheus(t *testing.T) {
	t.Parallel()

	reg := promclient.NewRegistry()
	tel, err := New(context.Background(),
		WithTelemetryConfig(&Config{
			Enabled: true,
			Metrics: &MetricsConfig{Enabled: true, Prometheus: true},
		}),
		WithDeviceName("tablet-7"),
		WithRegisterer(reg),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	assert.True(t, tel.PrometheusEnabled())
	assert.IsType(t, tracenoop.TracerProvider{}, tel.TracerProvider())

	metrics, err := NewSyncMetrics(tel.MeterProvider())
	require.NoError(t, err)
	metrics.RecordPushed(context.Background(), "patients", 3)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	deviceLabel := ""
	for _, mf := range families {
		names[mf.GetName()] = true
		if mf.GetName() != "target_info" {
			continue
		}
		for _, label := range mf.GetMetric()[0].GetLabel() {
			if label.GetName() == "fieldsync_device_name" {
				deviceLabel = label.GetValue()
			}
		}
	}
	assert.True(t, names["fieldsync_records_pushed_total"], "pushed counter should be exposed")
	assert.Equal(t, "tablet-7", deviceLabel)
}

func TestNewResource(t *testing.T) {
	t.Parallel()

	t.Run("with device name", func(t *testing.T) {
		t.Parallel()

		res, err := NewResource(context.Background(), "fieldsync", "1.2.0", "tablet-7")
		require.NoError(t, err)

		attrs := attribute.NewSet(res.Attributes()...)
		v, ok := attrs.Value(semconv.ServiceNameKey)
		require.True(t, ok)
		assert.Equal(t, "fieldsync", v.AsString())
		v, ok = attrs.Value(semconv.ServiceInstanceIDKey)
		require.True(t, ok)
		assert.Equal(t, "tablet-7", v.AsString())
		v, ok = attrs.Value(AttrDeviceName)
		require.True(t, ok)
		assert.Equal(t, "tablet-7", v.AsString())
	})

	t.Run("without device name", func(t *testing.T) {
		t.Parallel()

		res, err := NewResource(context.Background(), "fieldsync", "1.2.0", "")
		require.NoError(t, err)

		attrs := attribute.NewSet(res.Attributes()...)
		_, ok := attrs.Value(AttrDeviceName)
		assert.False(t, ok)
	})
}
