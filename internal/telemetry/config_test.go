package telemetry

import (
	"testing"
	"time"

	"github.com/aws/smithy-go/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigGetters(t *testing.T) {
	t.Parallel()

	empty := &Config{}
	assert.Equal(t, DefaultServiceName, empty.GetServiceName())
	assert.Equal(t, "unknown", empty.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, empty.GetEndpoint())

	set := &Config{ServiceName: "fieldsync-hub", ServiceVersion: "1.4.0", Endpoint: "collector:4318"}
	assert.Equal(t, "fieldsync-hub", set.GetServiceName())
	assert.Equal(t, "1.4.0", set.GetServiceVersion())
	assert.Equal(t, "collector:4318", set.GetEndpoint())
}

func TestTracingConfig_GetSampling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config *TracingConfig
		want   float64
	}{
		{name: "nil config", config: nil, want: DefaultSampling},
		{name: "unset", config: &TracingConfig{Enabled: true}, want: DefaultSampling},
		{name: "explicit zero", config: &TracingConfig{Enabled: true, Sampling: ptr.Float64(0)}, want: 0},
		{name: "explicit ratio", config: &TracingConfig{Enabled: true, Sampling: ptr.Float64(0.25)}, want: 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, tt.config.GetSampling(), 1e-9)
		})
	}
}

func TestMetricsConfig_GetExportInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config *MetricsConfig
		want   time.Duration
	}{
		{name: "nil config", config: nil, want: DefaultExportInterval},
		{name: "unset", config: &MetricsConfig{}, want: DefaultExportInterval},
		{name: "configured", config: &MetricsConfig{ExportInterval: "5m"}, want: 5 * time.Minute},
		{name: "unparsable", config: &MetricsConfig{ExportInterval: "often"}, want: DefaultExportInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.config.GetExportInterval())
		})
	}
}

func TestConfigEnabledFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		config         *Config
		wantTracing    bool
		wantMetrics    bool
		wantPrometheus bool
	}{
		{name: "nil config", config: nil},
		{
			name: "globally disabled",
			config: &Config{
				Tracing: &TracingConfig{Enabled: true},
				Metrics: &MetricsConfig{Enabled: true, Prometheus: true},
			},
		},
		{
			name:        "otlp metrics and tracing",
			config:      &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true}, Metrics: &MetricsConfig{Enabled: true}},
			wantTracing: true,
			wantMetrics: true,
		},
		{
			name:           "prometheus metrics only",
			config:         &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Prometheus: true}},
			wantMetrics:    true,
			wantPrometheus: true,
		},
		{
			name:   "prometheus with metrics disabled",
			config: &Config{Enabled: true, Metrics: &MetricsConfig{Prometheus: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantTracing, tt.config.TracingEnabled())
			assert.Equal(t, tt.wantMetrics, tt.config.MetricsEnabled())
			assert.Equal(t, tt.wantPrometheus, tt.config.PrometheusEnabled())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{name: "nil config", config: nil},
		{
			name:   "disabled config ignores invalid sections",
			config: &Config{Tracing: &TracingConfig{Enabled: true, Sampling: ptr.Float64(2)}},
		},
		{
			name: "valid full config",
			config: &Config{
				Enabled:  true,
				Endpoint: "localhost:4318",
				Insecure: true,
				Headers:  map[string]string{"x-api-key": "secret"},
				Tracing:  &TracingConfig{Enabled: true, Sampling: ptr.Float64(0.5)},
				Metrics:  &MetricsConfig{Enabled: true, ExportInterval: "2m"},
			},
		},
		{
			name:   "disabled tracing ignores sampling",
			config: &Config{Enabled: true, Tracing: &TracingConfig{Sampling: ptr.Float64(-1)}},
		},
		{
			name:    "sampling above one",
			config:  &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: ptr.Float64(1.1)}},
			wantErr: "tracing: sampling must be between 0.0 and 1.0",
		},
		{
			name:    "negative sampling",
			config:  &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: ptr.Float64(-0.1)}},
			wantErr: "tracing: sampling must be between 0.0 and 1.0",
		},
		{
			name:    "unparsable export interval",
			config:  &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, ExportInterval: "hourly"}},
			wantErr: "metrics: invalid exportInterval",
		},
		{
			name:    "non-positive export interval",
			config:  &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, ExportInterval: "0s"}},
			wantErr: "metrics: exportInterval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigYAML(t *testing.T) {
	t.Parallel()

	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(`
enabled: true
endpoint: otel-collector:4318
headers:
  x-api-key: secret
tracing:
  enabled: true
  sampling: 0
metrics:
  enabled: true
  prometheus: true
`), &cfg))

	require.NotNil(t, cfg.Tracing.Sampling)
	assert.Zero(t, cfg.Tracing.GetSampling())
	assert.Equal(t, map[string]string{"x-api-key": "secret"}, cfg.Headers)
	assert.True(t, cfg.PrometheusEnabled())
	assert.NoError(t, cfg.Validate())
}
