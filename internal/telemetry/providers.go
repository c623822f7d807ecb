package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ProviderOption configures NewTracerProvider and NewMeterProvider
type ProviderOption func(*providerConfig)

type providerConfig struct {
	resource   *resource.Resource
	endpoint   string
	insecure   bool
	headers    map[string]string
	tracing    *TracingConfig
	metrics    *MetricsConfig
	registerer promclient.Registerer
}

// WithResource sets the resource attached to every span and metric
func WithResource(res *resource.Resource) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.resource = res
	}
}

// WithEndpoint sets the OTLP/HTTP collector address
func WithEndpoint(endpoint string) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.endpoint = endpoint
	}
}

// WithInsecure exports over plain HTTP
func WithInsecure(insecure bool) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.insecure = insecure
	}
}

// WithHeaders adds headers to every export request
func WithHeaders(headers map[string]string) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.headers = headers
	}
}

// WithTracingConfig enables span export; nil or disabled yields a no-op tracer provider
func WithTracingConfig(tc *TracingConfig) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.tracing = tc
	}
}

// WithMetricsConfig enables metrics; nil or disabled yields a no-op meter provider
func WithMetricsConfig(mc *MetricsConfig) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.metrics = mc
	}
}

// WithPrometheusRegisterer sets the registry the Prometheus exporter registers with.
// Defaults to the global prometheus registry.
func WithPrometheusRegisterer(reg promclient.Registerer) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.registerer = reg
	}
}

func newProviderConfig(opts []ProviderOption) *providerConfig {
	cfg := &providerConfig{endpoint: DefaultEndpoint}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.resource == nil {
		cfg.resource = resource.Default()
	}
	return cfg
}

// NewTracerProvider builds the tracer provider and installs it, with the W3C propagators,
// as the global one. The caller shuts it down.
func NewTracerProvider(ctx context.Context, opts ...ProviderOption) (trace.TracerProvider, error) {
	cfg := newProviderConfig(opts)
	if cfg.tracing == nil || !cfg.tracing.Enabled {
		slog.Debug("Tracing disabled")
		return tracenoop.NewTracerProvider(), nil
	}

	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.endpoint)}
	if cfg.insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	if len(cfg.headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracehttp.WithHeaders(cfg.headers))
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	sampling := cfg.tracing.GetSampling()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(cfg.resource),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampling))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.insecure {
		slog.Warn("Traces are exported over unencrypted HTTP", "endpoint", cfg.endpoint)
	}
	slog.Info("Tracing initialized", "endpoint", cfg.endpoint, "sampling_ratio", sampling)
	return tp, nil
}

// NewMeterProvider builds the meter provider and installs it as the global one.
// Metrics are either pulled through the Prometheus exporter or pushed over OTLP.
// The caller shuts it down.
func NewMeterProvider(ctx context.Context, opts ...ProviderOption) (metric.MeterProvider, error) {
	cfg := newProviderConfig(opts)
	if cfg.metrics == nil || !cfg.metrics.Enabled {
		slog.Debug("Metrics disabled")
		return metricnoop.NewMeterProvider(), nil
	}

	var reader sdkmetric.Reader
	if cfg.metrics.Prometheus {
		var promOpts []otelprom.Option
		if cfg.registerer != nil {
			promOpts = append(promOpts, otelprom.WithRegisterer(cfg.registerer))
		}
		exporter, err := otelprom.New(promOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		reader = exporter
	} else {
		exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.endpoint)}
		if cfg.insecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}
		if len(cfg.headers) > 0 {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithHeaders(cfg.headers))
		}
		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.metrics.GetExportInterval()))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(cfg.resource),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized",
		"prometheus", cfg.metrics.Prometheus,
		"endpoint", cfg.endpoint,
		"export_interval", cfg.metrics.GetExportInterval())
	return mp, nil
}
