package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the tracer and meter providers of the process
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	prometheus     bool
}

// Option configures New
type Option func(*options)

type options struct {
	config     *Config
	deviceName string
	registerer promclient.Registerer
}

// WithTelemetryConfig sets the telemetry configuration
func WithTelemetryConfig(cfg *Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithDeviceName tags every span and metric with the device name
func WithDeviceName(name string) Option {
	return func(o *options) {
		o.deviceName = name
	}
}

// WithRegisterer sets the registry used when metrics are served for Prometheus
func WithRegisterer(reg promclient.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// New creates the providers described by the configuration. A nil or disabled
// configuration gives no-op providers. The caller must call Shutdown.
func New(ctx context.Context, opts ...Option) (*Telemetry, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.config
	if cfg == nil || !cfg.Enabled {
		slog.Debug("Telemetry disabled")
		return noopTelemetry(ctx)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	res, err := NewResource(ctx, cfg.GetServiceName(), cfg.GetServiceVersion(), o.deviceName)
	if err != nil {
		return nil, err
	}
	common := []ProviderOption{
		WithResource(res),
		WithEndpoint(cfg.GetEndpoint()),
		WithInsecure(cfg.Insecure),
		WithHeaders(cfg.Headers),
	}

	tp, err := NewTracerProvider(ctx, append(common, WithTracingConfig(cfg.Tracing))...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	mp, err := NewMeterProvider(ctx,
		append(common, WithMetricsConfig(cfg.Metrics), WithPrometheusRegisterer(o.registerer))...)
	if err != nil {
		if sdkTP, ok := tp.(*sdktrace.TracerProvider); ok {
			_ = sdkTP.Shutdown(ctx)
		}
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}

	slog.Info("Telemetry initialized",
		"service_name", cfg.GetServiceName(),
		"service_version", cfg.GetServiceVersion(),
		"device", o.deviceName)
	return &Telemetry{
		tracerProvider: tp,
		meterProvider:  mp,
		prometheus:     cfg.PrometheusEnabled(),
	}, nil
}

func noopTelemetry(ctx context.Context) (*Telemetry, error) {
	tp, err := NewTracerProvider(ctx)
	if err != nil {
		return nil, err
	}
	mp, err := NewMeterProvider(ctx)
	if err != nil {
		return nil, err
	}
	return &Telemetry{tracerProvider: tp, meterProvider: mp}, nil
}

// TracerProvider returns the tracer provider
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// Tracer returns a named tracer
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.tracerProvider.Tracer(name, opts...)
}

// PrometheusEnabled reports whether metrics must be exposed for scraping
func (t *Telemetry) PrometheusEnabled() bool {
	return t.prometheus
}

// Shutdown flushes and stops the SDK providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if tp, ok := t.tracerProvider.(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Debug("Telemetry shut down")
	return nil
}
