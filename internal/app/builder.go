package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fieldsync/fieldsync/internal/api"
	"github.com/fieldsync/fieldsync/internal/approval"
	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/httpclient"
	"github.com/fieldsync/fieldsync/internal/remote"
	"github.com/fieldsync/fieldsync/internal/service"
	"github.com/fieldsync/fieldsync/internal/status"
	"github.com/fieldsync/fieldsync/internal/storage"
	pkgsync "github.com/fieldsync/fieldsync/internal/sync"
	"github.com/fieldsync/fieldsync/internal/sync/coordinator"
	"github.com/fieldsync/fieldsync/internal/sync/state"
	"github.com/fieldsync/fieldsync/internal/telemetry"
	"github.com/fieldsync/fieldsync/internal/versions"
)

const (
	defaultRequestTimeout = 5 * time.Minute
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Minute
	defaultIdleTimeout    = 60 * time.Second
)

// SyncAppOption is a function that configures the sync app builder
type SyncAppOption func(*syncAppConfig) error

// syncAppConfig holds the builder state of a SyncApp. Component overrides are
// primarily for testing; production uses the defaults built from the configuration.
type syncAppConfig struct {
	config *config.Config

	storageFactory storage.Factory
	remoteClient   remote.Client
	telemetry      *telemetry.Telemetry
	approved       bool

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...SyncAppOption) (*syncAppConfig, error) {
	cfg := &syncAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.GetAPIAddress()
	}

	return cfg, nil
}

// NewSyncApp builds every component of the sync engine from the configuration
func NewSyncApp(ctx context.Context, opts ...SyncAppOption) (*SyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	ownsTelemetry := cfg.telemetry == nil
	if ownsTelemetry {
		cfg.telemetry, err = telemetry.New(ctx,
			telemetry.WithTelemetryConfig(cfg.config.Telemetry),
			telemetry.WithDeviceName(cfg.config.GetDeviceName()))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	if cfg.storageFactory == nil {
		cfg.storageFactory, err = storage.NewFactory(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if !cleanupNeeded {
			return
		}
		cfg.storageFactory.Cleanup()
		if ownsTelemetry {
			_ = cfg.telemetry.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	components, err := buildSyncComponents(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, components.SyncService)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	factory := cfg.storageFactory
	return &SyncApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		telemetry:  cfg.telemetry,
		ctx:        appCtx,
		cancelFunc: func() {
			cancel()
			factory.Cleanup()
		},
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the control API address, overriding api.address
func WithAddress(addr string) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithRemoteClient allows injecting a custom sync API client (for testing)
func WithRemoteClient(c remote.Client) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		cfg.remoteClient = c
		return nil
	}
}

// WithTelemetry uses already initialized telemetry providers; the caller shuts them down
func WithTelemetry(t *telemetry.Telemetry) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithApproved sets the initial position of the approved-user gate
func WithApproved(approved bool) SyncAppOption {
	return func(cfg *syncAppConfig) error {
		cfg.approved = approved
		return nil
	}
}

// buildRemoteClient builds the sync API client with the configured credentials and retry policy
func buildRemoteClient(cfg *config.Config) (remote.Client, error) {
	token, err := cfg.Remote.GetToken()
	if err != nil {
		return nil, err
	}

	userAgent := versions.UserAgent()
	if cfg.Remote.UserAgent != "" {
		userAgent = cfg.Remote.GetUserAgent()
	}

	httpOpts := []httpclient.Option{
		httpclient.WithUserAgent(userAgent),
		httpclient.WithHTTPClient(&http.Client{
			Timeout:   cfg.Remote.GetTimeout(),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if token != "" {
		httpOpts = append(httpOpts, httpclient.WithBearerToken(token))
	} else {
		slog.Warn("No remote token configured; sync requests are sent without authorization")
	}

	remoteOpts := []remote.Option{remote.WithMaxTries(cfg.Remote.GetMaxRetries())}
	for _, rt := range cfg.RecordTypes {
		remoteOpts = append(remoteOpts, remote.WithEndpoint(rt.Name, remote.Endpoint{
			PushPath: rt.GetPushPath(),
			PullPath: rt.GetPullPath(),
		}))
	}

	return remote.NewClient(
		httpclient.NewDefaultClient(cfg.Remote.GetTimeout(), httpOpts...),
		cfg.Remote.BaseURL,
		remoteOpts...,
	), nil
}

// buildSyncComponents builds the state service, syncers, coordinator and service
func buildSyncComponents(b *syncAppConfig) (*AppComponents, error) {
	slog.Info("Initializing sync components", "storage", b.storageFactory.Type(),
		"record_type_count", len(b.config.RecordTypes))

	stateService, err := state.NewStateService(
		b.config,
		status.NewFileStatusPersistence(b.config.GetStatusDir()),
		b.storageFactory.Pool(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create state service: %w", err)
	}

	if b.remoteClient == nil {
		b.remoteClient, err = buildRemoteClient(b.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote client: %w", err)
		}
	}

	meterProvider := b.telemetry.MeterProvider()
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	storeMetrics, err := telemetry.NewStoreMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create store metrics: %w", err)
	}
	tracer := b.telemetry.Tracer(telemetry.SyncTracerName)

	syncCoordinator := coordinator.New(stateService, b.config.Schedule,
		coordinator.WithStoreMetrics(storeMetrics, b.storageFactory),
		coordinator.WithTracer(tracer),
	)

	var gate *approval.Switch
	syncers := make([]pkgsync.Syncer, 0, len(b.config.RecordTypes))
	for _, rt := range b.config.RecordTypes {
		syncerOpts := []pkgsync.Option{
			pkgsync.WithPhaseObserver(syncCoordinator.ObservePhase),
			pkgsync.WithSyncMetrics(syncMetrics),
			pkgsync.WithTracer(tracer),
			pkgsync.WithMaxPagesPerCycle(b.config.Schedule.GetMaxPagesPerCycle()),
		}
		if rt.RequiresApprovedUser {
			if gate == nil {
				gate = approval.NewSwitch(b.approved)
			}
			syncerOpts = append(syncerOpts, pkgsync.WithApprovalGate(gate))
		}

		s := pkgsync.New(rt, b.storageFactory.Store(rt.Name), b.remoteClient, syncerOpts...)
		if err := syncCoordinator.Register(s, rt); err != nil {
			return nil, err
		}
		syncers = append(syncers, s)
	}

	svc := service.New(b.config.RecordTypes, syncCoordinator, stateService, b.storageFactory, gate)

	slog.Info("Sync components initialized successfully")
	return &AppComponents{
		SyncCoordinator: syncCoordinator,
		SyncService:     svc,
		StateService:    stateService,
		Storage:         b.storageFactory,
		Syncers:         syncers,
	}, nil
}

// buildHTTPServer builds the control API server with router and middleware
func buildHTTPServer(b *syncAppConfig, svc service.SyncService) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	middlewares := b.middlewares
	if middlewares == nil {
		middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// metrics and tracing go first to capture every request
	metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	middlewares = append([]func(http.Handler) http.Handler{
		metricsMiddleware,
		telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
	}, middlewares...)

	serverOpts := []api.ServerOption{api.WithMiddlewares(middlewares...)}
	if b.telemetry.PrometheusEnabled() {
		serverOpts = append(serverOpts, api.WithMetricsHandler(promhttp.Handler()))
		slog.Info("Prometheus metrics served at /metrics")
	}

	server := &http.Server{
		Addr:              b.address,
		Handler:           api.NewServer(svc, serverOpts...),
		ReadTimeout:       b.readTimeout,
		ReadHeaderTimeout: b.readTimeout,
		WriteTimeout:      b.writeTimeout,
		IdleTimeout:       b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
