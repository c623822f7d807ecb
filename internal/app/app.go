// Package app wires the sync engine together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/sync/coordinator"
	"github.com/fieldsync/fieldsync/internal/telemetry"
)

// SyncApp encapsulates all components needed to run the sync engine
type SyncApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server
	telemetry  *telemetry.Telemetry

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start runs the background coordinator and the control API.
// It blocks until the HTTP server stops or encounters an error.
func (app *SyncApp) Start() error {
	go func() {
		if err := app.components.SyncCoordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Control API listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// RunOnce prepares the cycle status, resets records left in flight and runs a single
// pass over the given record types, or over every record type when none are given.
// It is used by one-shot invocations that do not start the background loop.
func (app *SyncApp) RunOnce(ctx context.Context, recordTypes ...string) (*coordinator.AggregatedResult, error) {
	if err := app.components.StateService.Initialize(ctx, app.config.RecordTypes); err != nil {
		return nil, fmt.Errorf("failed to initialize cycle status: %w", err)
	}
	for _, s := range app.components.Syncers {
		if _, err := s.ResetZombies(ctx); err != nil {
			return nil, err
		}
	}

	if len(recordTypes) == 0 {
		return app.components.SyncCoordinator.SyncAll(ctx), nil
	}

	result := &coordinator.AggregatedResult{}
	for _, name := range recordTypes {
		r, err := app.components.SyncCoordinator.SyncNow(ctx, name)
		if err != nil {
			return nil, err
		}
		result.Results = append(result.Results, r)
	}
	return result, nil
}

// Stop gracefully stops the application with the given timeout.
// It stops the sync coordinator, then the HTTP server, then releases storage and telemetry.
func (app *SyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down sync engine...")

	if err := app.components.SyncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
		}
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if app.telemetry != nil {
		if err := app.telemetry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
		}
	}

	slog.Info("Sync engine shutdown complete")
	return errors.Join(errs...)
}

// GetConfig returns the application configuration
func (app *SyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *SyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired components
func (app *SyncApp) Components() *AppComponents {
	return app.components
}
