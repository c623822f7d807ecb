package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/app"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the background sync engine and its control API",
		Long: `Run the sync engine: every record type is synced once at startup and then again
whenever its cadence elapses. The control API exposes status, manual sync and the
approved-user gate.

The configuration file (--config) specifies the sync API, the local store, the
record types and their cadences. See examples/ for a sample configuration.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", "", "Control API listen address (overrides api.address)")
	cmd.Flags().Bool("approved", false, "Start with the approved-user gate open")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg, closer, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []app.SyncAppOption{
		app.WithConfig(cfg),
		app.WithApproved(v.GetBool("approved")),
	}
	if address := v.GetString("address"); address != "" {
		opts = append(opts, app.WithAddress(address))
	}

	syncApp, err := app.NewSyncApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build sync engine: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- syncApp.Start()
	}()

	select {
	case err := <-errCh:
		if stopErr := syncApp.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Shutdown failed", "error", stopErr)
		}
		return err
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	}

	return syncApp.Stop(defaultGracefulTimeout)
}
