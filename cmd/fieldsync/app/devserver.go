package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/api"
	"github.com/fieldsync/fieldsync/internal/remote/fakeserver"
)

func newDevServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory sync API for local development",
		Long: `Run an in-memory implementation of the sync API that engines can push to and
pull from. Records are lost when the process exits. Pushed payloads missing any of
the --require fields are rejected with field errors.`,
		RunE: runDevServer,
	}
	cmd.Flags().String("address", "127.0.0.1:8091", "Address to listen on")
	cmd.Flags().StringSlice("require", nil, "Top-level fields every pushed payload must carry")
	return cmd
}

func runDevServer(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	address := v.GetString("address")
	required, err := cmd.Flags().GetStringSlice("require")
	if err != nil {
		return err
	}

	var opts []fakeserver.Option
	if len(required) > 0 {
		opts = append(opts, fakeserver.WithValidator(fakeserver.RequiredFields(required...)))
	}
	fake := fakeserver.New(opts...)

	server := &http.Server{
		Addr:              address,
		Handler:           middleware.RequestID(api.LoggingMiddleware(fake.Handler())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Development sync API listening", "address", address, "required_fields", required)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
