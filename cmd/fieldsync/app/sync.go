package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/internal/app"
	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/httpclient"
	"github.com/fieldsync/fieldsync/internal/storage/postgres"
	"github.com/fieldsync/fieldsync/internal/storage/sqlite"
	"github.com/fieldsync/fieldsync/internal/versions"
)

// errSyncFailed makes the process exit non-zero after the pass result was printed
var errSyncFailed = errors.New("one or more record types failed to sync")

const statusRequestTimeout = 10 * time.Second

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync pass and exit",
		Long: `Run one push-then-pull cycle of every record type (or of the record types given
with --type) and print the results as JSON. The exit code is 1 when any cycle failed.`,
		RunE: runSync,
	}
	cmd.Flags().StringSlice("type", nil, "Record types to sync (default: all)")
	cmd.Flags().Bool("approved", false, "Open the approved-user gate for this pass")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	cfg, closer, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncApp, err := app.NewSyncApp(ctx, app.WithConfig(cfg), app.WithApproved(v.GetBool("approved")))
	if errors.Is(err, sqlite.ErrLocked) || errors.Is(err, postgres.ErrLocked) {
		return fmt.Errorf("%w; a running engine can sync with POST /v1/sync on its control API", err)
	}
	if err != nil {
		return fmt.Errorf("failed to build sync engine: %w", err)
	}
	defer func() { _ = syncApp.Stop(defaultGracefulTimeout) }()

	types, err := cmd.Flags().GetStringSlice("type")
	if err != nil {
		return err
	}
	result, err := syncApp.RunOnce(ctx, types...)
	if err != nil {
		return err
	}

	if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.OK() {
		return errSyncFailed
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the sync status reported by a running engine",
		Long: `Query the control API of a running engine and print the cycle status and record
counts of every record type. The address comes from --address, or from api.address
of the configuration file when --config is given.`,
		RunE: runStatus,
	}
	cmd.Flags().String("address", "", "Control API address of the running engine")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	address := v.GetString("address")
	if address == "" {
		cfg := &config.Config{}
		if v.GetString("config") != "" {
			loaded, closer, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()
			cfg = loaded
		}
		address = cfg.GetAPIAddress()
	}

	client := httpclient.NewDefaultClient(statusRequestTimeout, httpclient.WithUserAgent(versions.UserAgent()))
	ctx, cancel := context.WithTimeout(cmd.Context(), statusRequestTimeout)
	defer cancel()

	body, err := client.Get(ctx, "http://"+address+"/v1/sync/status")
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", address, err)
	}

	var status json.RawMessage = body
	return writeJSON(cmd.OutOrStdout(), status)
}
