package app

import (
	"bufio"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldsync/fieldsync/database"
	"github.com/fieldsync/fieldsync/internal/config"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long: `Manage the schema of the configured SQLite or PostgreSQL store.
Use with 'up' or 'down' subcommands. The engine also migrates up on startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate down (0 = all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		Long: `Revert migrations of the configured store.
WARNING: This operation can result in data loss, including unsynced local changes.

Examples:
  # Revert the latest migration
  fieldsync migrate down --config config.yaml --num-steps 1 --yes

  # Revert every migration (WARNING: destroys all records)
  fieldsync migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	})
	return cmd
}

// newMigrator opens a migrator for the configured storage backend
func newMigrator(cfg *config.Config) (database.Migrator, error) {
	switch cfg.Storage.GetType() {
	case config.StorageTypeSQLite:
		path := cfg.Storage.GetSQLitePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return database.NewMigrator(database.DialectSQLite, database.SQLiteMigrationURL(path))
	case config.StorageTypeDatabase:
		connString, err := cfg.Storage.Database.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to build connection string: %w", err)
		}
		return database.NewMigrator(database.DialectPostgres, connString)
	default:
		return nil, fmt.Errorf("storage type %q has no schema to migrate", cfg.Storage.GetType())
	}
}

func setupMigration(cmd *cobra.Command) (database.Migrator, func(), error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, closer, err := loadConfig(v)
	if err != nil {
		return nil, nil, err
	}

	m, err := newMigrator(cfg)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return m, func() {
		if err := database.CloseMigrator(m); err != nil {
			slog.Error("Failed to close migrator", "error", err)
		}
		_ = closer.Close()
	}, nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, cleanup, err := setupMigration(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("Applying migrations...")
	if err := database.MigrateUp(m); err != nil {
		return err
	}
	displayMigrationVersion(m)
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt32 {
		return fmt.Errorf("number of steps exceeds maximum allowed value")
	}
	if err := confirmMigrateDown(cmd, numSteps); err != nil {
		return err
	}

	m, cleanup, err := setupMigration(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if numSteps == 0 {
		slog.Warn("Migrating down all steps - this will remove all records!")
	} else {
		slog.Info("Migrating down", "steps", numSteps)
	}
	if err := database.MigrateDown(m, int(numSteps)); err != nil { // #nosec G115 -- bounded above
		return err
	}
	displayMigrationVersion(m)
	return nil
}

func confirmMigrateDown(cmd *cobra.Command, numSteps uint) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return nil
	}

	prompt := "WARNING: This will migrate down ALL steps and delete every local record. Continue?"
	if numSteps > 0 {
		prompt = fmt.Sprintf("WARNING: This will migrate down %d step(s) and may result in data loss. Continue?", numSteps)
	}
	if !confirm(cmd, prompt) {
		return fmt.Errorf("migration cancelled by user")
	}
	return nil
}

func confirm(cmd *cobra.Command, prompt string) bool {
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s (yes/no): ", prompt)
	response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "yes" || response == "y"
}

func displayMigrationVersion(m database.Migrator) {
	version, dirty, err := m.Version()
	if err != nil {
		slog.Info("Schema has no migrations applied")
		return
	}
	if dirty {
		slog.Warn("Current migration version is dirty; manual intervention may be required", "version", version)
		return
	}
	slog.Info("Current migration version", "version", version)
}
