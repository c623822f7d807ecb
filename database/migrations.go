// Package database provides schema migration tooling for the local record stores.
package database

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5:// scheme
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3" // registers the sqlite3:// scheme
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Dialect names a SQL backend with its own migration set
type Dialect string

const (
	// DialectSQLite is the on-device store
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres is the facility hub store
	DialectPostgres Dialect = "postgres"
)

// Migrator is the interface for the migration tooling.
type Migrator interface {
	Up() error
	Down() error
	Steps(int) error
	Version() (uint, bool, error)
	Close() (error, error)
}

func migrationsSource(dialect Dialect) (source.Driver, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unknown migration dialect %q", dialect)
	}
	return iofs.New(migrationsFS, path.Join("migrations", string(dialect)))
}

// NewMigrator returns a migration instance for the given dialect and database URL.
// SQLite URLs use the sqlite3:// scheme; Postgres URLs may use postgres://, postgresql://
// or pgx5://.
func NewMigrator(dialect Dialect, databaseURL string) (Migrator, error) {
	src, err := migrationsSource(dialect)
	if err != nil {
		return nil, err
	}
	if dialect == DialectPostgres {
		databaseURL = PostgresMigrationURL(databaseURL)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migrator: %w", dialect, err)
	}
	return m, nil
}

// SQLiteMigrationURL converts a database file path into a migrate URL
func SQLiteMigrationURL(dbPath string) string {
	return "sqlite3://" + dbPath + "?_busy_timeout=5000"
}

// PostgresMigrationURL rewrites a postgres connection URL to the pgx v5 migrate scheme
func PostgresMigrationURL(connString string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(connString, prefix) {
			return "pgx5://" + strings.TrimPrefix(connString, prefix)
		}
	}
	return connString
}

// MigrateUp applies every pending migration. An up-to-date schema is not an error.
func MigrateUp(m Migrator) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// MigrateDown reverts the given number of migrations; steps <= 0 reverts all of them
func MigrateDown(m Migrator, steps int) error {
	var err error
	if steps <= 0 {
		err = m.Down()
	} else {
		err = m.Steps(-steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}
	return nil
}

// CloseMigrator releases the migrator's source and database handles
func CloseMigrator(m Migrator) error {
	srcErr, dbErr := m.Close()
	return errors.Join(srcErr, dbErr)
}
