package database

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresMigrationURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "postgres://u:p@localhost:5432/db?sslmode=disable", want: "pgx5://u:p@localhost:5432/db?sslmode=disable"},
		{in: "postgresql://u@host/db", want: "pgx5://u@host/db"},
		{in: "pgx5://u@host/db", want: "pgx5://u@host/db"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PostgresMigrationURL(tt.in))
	}
}

func TestNewMigrator_UnknownDialect(t *testing.T) {
	t.Parallel()

	_, err := NewMigrator(Dialect("oracle"), "oracle://nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown migration dialect")
}

func TestMigrationSetsArePaired(t *testing.T) {
	t.Parallel()

	for _, dialect := range []Dialect{DialectSQLite, DialectPostgres} {
		ups, err := fs.Glob(migrationsFS, "migrations/"+string(dialect)+"/*.up.sql")
		require.NoError(t, err)
		downs, err := fs.Glob(migrationsFS, "migrations/"+string(dialect)+"/*.down.sql")
		require.NoError(t, err)
		assert.NotEmpty(t, ups, dialect)
		assert.Len(t, downs, len(ups), dialect)
	}
}

func TestSQLiteMigrations(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "fieldsync.db")

	m, err := NewMigrator(DialectSQLite, SQLiteMigrationURL(dbPath))
	require.NoError(t, err)
	defer func() { _ = CloseMigrator(m) }()

	fnames, err := fs.Glob(migrationsFS, "migrations/sqlite/*.up.sql")
	require.NoError(t, err)

	// every migration must roll back cleanly before the next one is applied
	for range fnames {
		require.NoError(t, m.Steps(1))
		require.NoError(t, m.Steps(-1))
		require.NoError(t, m.Steps(1))
	}

	// running again is a no-op
	require.NoError(t, MigrateUp(m))

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	err = db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('sync_records', 'pull_cursors')`,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPostgresMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	connStr, cleanupFunc := SetupTestDBContainer(t, ctx)
	t.Cleanup(cleanupFunc)

	m, err := NewMigrator(DialectPostgres, connStr)
	require.NoError(t, err)
	defer func() { _ = CloseMigrator(m) }()

	fnames, err := fs.Glob(migrationsFS, "migrations/postgres/*.up.sql")
	require.NoError(t, err)

	for range fnames {
		require.NoError(t, m.Steps(1))
		require.NoError(t, m.Steps(-1))
		require.NoError(t, m.Steps(1))
	}

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(len(fnames)), version)

	require.NoError(t, MigrateDown(m, 0))
}
