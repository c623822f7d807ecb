// Package storage creates the record stores of every configured record type
// on the backend selected in the configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldsync/fieldsync/database"
	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/storage/memory"
	"github.com/fieldsync/fieldsync/internal/storage/postgres"
	"github.com/fieldsync/fieldsync/internal/storage/sqlite"
)

// Factory hands out record stores sharing one backend.
// Asking twice for the same record type returns the same store.
type Factory interface {
	// Store returns the store of a record type
	Store(recordType string) record.Store

	// Type returns the configured storage type
	Type() string

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error

	// Pool returns the Postgres pool of database storage, nil for other types
	Pool() *pgxpool.Pool

	// Cleanup releases any resources held by this factory, such as database connections.
	Cleanup()
}

// NewFactory creates a storage factory for the configured storage type.
// SQL backends are migrated to the latest schema before use.
func NewFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.Storage.GetType() {
	case config.StorageTypeMemory:
		return newFactory(config.StorageTypeMemory, func(name string) record.Store {
			return memory.New(name)
		}, nil, nil), nil

	case config.StorageTypeSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.GetSQLitePath())
		if err != nil {
			return nil, err
		}
		return newFactory(config.StorageTypeSQLite, func(name string) record.Store {
			return db.Store(name)
		}, db.Ping, func() {
			if err := db.Close(); err != nil {
				slog.Error("Failed to close sqlite database", "error", err)
			}
		}), nil

	case config.StorageTypeDatabase:
		pool, err := NewPostgresPool(ctx, cfg.Storage.Database)
		if err != nil {
			return nil, err
		}
		lock, err := postgres.AcquireEngineLock(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		f := newFactory(config.StorageTypeDatabase, func(name string) record.Store {
			return postgres.New(pool, name)
		}, pool.Ping, func() {
			if err := lock.Release(context.Background()); err != nil {
				slog.Error("Failed to release engine lock", "error", err)
			}
			pool.Close()
		})
		f.pool = pool
		return f, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.GetType())
	}
}

// NewPostgresPool migrates the configured database and opens a connection pool to it
func NewPostgresPool(ctx context.Context, dbCfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if dbCfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	connString, err := dbCfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	m, err := database.NewMigrator(database.DialectPostgres, connString)
	if err != nil {
		return nil, err
	}
	migrateErr := database.MigrateUp(m)
	if closeErr := database.CloseMigrator(m); closeErr != nil {
		slog.Warn("Failed to close postgres migrator", "error", closeErr)
	}
	if migrateErr != nil {
		return nil, migrateErr
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if dbCfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = dbCfg.MaxOpenConns
	}
	if lifetime := dbCfg.GetConnMaxLifetime(); lifetime > 0 {
		poolCfg.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connection established",
		"user", dbCfg.User, "host", dbCfg.Host, "port", dbCfg.Port, "database", dbCfg.Database)
	return pool, nil
}

type factory struct {
	storageType string
	newStore    func(recordType string) record.Store
	ping        func(ctx context.Context) error
	cleanup     func()
	pool        *pgxpool.Pool

	mu     sync.Mutex
	stores map[string]record.Store
	once   sync.Once
}

func newFactory(
	storageType string,
	newStore func(string) record.Store,
	ping func(context.Context) error,
	cleanup func(),
) *factory {
	return &factory{
		storageType: storageType,
		newStore:    newStore,
		ping:        ping,
		cleanup:     cleanup,
		stores:      make(map[string]record.Store),
	}
}

func (f *factory) Store(recordType string) record.Store {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.stores[recordType]; ok {
		return s
	}
	s := f.newStore(recordType)
	f.stores[recordType] = s
	return s
}

func (f *factory) Type() string {
	return f.storageType
}

func (f *factory) Ping(ctx context.Context) error {
	if f.ping == nil {
		return nil
	}
	return f.ping(ctx)
}

func (f *factory) Pool() *pgxpool.Pool {
	return f.pool
}

func (f *factory) Cleanup() {
	f.once.Do(func() {
		if f.cleanup != nil {
			f.cleanup()
		}
	})
}
