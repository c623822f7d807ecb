package state

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/status"
)

// NewStateService creates a CycleStateService matching the configured storage type.
//
// Memory storage keeps statuses in memory only, since the records themselves do not
// survive a restart either. SQLite storage persists statuses as files through
// statusPersistence. Database storage keeps them in PostgreSQL next to the records;
// the pool must not be nil in that case.
func NewStateService(
	cfg *config.Config,
	statusPersistence status.StatusPersistence,
	pool *pgxpool.Pool,
) (CycleStateService, error) {
	switch cfg.Storage.GetType() {
	case config.StorageTypeDatabase:
		if pool == nil {
			return nil, fmt.Errorf("database pool is required when storage type is database")
		}
		return NewDBStateService(pool), nil
	case config.StorageTypeMemory:
		return NewMemoryStateService(), nil
	default:
		if statusPersistence == nil {
			return nil, fmt.Errorf("status persistence is required when storage type is %s", cfg.Storage.GetType())
		}
		return NewFileStateService(statusPersistence), nil
	}
}
