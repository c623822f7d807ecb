package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/record"
)

func TestNewFactory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		storage  config.StorageConfig
		wantType string
		wantErr  string
	}{
		{
			name:     "memory",
			storage:  config.StorageConfig{Type: config.StorageTypeMemory},
			wantType: config.StorageTypeMemory,
		},
		{
			name:     "sqlite",
			storage:  config.StorageConfig{Type: config.StorageTypeSQLite},
			wantType: config.StorageTypeSQLite,
		},
		{
			name:    "database_without_settings",
			storage: config.StorageConfig{Type: config.StorageTypeDatabase},
			wantErr: "database configuration is required",
		},
		{
			name:    "unknown",
			storage: config.StorageConfig{Type: "redis"},
			wantErr: "unknown storage type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			storageCfg := tt.storage
			if storageCfg.Type == config.StorageTypeSQLite {
				storageCfg.SQLite = &config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "records.db")}
			}

			f, err := NewFactory(context.Background(), &config.Config{Storage: storageCfg})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			t.Cleanup(f.Cleanup)

			assert.Equal(t, tt.wantType, f.Type())
			require.NoError(t, f.Ping(context.Background()))

			patients := f.Store("patients")
			assert.Same(t, patients, f.Store("patients"))
			assert.Equal(t, "patients", patients.RecordType())

			rec := record.New(json.RawMessage(`{"name":"x"}`))
			require.NoError(t, patients.Save(context.Background(), rec))
			_, err = f.Store("facilities").Get(context.Background(), rec.ID)
			assert.ErrorIs(t, err, record.ErrNotFound)
		})
	}
}

func TestNewFactory_NilConfig(t *testing.T) {
	t.Parallel()

	_, err := NewFactory(context.Background(), nil)
	require.Error(t, err)
}

func TestFactory_CleanupIsIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	f := newFactory("test", nil, nil, func() { calls++ })
	f.Cleanup()
	f.Cleanup()
	assert.Equal(t, 1, calls)
}
