package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRecordType = "patients"

func TestFileStatusPersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatusPersistence(tmpDir)
	require.NotNil(t, persistence)

	now := time.Now().UTC()
	testStatus := &CycleStatus{
		Phase:        PhaseIdle,
		Message:      "Sync completed successfully",
		LastAttempt:  &now,
		LastSyncTime: &now,
		Pushed:       5,
		Pulled:       12,
		SyncInterval: "FREQUENT",
	}

	ctx := context.Background()
	require.NoError(t, persistence.SaveStatus(ctx, testRecordType, testStatus))

	_, err := os.Stat(filepath.Join(tmpDir, testRecordType, StatusFileName))
	require.NoError(t, err)

	loaded, err := persistence.LoadStatus(ctx, testRecordType)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, testStatus.Phase, loaded.Phase)
	assert.Equal(t, testStatus.Message, loaded.Message)
	assert.Equal(t, 5, loaded.Pushed)
	assert.Equal(t, 12, loaded.Pulled)
	assert.Equal(t, "FREQUENT", loaded.SyncInterval)
	require.NotNil(t, loaded.LastSyncTime)
	assert.True(t, now.Equal(*loaded.LastSyncTime))
}

func TestFileStatusPersistence_LoadNonExistent(t *testing.T) {
	t.Parallel()

	persistence := NewFileStatusPersistence(t.TempDir())

	loaded, err := persistence.LoadStatus(context.Background(), testRecordType)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, Phase(""), loaded.Phase)
	assert.Empty(t, loaded.Message)
}

func TestFileStatusPersistence_Overwrite(t *testing.T) {
	t.Parallel()

	persistence := NewFileStatusPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, persistence.SaveStatus(ctx, testRecordType, &CycleStatus{
		Phase:        PhasePushing,
		AttemptCount: 1,
	}))
	require.NoError(t, persistence.SaveStatus(ctx, testRecordType, &CycleStatus{
		Phase:         PhaseFailed,
		Message:       "push failed",
		LastErrorKind: "network",
		AttemptCount:  2,
	}))

	loaded, err := persistence.LoadStatus(ctx, testRecordType)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, loaded.Phase)
	assert.Equal(t, "network", loaded.LastErrorKind)
	assert.Equal(t, 2, loaded.AttemptCount)
}

func TestFileStatusPersistence_CorruptFile(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatusPersistence(tmpDir)

	dir := filepath.Join(tmpDir, testRecordType)
	require.NoError(t, os.MkdirAll(dir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, StatusFileName), []byte("{not json"), 0600))

	_, err := persistence.LoadStatus(context.Background(), testRecordType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}

func TestFileStatusPersistence_LoadAllStatus(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatusPersistence(tmpDir)
	ctx := context.Background()

	all, err := persistence.LoadAllStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, persistence.SaveStatus(ctx, "patients", &CycleStatus{Phase: PhaseIdle}))
	require.NoError(t, persistence.SaveStatus(ctx, "facilities", &CycleStatus{Phase: PhaseFailed}))

	// stray files next to the record type directories are ignored
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "README"), []byte("x"), 0600))

	all, err = persistence.LoadAllStatus(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, PhaseIdle, all["patients"].Phase)
	assert.Equal(t, PhaseFailed, all["facilities"].Phase)
}

func TestFileStatusPersistence_MissingBaseDir(t *testing.T) {
	t.Parallel()

	persistence := NewFileStatusPersistence(filepath.Join(t.TempDir(), "does-not-exist"))

	all, err := persistence.LoadAllStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStatusPersistence_SaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatusPersistence(tmpDir)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, persistence.SaveStatus(ctx, testRecordType, &CycleStatus{Phase: PhaseIdle, AttemptCount: i}))
	}

	entries, err := os.ReadDir(filepath.Join(tmpDir, testRecordType))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFileName, entries[0].Name())

	loaded, err := persistence.LoadStatus(ctx, testRecordType)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.AttemptCount)
}
