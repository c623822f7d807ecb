package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/fieldsync/database"
	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/status"
)

func TestDBStateService(t *testing.T) {
	t.Parallel()

	pool, cleanup := database.SetupTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	svc := NewDBStateService(pool)

	t.Run("initialize creates defaults", func(t *testing.T) {
		require.NoError(t, svc.Initialize(ctx, testRecordTypes))

		statuses, err := svc.ListStatuses(ctx)
		require.NoError(t, err)
		require.Len(t, statuses, 2)
		assert.Equal(t, status.PhaseIdle, statuses["patients"].Phase)
		assert.Equal(t, config.IntervalDaily, statuses["facilities"].SyncInterval)
	})

	t.Run("update and get", func(t *testing.T) {
		attempt := time.Date(2025, 5, 2, 7, 30, 0, 0, time.UTC)
		require.NoError(t, svc.UpdateStatus(ctx, "patients", &status.CycleStatus{
			Phase:         status.PhaseFailed,
			Message:       "failed to push batch 1: network unreachable",
			LastAttempt:   &attempt,
			AttemptCount:  3,
			LastErrorKind: "NetworkError",
			Pushed:        4,
			Rejected:      1,
			SyncInterval:  config.IntervalFrequent,
		}))

		got, err := svc.GetStatus(ctx, "patients")
		require.NoError(t, err)
		assert.Equal(t, status.PhaseFailed, got.Phase)
		assert.Equal(t, 3, got.AttemptCount)
		assert.Equal(t, "NetworkError", got.LastErrorKind)
		assert.Equal(t, 4, got.Pushed)
		assert.Equal(t, 1, got.Rejected)
		require.NotNil(t, got.LastAttempt)
		assert.True(t, attempt.Equal(*got.LastAttempt))
		assert.Nil(t, got.LastSyncTime)
	})

	t.Run("atomic update", func(t *testing.T) {
		claim := func(s *status.CycleStatus) bool {
			if s.IsRunning() {
				return false
			}
			s.Phase = status.PhasePulling
			return true
		}

		updated, err := svc.UpdateStatusAtomically(ctx, "facilities", claim)
		require.NoError(t, err)
		assert.True(t, updated)

		updated, err = svc.UpdateStatusAtomically(ctx, "facilities", claim)
		require.NoError(t, err)
		assert.False(t, updated)
	})

	t.Run("initialize resets interrupted cycles and drops removed types", func(t *testing.T) {
		require.NoError(t, svc.Initialize(ctx, testRecordTypes[1:]))

		statuses, err := svc.ListStatuses(ctx)
		require.NoError(t, err)
		require.Len(t, statuses, 1)
		assert.Equal(t, status.PhaseFailed, statuses["facilities"].Phase)
		assert.Equal(t, "Previous sync was interrupted", statuses["facilities"].Message)

		_, err = svc.GetStatus(ctx, "patients")
		assert.ErrorIs(t, err, ErrRecordTypeNotFound)
	})
}
