// Package storetest holds the behavioural tests every record.Store implementation must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/status"
)

// Factory returns an empty store for the given record type
type Factory func(t *testing.T, recordType string) record.Store

// Run executes the store suite against stores produced by newStore
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s record.Store)
	}{
		{"save creates pending record", testSaveCreates},
		{"save resets any status to pending", testSaveResetsStatus},
		{"soft delete", testSoftDelete},
		{"get missing record", testGetMissing},
		{"pending records", testPendingRecords},
		{"transition lifecycle", testTransitionLifecycle},
		{"transition skips records in other statuses", testTransitionSkipsOthers},
		{"transition rejects unreachable target", testTransitionInvalidTarget},
		{"invalid keeps field errors", testInvalidKeepsReasons},
		{"upsert merges as done", testUpsertMerges},
		{"upsert is idempotent", testUpsertIdempotent},
		{"reset in flight", testResetInFlight},
		{"count by status", testCountByStatus},
		{"cursor round trip", testCursor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t, "patients_"+uuid.NewString()[:8]))
		})
	}

	t.Run("record types are isolated", func(t *testing.T) {
		ctx := context.Background()
		a := newStore(t, "facilities_"+uuid.NewString()[:8])
		b := newStore(t, "encounters_"+uuid.NewString()[:8])

		rec := record.New(json.RawMessage(`{"name":"a"}`))
		require.NoError(t, a.Save(ctx, rec))
		require.NoError(t, a.SetCursor(ctx, "c-a"))

		_, err := b.Get(ctx, rec.ID)
		assert.True(t, errors.Is(err, record.ErrNotFound))
		_, ok, err := b.GetCursor(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func mustSave(t *testing.T, s record.Store, payload string) *record.Record {
	t.Helper()
	rec := record.New(json.RawMessage(payload))
	require.NoError(t, s.Save(context.Background(), rec))
	return rec
}

func mustGet(t *testing.T, s record.Store, id uuid.UUID) *record.Record {
	t.Helper()
	rec, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func testSaveCreates(t *testing.T, s record.Store) {
	rec := mustSave(t, s, `{"full_name":"Amina","age":41}`)

	got := mustGet(t, s, rec.ID)
	assert.Equal(t, status.StatusPending, got.Status)
	assert.JSONEq(t, `{"full_name":"Amina","age":41}`, string(got.Payload))
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
	assert.True(t, got.UpdatedAt.Equal(rec.UpdatedAt))
	assert.Nil(t, got.DeletedAt)
}

func testSaveResetsStatus(t *testing.T, s record.Store) {
	ctx := context.Background()
	rec := mustSave(t, s, `{"v":1}`)

	for _, target := range []status.SyncStatus{status.StatusInFlight, status.StatusInvalid} {
		_, err := s.Transition(ctx, []uuid.UUID{rec.ID}, status.StatusInFlight, nil)
		require.NoError(t, err)
		if target == status.StatusInvalid {
			_, err = s.Transition(ctx, []uuid.UUID{rec.ID}, status.StatusInvalid,
				map[uuid.UUID][]record.FieldError{rec.ID: {{Field: "v", Messages: []string{"bad"}}}})
			require.NoError(t, err)
		}
		require.Equal(t, target, mustGet(t, s, rec.ID).Status)

		before := mustGet(t, s, rec.ID).UpdatedAt
		time.Sleep(2 * time.Millisecond)

		edited := mustGet(t, s, rec.ID)
		edited.Payload = json.RawMessage(`{"v":2}`)
		require.NoError(t, s.Save(ctx, edited))

		got := mustGet(t, s, rec.ID)
		assert.Equal(t, status.StatusPending, got.Status, "after %s", target)
		assert.True(t, got.UpdatedAt.After(before))
		assert.Empty(t, got.ValidationErrors)
		assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
	}
}

func testSoftDelete(t *testing.T, s record.Store) {
	ctx := context.Background()
	rec := mustSave(t, s, `{"v":1}`)
	_, err := s.Transition(ctx, []uuid.UUID{rec.ID}, status.StatusInFlight, nil)
	require.NoError(t, err)
	_, err = s.Transition(ctx, []uuid.UUID{rec.ID}, status.StatusDone, nil)
	require.NoError(t, err)

	require.NoError(t, s.SoftDelete(ctx, rec.ID))

	got := mustGet(t, s, rec.ID)
	assert.True(t, got.IsDeleted())
	assert.Equal(t, status.StatusPending, got.Status)

	err = s.SoftDelete(ctx, uuid.New())
	assert.True(t, errors.Is(err, record.ErrNotFound))
}

func testGetMissing(t *testing.T, s record.Store) {
	_, err := s.Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, record.ErrNotFound))
}

func testPendingRecords(t *testing.T, s record.Store) {
	ctx := context.Background()
	a := mustSave(t, s, `{"n":"a"}`)
	b := mustSave(t, s, `{"n":"b"}`)
	c := mustSave(t, s, `{"n":"c"}`)

	_, err := s.Transition(ctx, []uuid.UUID{c.ID}, status.StatusInFlight, nil)
	require.NoError(t, err)

	pending, err := s.PendingRecords(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, record.IDs(pending))

	both, err := s.RecordsWithStatus(ctx, status.StatusPending, status.StatusInFlight)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID, c.ID}, record.IDs(both))

	none, err := s.RecordsWithStatus(ctx, status.StatusDone)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testTransitionLifecycle(t *testing.T, s record.Store) {
	ctx := context.Background()
	a := mustSave(t, s, `{"n":"a"}`)
	b := mustSave(t, s, `{"n":"b"}`)
	ids := []uuid.UUID{a.ID, b.ID}

	n, err := record.MarkPendingAsInFlight(ctx, s, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// re-claim of a batch left in flight
	n, err = record.MarkPendingAsInFlight(ctx, s, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = record.MarkInFlightAsDone(ctx, s, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, status.StatusDone, mustGet(t, s, a.ID).Status)
	assert.Equal(t, status.StatusDone, mustGet(t, s, b.ID).Status)

	// DONE never moves straight to IN_FLIGHT
	n, err = record.MarkPendingAsInFlight(ctx, s, ids)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, status.StatusDone, mustGet(t, s, a.ID).Status)
}

func testTransitionSkipsOthers(t *testing.T, s record.Store) {
	ctx := context.Background()
	a := mustSave(t, s, `{"n":"a"}`)
	b := mustSave(t, s, `{"n":"b"}`)

	_, err := record.MarkPendingAsInFlight(ctx, s, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)

	// b is edited while its push is in flight
	edited := mustGet(t, s, b.ID)
	edited.Payload = json.RawMessage(`{"n":"b2"}`)
	require.NoError(t, s.Save(ctx, edited))

	n, err := record.MarkInFlightAsDone(ctx, s, []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, status.StatusDone, mustGet(t, s, a.ID).Status)
	assert.Equal(t, status.StatusPending, mustGet(t, s, b.ID).Status)
}

func testTransitionInvalidTarget(t *testing.T, s record.Store) {
	rec := mustSave(t, s, `{}`)
	_, err := s.Transition(context.Background(), []uuid.UUID{rec.ID}, status.SyncStatus("ARCHIVED"), nil)
	assert.True(t, errors.Is(err, record.ErrInvalidTransition))
}

func testInvalidKeepsReasons(t *testing.T, s record.Store) {
	ctx := context.Background()
	rec := mustSave(t, s, `{"age":-1}`)
	_, err := record.MarkPendingAsInFlight(ctx, s, []uuid.UUID{rec.ID})
	require.NoError(t, err)

	reasons := map[uuid.UUID][]record.FieldError{
		rec.ID: {{Field: "age", Messages: []string{"must be positive", "required"}}},
	}
	n, err := record.MarkInFlightAsInvalid(ctx, s, []uuid.UUID{rec.ID}, reasons)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := mustGet(t, s, rec.ID)
	assert.Equal(t, status.StatusInvalid, got.Status)
	assert.Equal(t, reasons[rec.ID], got.ValidationErrors)

	invalid, err := s.RecordsWithStatus(ctx, status.StatusInvalid)
	require.NoError(t, err)
	require.Len(t, invalid, 1)
	assert.Equal(t, reasons[rec.ID], invalid[0].ValidationErrors)

	pending, err := s.PendingRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func remoteRecord(id uuid.UUID, payload string) *record.Record {
	at := record.Now().Add(-time.Hour)
	return &record.Record{
		ID:        id,
		Payload:   json.RawMessage(payload),
		CreatedAt: at,
		UpdatedAt: at,
		Status:    status.StatusDone,
	}
}

func testUpsertMerges(t *testing.T, s record.Store) {
	ctx := context.Background()
	local := mustSave(t, s, `{"name":"local"}`)
	_, err := record.MarkPendingAsInFlight(ctx, s, []uuid.UUID{local.ID})
	require.NoError(t, err)
	_, err = record.MarkInFlightAsInvalid(ctx, s, []uuid.UUID{local.ID},
		map[uuid.UUID][]record.FieldError{local.ID: {{Field: "name", Messages: []string{"x"}}}})
	require.NoError(t, err)

	deletedAt := record.Now()
	overwrite := remoteRecord(local.ID, `{"name":"remote"}`)
	overwrite.DeletedAt = &deletedAt
	fresh := remoteRecord(uuid.New(), `{"name":"new"}`)

	require.NoError(t, s.Upsert(ctx, []*record.Record{overwrite, fresh}))

	got := mustGet(t, s, local.ID)
	assert.Equal(t, status.StatusDone, got.Status)
	assert.JSONEq(t, `{"name":"remote"}`, string(got.Payload))
	assert.True(t, got.UpdatedAt.Equal(overwrite.UpdatedAt))
	require.NotNil(t, got.DeletedAt)
	assert.True(t, got.DeletedAt.Equal(deletedAt))
	assert.Empty(t, got.ValidationErrors)

	got = mustGet(t, s, fresh.ID)
	assert.Equal(t, status.StatusDone, got.Status)
	assert.JSONEq(t, `{"name":"new"}`, string(got.Payload))
}

func testUpsertIdempotent(t *testing.T, s record.Store) {
	ctx := context.Background()
	batch := []*record.Record{
		remoteRecord(uuid.New(), `{"n":1}`),
		remoteRecord(uuid.New(), `{"n":2}`),
	}
	require.NoError(t, s.Upsert(ctx, batch))
	first, err := s.RecordsWithStatus(ctx, status.AllStatuses...)
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, batch))
	second, err := s.RecordsWithStatus(ctx, status.AllStatuses...)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.JSONEq(t, string(first[i].Payload), string(second[i].Payload))
		assert.True(t, first[i].UpdatedAt.Equal(second[i].UpdatedAt))
		assert.Equal(t, first[i].Status, second[i].Status)
	}

	require.NoError(t, s.Upsert(ctx, nil))
}

func testResetInFlight(t *testing.T, s record.Store) {
	ctx := context.Background()
	a := mustSave(t, s, `{}`)
	b := mustSave(t, s, `{}`)
	c := mustSave(t, s, `{}`)
	_, err := record.MarkPendingAsInFlight(ctx, s, []uuid.UUID{a.ID, b.ID, c.ID})
	require.NoError(t, err)
	_, err = record.MarkInFlightAsDone(ctx, s, []uuid.UUID{c.ID})
	require.NoError(t, err)

	n, err := record.ResetZombies(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	inFlight, err := s.RecordsWithStatus(ctx, status.StatusInFlight)
	require.NoError(t, err)
	assert.Empty(t, inFlight)
	assert.Equal(t, status.StatusPending, mustGet(t, s, a.ID).Status)
	assert.Equal(t, status.StatusDone, mustGet(t, s, c.ID).Status)
}

func testCountByStatus(t *testing.T, s record.Store) {
	ctx := context.Background()
	a := mustSave(t, s, `{}`)
	mustSave(t, s, `{}`)
	_, err := record.MarkPendingAsInFlight(ctx, s, []uuid.UUID{a.ID})
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[status.StatusPending])
	assert.Equal(t, 1, counts[status.StatusInFlight])
	assert.Equal(t, 0, counts[status.StatusDone])
	assert.Equal(t, 0, counts[status.StatusInvalid])
}

func testCursor(t *testing.T, s record.Store) {
	ctx := context.Background()
	_, ok, err := s.GetCursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetCursor(ctx, "2025-01-01T00:00:00Z"))
	require.NoError(t, s.SetCursor(ctx, "2025-02-01T00:00:00Z"))

	cursor, ok, err := s.GetCursor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2025-02-01T00:00:00Z", cursor)
}
