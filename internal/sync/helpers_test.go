package sync_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/remote"
	"github.com/fieldsync/fieldsync/internal/status"
	"github.com/fieldsync/fieldsync/internal/storage/memory"
)

var errConnectionReset = fmt.Errorf("%w: connection reset by peer", remote.ErrNetwork)

func recordType(name string, batchSize int) config.RecordTypeConfig {
	return config.RecordTypeConfig{Name: name, BatchSize: batchSize}
}

// seedPending saves n locally created patients and returns them in creation order
func seedPending(t *testing.T, store record.Store, n int) []*record.Record {
	t.Helper()

	out := make([]*record.Record, 0, n)
	for i := range n {
		rec := record.New(json.RawMessage(fmt.Sprintf(`{"full_name":"patient %d","age":%d}`, i, 30+i)))
		require.NoError(t, store.Save(context.Background(), rec))
		out = append(out, rec)
	}
	return out
}

func statusOf(t *testing.T, store record.Store, id uuid.UUID) status.SyncStatus {
	t.Helper()

	rec, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec.Status
}

func countStatus(t *testing.T, store record.Store) map[status.SyncStatus]int {
	t.Helper()

	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	return counts
}

// serverPayload is a record as another device pushed it to the server
func serverPayload(id uuid.UUID, name string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"created_at":"2025-03-01T08:00:00Z","updated_at":"2025-03-02T09:30:00.123456Z","deleted_at":null,"full_name":%q}`,
		id, name))
}

func payloadIDs(t *testing.T, payloads []json.RawMessage) []uuid.UUID {
	t.Helper()

	out := make([]uuid.UUID, 0, len(payloads))
	for _, p := range payloads {
		id, err := uuid.Parse(gjson.GetBytes(p, record.KeyID).String())
		require.NoError(t, err)
		out = append(out, id)
	}
	return out
}

func emptyPage(cursor string) *remote.PullPage {
	return &remote.PullPage{Records: []json.RawMessage{}, NextCursor: cursor}
}

func acceptAll() *remote.PushResponse {
	return &remote.PushResponse{}
}

// failingCursorStore loses the first cursor write, as if the process died right after the merge
type failingCursorStore struct {
	*memory.Store
	failures int
}

func (s *failingCursorStore) SetCursor(ctx context.Context, cursor string) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("disk I/O error")
	}
	return s.Store.SetCursor(ctx, cursor)
}
