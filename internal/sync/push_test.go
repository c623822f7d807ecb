package sync_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fieldsync/fieldsync/internal/record"
	recordmocks "github.com/fieldsync/fieldsync/internal/record/mocks"
	"github.com/fieldsync/fieldsync/internal/remote"
	remotemocks "github.com/fieldsync/fieldsync/internal/remote/mocks"
	"github.com/fieldsync/fieldsync/internal/status"
	"github.com/fieldsync/fieldsync/internal/storage/memory"
	pkgsync "github.com/fieldsync/fieldsync/internal/sync"
)

func TestPush_SingleBatchMarksAllDone(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	store := memory.New("patients")
	records := seedPending(t, store, 5)

	client.EXPECT().
		Push(gomock.Any(), "patients", gomock.Len(5)).
		Return(acceptAll(), nil).
		Times(1)
	client.EXPECT().Pull(gomock.Any(), "patients", 10, "").Return(emptyPage("c1"), nil)

	result := pkgsync.New(recordType("patients", 10), store, client).Sync(context.Background())

	require.Equal(t, pkgsync.OutcomeSynced, result.Outcome, result.Message)
	assert.Equal(t, 1, result.Push.Batches)
	assert.Equal(t, 5, result.Push.Pushed)
	for _, rec := range records {
		assert.Equal(t, status.StatusDone, statusOf(t, store, rec.ID))
	}
}

func TestPush_FailedBatchStaysInFlight(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	store := memory.New("patients")
	seedPending(t, store, 5)

	var batchSizes []int
	var lastBatch []uuid.UUID
	gomock.InOrder(
		client.EXPECT().Push(gomock.Any(), "patients", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, payloads []json.RawMessage) (*remote.PushResponse, error) {
				batchSizes = append(batchSizes, len(payloads))
				return acceptAll(), nil
			}).Times(2),
		client.EXPECT().Push(gomock.Any(), "patients", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, payloads []json.RawMessage) (*remote.PushResponse, error) {
				batchSizes = append(batchSizes, len(payloads))
				lastBatch = payloadIDs(t, payloads)
				return nil, errConnectionReset
			}),
	)
	// no Pull expectation: a failed push ends the cycle

	result := pkgsync.New(recordType("patients", 2), store, client).Sync(context.Background())

	require.True(t, result.Failed())
	assert.Equal(t, pkgsync.KindNetwork, result.ErrorKind)
	assert.Equal(t, pkgsync.StagePush, result.Stage)
	assert.True(t, errors.Is(result.Err, remote.ErrNetwork))
	assert.Equal(t, []int{2, 2, 1}, batchSizes)
	assert.Equal(t, 4, result.Push.Pushed)
	assert.Nil(t, result.Pull)

	counts := countStatus(t, store)
	assert.Equal(t, 4, counts[status.StatusDone])
	assert.Equal(t, 1, counts[status.StatusInFlight])
	require.Len(t, lastBatch, 1)
	assert.Equal(t, status.StatusInFlight, statusOf(t, store, lastBatch[0]))
}

func TestPush_RejectedRecordBecomesInvalid(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	store := memory.New("patients")
	records := seedPending(t, store, 3)
	rejectedID := records[1].ID

	client.EXPECT().Push(gomock.Any(), "patients", gomock.Len(3)).
		Return(&remote.PushResponse{Errors: []remote.RecordError{{
			ID:          rejectedID.String(),
			FieldErrors: []record.FieldError{{Field: "age", Messages: []string{"must be less than 150"}}},
		}}}, nil)
	client.EXPECT().Pull(gomock.Any(), "patients", 10, "").Return(emptyPage(""), nil)

	result := pkgsync.New(recordType("patients", 10), store, client).Sync(context.Background())

	require.Equal(t, pkgsync.OutcomeSynced, result.Outcome, "validation rejections never fail the cycle")
	assert.Equal(t, 2, result.Push.Pushed)
	assert.Equal(t, 1, result.Push.Rejected)

	assert.Equal(t, status.StatusDone, statusOf(t, store, records[0].ID))
	assert.Equal(t, status.StatusDone, statusOf(t, store, records[2].ID))

	rejected, err := store.Get(context.Background(), rejectedID)
	require.NoError(t, err)
	assert.Equal(t, status.StatusInvalid, rejected.Status)
	require.Len(t, rejected.ValidationErrors, 1)
	assert.Equal(t, "age", rejected.ValidationErrors[0].Field)
	assert.Equal(t, []string{"must be less than 150"}, rejected.ValidationErrors[0].Messages)
}

func TestPush_InvalidRecordsAreNotPushedAgain(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	store := memory.New("patients")
	records := seedPending(t, store, 1)

	client.EXPECT().Push(gomock.Any(), "patients", gomock.Len(1)).
		Return(&remote.PushResponse{Errors: []remote.RecordError{{
			ID:          records[0].ID.String(),
			FieldErrors: []record.FieldError{{Field: "full_name", Messages: []string{"is reserved"}}},
		}}}, nil).Times(1)
	client.EXPECT().Pull(gomock.Any(), "patients", 10, gomock.Any()).Return(emptyPage(""), nil).Times(2)

	s := pkgsync.New(recordType("patients", 10), store, client)
	require.Equal(t, pkgsync.OutcomeSynced, s.Sync(context.Background()).Outcome)

	second := s.Sync(context.Background())
	require.Equal(t, pkgsync.OutcomeSynced, second.Outcome)
	assert.Zero(t, second.Push.Batches)
	assert.Equal(t, status.StatusInvalid, statusOf(t, store, records[0].ID))
}

func TestPush_EmptyPendingSetIsSuccess(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	client.EXPECT().Pull(gomock.Any(), "patients", 10, "").Return(emptyPage(""), nil)

	result := pkgsync.New(recordType("patients", 10), memory.New("patients"), client).Sync(context.Background())

	require.Equal(t, pkgsync.OutcomeSynced, result.Outcome)
	assert.Equal(t, pkgsync.PushResult{}, *result.Push)
}

func TestPush_NoRecordLeftInFlightAfterSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		records   int
		batchSize int
	}{
		{name: "exact multiple", records: 6, batchSize: 3},
		{name: "remainder", records: 7, batchSize: 3},
		{name: "single record batches", records: 4, batchSize: 1},
		{name: "batch larger than backlog", records: 2, batchSize: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			client := remotemocks.NewMockClient(ctrl)
			store := memory.New("patients")
			seedPending(t, store, tt.records)

			client.EXPECT().Push(gomock.Any(), "patients", gomock.Any()).Return(acceptAll(), nil).AnyTimes()
			client.EXPECT().Pull(gomock.Any(), "patients", tt.batchSize, "").Return(emptyPage(""), nil)

			result := pkgsync.New(recordType("patients", tt.batchSize), store, client).Sync(context.Background())
			require.Equal(t, pkgsync.OutcomeSynced, result.Outcome)

			counts := countStatus(t, store)
			assert.Zero(t, counts[status.StatusInFlight])
			assert.Equal(t, tt.records, counts[status.StatusDone])
			assert.Equal(t, (tt.records+tt.batchSize-1)/tt.batchSize, result.Push.Batches)
		})
	}
}

func TestPush_RetriesZombiesLeftByEarlierCycle(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	store := memory.New("patients")
	records := seedPending(t, store, 2)

	// a previous attempt died after claiming the first record
	_, err := record.MarkPendingAsInFlight(context.Background(), store, []uuid.UUID{records[0].ID})
	require.NoError(t, err)

	client.EXPECT().Push(gomock.Any(), "patients", gomock.Len(2)).Return(acceptAll(), nil)
	client.EXPECT().Pull(gomock.Any(), "patients", 10, "").Return(emptyPage(""), nil)

	result := pkgsync.New(recordType("patients", 10), store, client).Sync(context.Background())

	require.Equal(t, pkgsync.OutcomeSynced, result.Outcome)
	assert.Equal(t, 2, countStatus(t, store)[status.StatusDone])
}

func TestPush_RecordEditedInFlightStaysPending(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	store := memory.New("patients")
	records := seedPending(t, store, 2)

	client.EXPECT().Push(gomock.Any(), "patients", gomock.Len(2)).
		DoAndReturn(func(ctx context.Context, _ string, _ []json.RawMessage) (*remote.PushResponse, error) {
			edited, err := store.Get(ctx, records[0].ID)
			require.NoError(t, err)
			edited.Payload = json.RawMessage(`{"full_name":"renamed while uploading"}`)
			require.NoError(t, store.Save(ctx, edited))
			return acceptAll(), nil
		})
	client.EXPECT().Pull(gomock.Any(), "patients", 10, "").Return(emptyPage(""), nil)

	result := pkgsync.New(recordType("patients", 10), store, client).Sync(context.Background())

	require.Equal(t, pkgsync.OutcomeSynced, result.Outcome)
	assert.Equal(t, 1, result.Push.Pushed)
	assert.Equal(t, status.StatusPending, statusOf(t, store, records[0].ID))
	assert.Equal(t, status.StatusDone, statusOf(t, store, records[1].ID))
}

func TestPush_UnencodablePayloadIsMarkedInvalid(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	store := memory.New("patients")
	good := seedPending(t, store, 1)[0]
	bad := record.New(json.RawMessage(`["not","an","object"]`))
	require.NoError(t, store.Save(context.Background(), bad))

	client.EXPECT().Push(gomock.Any(), "patients", gomock.Len(1)).
		DoAndReturn(func(_ context.Context, _ string, payloads []json.RawMessage) (*remote.PushResponse, error) {
			assert.Equal(t, []uuid.UUID{good.ID}, payloadIDs(t, payloads))
			return acceptAll(), nil
		})
	client.EXPECT().Pull(gomock.Any(), "patients", 10, "").Return(emptyPage(""), nil)

	result := pkgsync.New(recordType("patients", 10), store, client).Sync(context.Background())

	require.Equal(t, pkgsync.OutcomeSynced, result.Outcome)
	assert.Equal(t, 1, result.Push.Rejected)

	rec, err := store.Get(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StatusInvalid, rec.Status)
	require.Len(t, rec.ValidationErrors, 1)
	assert.Equal(t, "payload", rec.ValidationErrors[0].Field)
}

func TestPush_ServerErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantKind pkgsync.Kind
	}{
		{name: "network", err: errConnectionReset, wantKind: pkgsync.KindNetwork},
		{name: "server", err: remote.ErrServer, wantKind: pkgsync.KindServer},
		{name: "unexpected", err: remote.ErrUnexpectedStatus, wantKind: pkgsync.KindUnexpected},
		{name: "timeout", err: context.DeadlineExceeded, wantKind: pkgsync.KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			client := remotemocks.NewMockClient(ctrl)
			store := memory.New("patients")
			records := seedPending(t, store, 1)

			client.EXPECT().Push(gomock.Any(), "patients", gomock.Any()).Return(nil, tt.err)

			result := pkgsync.New(recordType("patients", 10), store, client).Sync(context.Background())

			require.True(t, result.Failed())
			assert.Equal(t, tt.wantKind, result.ErrorKind)
			assert.Equal(t, status.StatusInFlight, statusOf(t, store, records[0].ID))
		})
	}
}

func TestPush_CancelledBeforeFirstBatch(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	store := memory.New("patients")
	records := seedPending(t, store, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := pkgsync.New(recordType("patients", 10), store, client).Sync(ctx)

	require.True(t, result.Failed())
	assert.Equal(t, pkgsync.KindNetwork, result.ErrorKind)
	for _, rec := range records {
		assert.Equal(t, status.StatusPending, statusOf(t, store, rec.ID))
	}
}

func TestPush_CancelledBetweenBatchesKeepsCommittedProgress(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	store := memory.New("patients")
	seedPending(t, store, 4)

	ctx, cancel := context.WithCancel(context.Background())
	client.EXPECT().Push(gomock.Any(), "patients", gomock.Len(2)).
		DoAndReturn(func(context.Context, string, []json.RawMessage) (*remote.PushResponse, error) {
			cancel()
			return acceptAll(), nil
		})

	result := pkgsync.New(recordType("patients", 2), store, client).Sync(ctx)

	require.True(t, result.Failed())
	assert.Equal(t, pkgsync.KindNetwork, result.ErrorKind)
	counts := countStatus(t, store)
	assert.Equal(t, 2, counts[status.StatusDone])
	assert.Equal(t, 2, counts[status.StatusPending])
}

func TestPush_StorageFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	client := remotemocks.NewMockClient(ctrl)
	store := recordmocks.NewMockStore(ctrl)
	store.EXPECT().
		RecordsWithStatus(gomock.Any(), status.StatusPending, status.StatusInFlight).
		Return(nil, errors.New("database or disk is full"))

	result := pkgsync.New(recordType("patients", 10), store, client).Sync(context.Background())

	require.True(t, result.Failed())
	assert.Equal(t, pkgsync.KindStorage, result.ErrorKind)
	assert.Contains(t, result.Message, "database or disk is full")
}
