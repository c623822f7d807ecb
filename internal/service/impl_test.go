package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fieldsync/fieldsync/internal/approval"
	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/status"
	"github.com/fieldsync/fieldsync/internal/storage/memory"
	pkgsync "github.com/fieldsync/fieldsync/internal/sync"
	"github.com/fieldsync/fieldsync/internal/sync/coordinator"
	coordmocks "github.com/fieldsync/fieldsync/internal/sync/coordinator/mocks"
	"github.com/fieldsync/fieldsync/internal/sync/state"
	statemocks "github.com/fieldsync/fieldsync/internal/sync/state/mocks"
)

type testStores struct {
	stores  map[string]*memory.Store
	pingErr error
}

func newTestStores(names ...string) *testStores {
	s := &testStores{stores: make(map[string]*memory.Store)}
	for _, name := range names {
		s.stores[name] = memory.New(name)
	}
	return s
}

func (s *testStores) Store(recordType string) record.Store {
	return s.stores[recordType]
}

func (s *testStores) Ping(context.Context) error {
	return s.pingErr
}

var testRecordTypes = []config.RecordTypeConfig{
	{Name: "patients", SyncInterval: config.IntervalFrequent},
	{Name: "facilities", SyncInterval: config.IntervalDaily, RequiresApprovedUser: true},
}

// saveInvalid stores n records and walks them to INVALID the way a rejected push does
func saveInvalid(t *testing.T, store record.Store, n int) []uuid.UUID {
	t.Helper()
	ctx := context.Background()

	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		rec := record.New(json.RawMessage(`{"name":"p"}`))
		require.NoError(t, store.Save(ctx, rec))
		ids = append(ids, rec.ID)
	}
	_, err := store.Transition(ctx, ids, status.StatusInFlight, nil)
	require.NoError(t, err)

	reasons := make(map[uuid.UUID][]record.FieldError, n)
	for _, id := range ids {
		reasons[id] = []record.FieldError{{Field: "name", Messages: []string{"is too short"}}}
	}
	_, err = store.Transition(ctx, ids, status.StatusInvalid, reasons)
	require.NoError(t, err)
	return ids
}

func TestSyncService_CheckReadiness(t *testing.T) {
	t.Parallel()

	stores := newTestStores("patients")
	svc := New(testRecordTypes, nil, nil, stores, nil)
	require.NoError(t, svc.CheckReadiness(context.Background()))

	stores.pingErr = errors.New("connection refused")
	err := svc.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSyncService_ListStatuses(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	stateSvc := statemocks.NewMockCycleStateService(ctrl)
	stores := newTestStores("patients", "facilities")
	ctx := context.Background()

	require.NoError(t, stores.stores["patients"].Save(ctx, record.New(json.RawMessage(`{}`))))
	saveInvalid(t, stores.stores["patients"], 2)

	cycle := &status.CycleStatus{Phase: status.PhaseIdle, AttemptCount: 3}
	stateSvc.EXPECT().GetStatus(gomock.Any(), "patients").Return(cycle, nil)
	stateSvc.EXPECT().GetStatus(gomock.Any(), "facilities").Return(nil, state.ErrRecordTypeNotFound)

	svc := New(testRecordTypes, nil, stateSvc, stores, approval.NewSwitch(false))
	statuses, err := svc.ListStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.Equal(t, "patients", statuses[0].RecordType)
	assert.Equal(t, config.IntervalFrequent, statuses[0].SyncInterval)
	assert.Equal(t, cycle, statuses[0].Cycle)
	assert.Equal(t, 1, statuses[0].Pending)
	assert.Equal(t, 2, statuses[0].Invalid)

	assert.Equal(t, "facilities", statuses[1].RecordType)
	assert.True(t, statuses[1].RequiresApprovedUser)
	assert.Nil(t, statuses[1].Cycle)
	assert.Zero(t, statuses[1].Pending)
}

func TestSyncService_ListStatusesStateError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	stateSvc := statemocks.NewMockCycleStateService(ctrl)
	stateSvc.EXPECT().GetStatus(gomock.Any(), "patients").Return(nil, errors.New("disk full"))

	svc := New(testRecordTypes, nil, stateSvc, newTestStores("patients", "facilities"), nil)
	_, err := svc.ListStatuses(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSyncService_SyncRecordType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		coordErr  error
		result    *pkgsync.Result
		wantErrIs error
	}{
		{
			name:   "returns the cycle result",
			result: &pkgsync.Result{RecordType: "patients", Outcome: pkgsync.OutcomeSynced},
		},
		{
			name:      "unknown record type",
			coordErr:  coordinator.ErrUnknownRecordType,
			wantErrIs: ErrRecordTypeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			coord := coordmocks.NewMockCoordinator(ctrl)
			coord.EXPECT().SyncNow(gomock.Any(), "patients").Return(tt.result, tt.coordErr)

			svc := New(testRecordTypes, coord, nil, newTestStores(), nil)
			result, err := svc.SyncRecordType(context.Background(), "patients")
			if tt.wantErrIs != nil {
				require.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.result, result)
		})
	}
}

func TestSyncService_SyncAll(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	coord := coordmocks.NewMockCoordinator(ctrl)
	agg := &coordinator.AggregatedResult{Results: []*pkgsync.Result{{RecordType: "patients", Outcome: pkgsync.OutcomeSynced}}}
	coord.EXPECT().SyncAll(gomock.Any()).Return(agg)

	svc := New(testRecordTypes, coord, nil, newTestStores(), nil)
	result, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Same(t, agg, result)
}

func TestSyncService_SetApproval(t *testing.T) {
	t.Parallel()

	t.Run("opening the gate triggers a pass", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		coord := coordmocks.NewMockCoordinator(ctrl)
		coord.EXPECT().Trigger(TriggerReasonApproved).Times(1)

		svc := New(testRecordTypes, coord, nil, newTestStores(), approval.NewSwitch(false))
		assert.False(t, svc.Approved())

		changed, err := svc.SetApproval(context.Background(), true)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, svc.Approved())

		// already open
		changed, err = svc.SetApproval(context.Background(), true)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("closing the gate does not trigger", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		coord := coordmocks.NewMockCoordinator(ctrl)

		svc := New(testRecordTypes, coord, nil, newTestStores(), approval.NewSwitch(true))
		changed, err := svc.SetApproval(context.Background(), false)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.False(t, svc.Approved())
	})

	t.Run("without a gate", func(t *testing.T) {
		t.Parallel()

		svc := New(testRecordTypes, nil, nil, newTestStores(), nil)
		assert.True(t, svc.Approved())
		_, err := svc.SetApproval(context.Background(), true)
		require.Error(t, err)
	})
}

func TestSyncService_ListInvalidRecords(t *testing.T) {
	t.Parallel()

	stores := newTestStores("patients", "facilities")
	ids := saveInvalid(t, stores.stores["patients"], 5)
	require.NoError(t, stores.stores["patients"].Save(context.Background(), record.New(json.RawMessage(`{}`))))
	svc := New(testRecordTypes, nil, nil, stores, nil)
	ctx := context.Background()

	t.Run("pages through every invalid record once", func(t *testing.T) {
		t.Parallel()

		seen := make(map[string]bool)
		cursor := ""
		pages := 0
		for {
			opts := []Option{WithLimit(2)}
			if cursor != "" {
				opts = append(opts, WithCursor(cursor))
			}
			page, err := svc.ListInvalidRecords(ctx, "patients", opts...)
			require.NoError(t, err)
			pages++
			for _, rec := range page.Records {
				assert.False(t, seen[rec.ID], "record %s listed twice", rec.ID)
				seen[rec.ID] = true
				require.Len(t, rec.ValidationErrors, 1)
				assert.Equal(t, "name", rec.ValidationErrors[0].Field)
			}
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
		assert.Equal(t, 3, pages)
		assert.Len(t, seen, len(ids))
		for _, id := range ids {
			assert.True(t, seen[id.String()])
		}
	})

	t.Run("default limit returns everything", func(t *testing.T) {
		t.Parallel()

		page, err := svc.ListInvalidRecords(ctx, "patients")
		require.NoError(t, err)
		assert.Len(t, page.Records, 5)
		assert.Empty(t, page.NextCursor)
		for i := 1; i < len(page.Records); i++ {
			assert.False(t, page.Records[i].UpdatedAt.Before(page.Records[i-1].UpdatedAt))
		}
	})

	t.Run("empty store", func(t *testing.T) {
		t.Parallel()

		page, err := svc.ListInvalidRecords(ctx, "facilities")
		require.NoError(t, err)
		assert.Empty(t, page.Records)
		assert.NotNil(t, page.Records)
	})

	t.Run("unknown record type", func(t *testing.T) {
		t.Parallel()

		_, err := svc.ListInvalidRecords(ctx, "visits")
		require.ErrorIs(t, err, ErrRecordTypeNotFound)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		t.Parallel()

		_, err := svc.ListInvalidRecords(ctx, "patients", WithCursor("%%%"))
		require.ErrorIs(t, err, ErrInvalidCursor)
	})

	t.Run("limit above maximum", func(t *testing.T) {
		t.Parallel()

		_, err := svc.ListInvalidRecords(ctx, "patients", WithLimit(MaxListLimit+1))
		require.Error(t, err)
	})
}
