package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/fieldsync/fieldsync/internal/approval"
	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/status"
	pkgsync "github.com/fieldsync/fieldsync/internal/sync"
	"github.com/fieldsync/fieldsync/internal/sync/coordinator"
	"github.com/fieldsync/fieldsync/internal/sync/state"
)

// TriggerReasonApproved is the pass reason logged when the approved-user gate opens
const TriggerReasonApproved = "user-approved"

// Stores is the part of the storage factory the service needs
type Stores interface {
	Store(recordType string) record.Store
	Ping(ctx context.Context) error
}

type syncService struct {
	recordTypes []config.RecordTypeConfig
	coord       coordinator.Coordinator
	stateSvc    state.CycleStateService
	stores      Stores
	gate        *approval.Switch
}

var _ SyncService = (*syncService)(nil)

// New creates the SyncService of a running engine. gate may be nil when no record type
// requires an approved user.
func New(
	recordTypes []config.RecordTypeConfig,
	coord coordinator.Coordinator,
	stateSvc state.CycleStateService,
	stores Stores,
	gate *approval.Switch,
) SyncService {
	return &syncService{
		recordTypes: recordTypes,
		coord:       coord,
		stateSvc:    stateSvc,
		stores:      stores,
		gate:        gate,
	}
}

func (s *syncService) CheckReadiness(ctx context.Context) error {
	if err := s.stores.Ping(ctx); err != nil {
		return fmt.Errorf("record store not ready: %w", err)
	}
	return nil
}

func (s *syncService) recordType(name string) (config.RecordTypeConfig, error) {
	for _, rt := range s.recordTypes {
		if rt.Name == name {
			return rt, nil
		}
	}
	return config.RecordTypeConfig{}, fmt.Errorf("%s: %w", name, ErrRecordTypeNotFound)
}

func (s *syncService) ListStatuses(ctx context.Context) ([]*RecordTypeStatus, error) {
	out := make([]*RecordTypeStatus, 0, len(s.recordTypes))
	for _, rt := range s.recordTypes {
		cycle, err := s.stateSvc.GetStatus(ctx, rt.Name)
		if err != nil && !errors.Is(err, state.ErrRecordTypeNotFound) {
			return nil, fmt.Errorf("failed to get cycle status of %s: %w", rt.Name, err)
		}

		counts, err := s.stores.Store(rt.Name).CountByStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s records: %w", rt.Name, err)
		}

		out = append(out, &RecordTypeStatus{
			RecordType:           rt.Name,
			SyncInterval:         rt.GetSyncInterval(),
			RequiresApprovedUser: rt.RequiresApprovedUser,
			Cycle:                cycle,
			Pending:              counts[status.StatusPending],
			InFlight:             counts[status.StatusInFlight],
			Done:                 counts[status.StatusDone],
			Invalid:              counts[status.StatusInvalid],
		})
	}
	return out, nil
}

func (s *syncService) SyncAll(ctx context.Context) (*coordinator.AggregatedResult, error) {
	return s.coord.SyncAll(ctx), nil
}

func (s *syncService) SyncRecordType(ctx context.Context, recordType string) (*pkgsync.Result, error) {
	result, err := s.coord.SyncNow(ctx, recordType)
	if errors.Is(err, coordinator.ErrUnknownRecordType) {
		return nil, fmt.Errorf("%s: %w", recordType, ErrRecordTypeNotFound)
	}
	return result, err
}

func (s *syncService) SetApproval(_ context.Context, approved bool) (bool, error) {
	if s.gate == nil {
		return false, errors.New("no record type requires an approved user")
	}

	changed := s.gate.Set(approved)
	if changed {
		slog.Info("Approved-user gate changed", "approved", approved)
		if approved {
			s.coord.Trigger(TriggerReasonApproved)
		}
	}
	return changed, nil
}

func (s *syncService) Approved() bool {
	return s.gate == nil || s.gate.Approved()
}

func (s *syncService) ListInvalidRecords(
	ctx context.Context, recordType string, opts ...Option,
) (*InvalidRecordPage, error) {
	options := &ListInvalidOptions{Limit: DefaultListLimit}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	if _, err := s.recordType(recordType); err != nil {
		return nil, err
	}
	afterTime, afterID, err := DecodeCursor(options.Cursor)
	if err != nil {
		return nil, err
	}

	records, err := s.stores.Store(recordType).RecordsWithStatus(ctx, status.StatusInvalid)
	if err != nil {
		return nil, fmt.Errorf("failed to list invalid %s records: %w", recordType, err)
	}
	slices.SortFunc(records, func(a, b *record.Record) int {
		return cmp.Or(a.UpdatedAt.Compare(b.UpdatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})

	if options.Cursor != "" {
		start, _ := slices.BinarySearchFunc(records, afterTime, func(rec *record.Record, t time.Time) int {
			return cmp.Or(rec.UpdatedAt.Compare(t), cmp.Compare(rec.ID.String(), afterID.String()))
		})
		// skip the record the cursor points at
		if start < len(records) && records[start].UpdatedAt.Equal(afterTime) && records[start].ID == afterID {
			start++
		}
		records = records[start:]
	}

	page := &InvalidRecordPage{Records: make([]*InvalidRecord, 0, min(len(records), options.Limit))}
	for _, rec := range records[:min(len(records), options.Limit)] {
		page.Records = append(page.Records, &InvalidRecord{
			ID:               rec.ID.String(),
			UpdatedAt:        rec.UpdatedAt,
			Deleted:          rec.IsDeleted(),
			ValidationErrors: record.CloneFieldErrors(rec.ValidationErrors),
			Payload:          rec.Payload,
		})
	}
	if len(records) > options.Limit {
		last := records[options.Limit-1]
		page.NextCursor = EncodeCursor(last.UpdatedAt, last.ID)
	}
	return page, nil
}
