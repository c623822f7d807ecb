package record

import (
	"context"

	"github.com/google/uuid"

	"github.com/fieldsync/fieldsync/internal/status"
)

// Store is the local persistent store of one record type.
//
// Every write is a single local transaction so readers never observe a record's fields
// out of step with its sync status. Stores of different record types are independent.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store,CursorStore
type Store interface {
	CursorStore

	// RecordType returns the name of the record type this store holds
	RecordType() string

	// Save creates or updates a record on behalf of the local domain layer.
	// The record leaves Save as PENDING with a fresh UpdatedAt, whatever its previous status.
	Save(ctx context.Context, rec *Record) error

	// SoftDelete marks a record deleted; like Save it leaves the record PENDING
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// Get returns a single record or ErrNotFound
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// PendingRecords returns every record whose status is PENDING
	PendingRecords(ctx context.Context) ([]*Record, error)

	// RecordsWithStatus returns every record in any of the given statuses
	RecordsWithStatus(ctx context.Context, statuses ...status.SyncStatus) ([]*Record, error)

	// Transition moves the given records to the target status in one transaction.
	// Only records currently in status.SourcesFor(target) are changed; the others are
	// left untouched. reasons is stored for records moving to INVALID.
	// It returns the number of records changed, or ErrInvalidTransition for an
	// unreachable target.
	Transition(ctx context.Context, ids []uuid.UUID, target status.SyncStatus, reasons map[uuid.UUID][]FieldError) (int, error)

	// Upsert merges records received from the server: remote values overwrite local ones
	// and every merged record ends DONE. The merge is a single transaction.
	Upsert(ctx context.Context, records []*Record) error

	// ResetInFlight moves every IN_FLIGHT record back to PENDING
	ResetInFlight(ctx context.Context) (int, error)

	// CountByStatus returns the number of records per status
	CountByStatus(ctx context.Context) (map[status.SyncStatus]int, error)
}

// CursorStore persists the pull cursor of one record type
type CursorStore interface {
	// GetCursor returns the last persisted cursor; ok is false before the first pull
	GetCursor(ctx context.Context) (cursor string, ok bool, err error)

	// SetCursor persists a new cursor
	SetCursor(ctx context.Context, cursor string) error
}
