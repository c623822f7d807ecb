// Package service provides the operations of the local control API on top of the sync engine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/status"
	pkgsync "github.com/fieldsync/fieldsync/internal/sync"
	"github.com/fieldsync/fieldsync/internal/sync/coordinator"
)

var (
	// ErrRecordTypeNotFound is returned for record types that are not configured
	ErrRecordTypeNotFound = errors.New("record type not found")
	// ErrInvalidCursor is returned when a listing cursor cannot be decoded
	ErrInvalidCursor = errors.New("invalid cursor")
)

// DefaultListLimit is the page size of listings that do not ask for one
const DefaultListLimit = 50

// MaxListLimit caps the page size of listings
const MaxListLimit = 500

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go SyncService

// SyncService defines the operations exposed to the host application and operators
type SyncService interface {
	// CheckReadiness checks that the record store backend is reachable
	CheckReadiness(ctx context.Context) error

	// ListStatuses returns the cycle status and record counts of every record type
	ListStatuses(ctx context.Context) ([]*RecordTypeStatus, error)

	// SyncAll runs a pass over every record type
	SyncAll(ctx context.Context) (*coordinator.AggregatedResult, error)

	// SyncRecordType runs one cycle of a record type
	SyncRecordType(ctx context.Context, recordType string) (*pkgsync.Result, error)

	// SetApproval opens or closes the approved-user gate and reports whether it changed.
	// Opening it requests a sync pass.
	SetApproval(ctx context.Context, approved bool) (bool, error)

	// Approved reports the position of the approved-user gate
	Approved() bool

	// ListInvalidRecords returns the records of a type the server rejected, oldest change first
	ListInvalidRecords(ctx context.Context, recordType string, opts ...Option) (*InvalidRecordPage, error)
}

// RecordTypeStatus is the state of one record type as shown to operators
type RecordTypeStatus struct {
	RecordType           string              `json:"recordType"`
	SyncInterval         string              `json:"syncInterval"`
	RequiresApprovedUser bool                `json:"requiresApprovedUser,omitempty"`
	Cycle                *status.CycleStatus `json:"cycle,omitempty"`
	Pending              int                 `json:"pending"`
	InFlight             int                 `json:"inFlight"`
	Done                 int                 `json:"done"`
	Invalid              int                 `json:"invalid"`
}

// InvalidRecord is a record rejected by the server together with its field errors
type InvalidRecord struct {
	ID               string              `json:"id"`
	UpdatedAt        time.Time           `json:"updatedAt"`
	Deleted          bool                `json:"deleted,omitempty"`
	ValidationErrors []record.FieldError `json:"validationErrors"`
	Payload          json.RawMessage     `json:"payload"`
}

// InvalidRecordPage is one page of an invalid-record listing
type InvalidRecordPage struct {
	Records    []*InvalidRecord `json:"records"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ListInvalidOptions is the options for the ListInvalidRecords operation
type ListInvalidOptions struct {
	Cursor string
	Limit  int
}
