// Package record defines the synced record, the local store contract the sync engine
// consumes, and the wire codec that turns records into server payloads.
package record

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fieldsync/fieldsync/internal/status"
)

var (
	// ErrNotFound is returned when a record does not exist in the local store
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition is returned when a status change is not part of the state machine
	ErrInvalidTransition = errors.New("invalid sync status transition")
)

// FieldError is a structured validation message the server attached to one field
type FieldError struct {
	Field    string   `json:"field"`
	Messages []string `json:"messages"`
}

// Record is one local row of a synced record type
type Record struct {
	ID        uuid.UUID
	Payload   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Status    status.SyncStatus

	// ValidationErrors holds the server's rejection reasons while Status is INVALID
	ValidationErrors []FieldError
}

// Now returns the store clock reading used for bookkeeping timestamps.
// Timestamps are kept in UTC at microsecond precision so every store round-trips them exactly.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// New creates a record with a fresh id for the given domain payload
func New(payload json.RawMessage) *Record {
	now := Now()
	return &Record{
		ID:        uuid.New(),
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    status.StatusPending,
	}
}

// IsDeleted reports whether the record carries a soft-delete marker
func (r *Record) IsDeleted() bool {
	return r.DeletedAt != nil
}

// Touch marks the record as locally mutated at the given time
func (r *Record) Touch(at time.Time) {
	r.UpdatedAt = at
	r.Status = status.StatusPending
	r.ValidationErrors = nil
}

// MarkDeleted soft-deletes the record. The deletion is itself a mutation that must be pushed.
func (r *Record) MarkDeleted(at time.Time) {
	r.DeletedAt = &at
	r.Touch(at)
}

// Clone returns a deep copy so stores never hand out their internal state
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Payload != nil {
		out.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	if r.DeletedAt != nil {
		deletedAt := *r.DeletedAt
		out.DeletedAt = &deletedAt
	}
	out.ValidationErrors = CloneFieldErrors(r.ValidationErrors)
	return &out
}

// CloneFieldErrors deep-copies a list of field errors; nil stays nil
func CloneFieldErrors(in []FieldError) []FieldError {
	if in == nil {
		return nil
	}
	out := make([]FieldError, len(in))
	for i, fe := range in {
		out[i] = FieldError{
			Field:    fe.Field,
			Messages: append([]string(nil), fe.Messages...),
		}
	}
	return out
}

// IDs collects the ids of the given records, preserving order
func IDs(records []*Record) []uuid.UUID {
	ids := make([]uuid.UUID, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
