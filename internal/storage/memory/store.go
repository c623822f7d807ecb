// Package memory provides an in-process record store used by tests and the demo server.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/status"
)

// Store keeps the records of one record type in a map guarded by a mutex.
// Records are cloned on the way in and out.
type Store struct {
	recordType string
	now        func() time.Time

	mu        sync.RWMutex
	records   map[uuid.UUID]*record.Record
	cursor    string
	hasCursor bool
}

// Option configures a memory store
type Option func(*Store)

// WithClock overrides the clock used for local mutation timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

var _ record.Store = (*Store)(nil)

// New creates an empty store for the given record type
func New(recordType string, opts ...Option) *Store {
	s := &Store{
		recordType: recordType,
		now:        record.Now,
		records:    make(map[uuid.UUID]*record.Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordType implements record.Store
func (s *Store) RecordType() string {
	return s.recordType
}

// Save implements record.Store
func (s *Store) Save(_ context.Context, rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := s.now()
	if existing, ok := s.records[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.Touch(now)

	s.records[rec.ID] = rec.Clone()
	return nil
}

// SoftDelete implements record.Store
func (s *Store) SoftDelete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%s %s: %w", s.recordType, id, record.ErrNotFound)
	}
	rec.MarkDeleted(s.now())
	return nil
}

// Get implements record.Store
func (s *Store) Get(_ context.Context, id uuid.UUID) (*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", s.recordType, id, record.ErrNotFound)
	}
	return rec.Clone(), nil
}

// PendingRecords implements record.Store
func (s *Store) PendingRecords(ctx context.Context) ([]*record.Record, error) {
	return s.RecordsWithStatus(ctx, status.StatusPending)
}

// RecordsWithStatus implements record.Store. Results are ordered by UpdatedAt then id.
func (s *Store) RecordsWithStatus(_ context.Context, statuses ...status.SyncStatus) ([]*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*record.Record, 0)
	for _, rec := range s.records {
		if slices.Contains(statuses, rec.Status) {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *record.Record) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out, nil
}

// Transition implements record.Store
func (s *Store) Transition(
	_ context.Context, ids []uuid.UUID, target status.SyncStatus, reasons map[uuid.UUID][]record.FieldError,
) (int, error) {
	sources, err := record.TransitionSources(target)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok || !slices.Contains(sources, rec.Status) {
			continue
		}
		rec.Status = target
		rec.ValidationErrors = nil
		if target == status.StatusInvalid {
			rec.ValidationErrors = record.CloneFieldErrors(reasons[id])
		}
		changed++
	}
	return changed, nil
}

// Upsert implements record.Store
func (s *Store) Upsert(_ context.Context, records []*record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		merged := rec.Clone()
		merged.Status = status.StatusDone
		merged.ValidationErrors = nil
		s.records[merged.ID] = merged
	}
	return nil
}

// ResetInFlight implements record.Store
func (s *Store) ResetInFlight(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := 0
	for _, rec := range s.records {
		if rec.Status == status.StatusInFlight {
			rec.Status = status.StatusPending
			reset++
		}
	}
	return reset, nil
}

// CountByStatus implements record.Store
func (s *Store) CountByStatus(_ context.Context) (map[status.SyncStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[status.SyncStatus]int, len(status.AllStatuses))
	for _, st := range status.AllStatuses {
		counts[st] = 0
	}
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts, nil
}

// GetCursor implements record.CursorStore
func (s *Store) GetCursor(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, s.hasCursor, nil
}

// SetCursor implements record.CursorStore
func (s *Store) SetCursor(_ context.Context, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	s.hasCursor = true
	return nil
}
