// Package state keeps the cycle status of every record type and persists it
// across restarts of the sync daemon.
package state

import (
	"context"
	"errors"

	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/status"
)

// ErrRecordTypeNotFound is returned for record types the service was not initialized with
var ErrRecordTypeNotFound = errors.New("record type not found")

// CycleStateService provides methods for inspecting and updating the cycle status of record types.
//
//go:generate mockgen -destination=mocks/mock_cycle_state_service.go -package=mocks github.com/fieldsync/fieldsync/internal/sync/state CycleStateService
type CycleStateService interface {
	// Initialize loads the status of the configured record types, creating defaults for new ones.
	// A status left in a running phase belongs to an interrupted process and is reset to Failed.
	Initialize(ctx context.Context, recordTypes []config.RecordTypeConfig) error
	// ListStatuses returns copies of all known statuses keyed by record type.
	ListStatuses(ctx context.Context) (map[string]*status.CycleStatus, error)
	// GetStatus returns a copy of the status of one record type.
	GetStatus(ctx context.Context, recordType string) (*status.CycleStatus, error)
	// UpdateStatus overrides the status of one record type.
	UpdateStatus(ctx context.Context, recordType string, cycleStatus *status.CycleStatus) error
	// UpdateStatusAtomically fetches the current status, applies testAndUpdateFn to it and
	// stores the result if the function reports a change, all as one atomic action.
	// The boolean returned by testAndUpdateFn is returned to the caller.
	UpdateStatusAtomically(
		ctx context.Context,
		recordType string,
		testAndUpdateFn func(cycleStatus *status.CycleStatus) bool,
	) (bool, error)
}

// initialStatus turns a loaded status into the one the process starts with.
// It returns true when the status differs from what was stored.
func initialStatus(loaded *status.CycleStatus, rt config.RecordTypeConfig) (*status.CycleStatus, bool) {
	if loaded == nil {
		loaded = &status.CycleStatus{}
	}
	changed := false

	switch {
	case loaded.Phase == "" && loaded.LastAttempt == nil:
		loaded.Phase = status.PhaseIdle
		loaded.Message = "No previous sync status found"
		changed = true
	case loaded.IsRunning():
		loaded.Phase = status.PhaseFailed
		loaded.Message = "Previous sync was interrupted"
		changed = true
	}

	if interval := rt.GetSyncInterval(); loaded.SyncInterval != interval {
		loaded.SyncInterval = interval
		changed = true
	}
	return loaded, changed
}

func copyStatus(s *status.CycleStatus) *status.CycleStatus {
	if s == nil {
		return nil
	}
	out := *s
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		out.LastAttempt = &t
	}
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		out.LastSyncTime = &t
	}
	return &out
}
