package status

import (
	"fmt"
	"time"
)

// SyncStatus is the per-record synchronization state stored next to every synced row
type SyncStatus string

const (
	// StatusPending means the record carries a local change the server has not accepted yet
	StatusPending SyncStatus = "PENDING"

	// StatusInFlight means the record is part of a push batch awaiting the server's answer
	StatusInFlight SyncStatus = "IN_FLIGHT"

	// StatusDone means the server holds the same revision as the device
	StatusDone SyncStatus = "DONE"

	// StatusInvalid means the server rejected the record with field errors
	StatusInvalid SyncStatus = "INVALID"
)

// AllStatuses lists every SyncStatus value in state-machine order
var AllStatuses = []SyncStatus{StatusPending, StatusInFlight, StatusDone, StatusInvalid}

// Valid reports whether s is one of the four known statuses
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInFlight, StatusDone, StatusInvalid:
		return true
	default:
		return false
	}
}

func (s SyncStatus) String() string {
	return string(s)
}

// ParseSyncStatus converts a persisted value back into a SyncStatus
func ParseSyncStatus(value string) (SyncStatus, error) {
	s := SyncStatus(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown sync status %q", value)
	}
	return s, nil
}

// sourceStatuses maps each sync-driven target status to the statuses it may be entered from.
// Local mutations are not listed here: they move any record to PENDING unconditionally.
var sourceStatuses = map[SyncStatus][]SyncStatus{
	// IN_FLIGHT -> IN_FLIGHT re-claims a batch whose previous attempt died without an answer
	StatusInFlight: {StatusPending, StatusInFlight},
	StatusDone:     {StatusInFlight},
	StatusInvalid:  {StatusInFlight},
	// zombie reset
	StatusPending: {StatusInFlight},
}

// SourcesFor returns the statuses from which a sync-driven transition to target is legal.
// It returns nil for unknown targets.
func SourcesFor(target SyncStatus) []SyncStatus {
	sources, ok := sourceStatuses[target]
	if !ok {
		return nil
	}
	out := make([]SyncStatus, len(sources))
	copy(out, sources)
	return out
}

// CanTransition reports whether the sync engine may move a record from one status to another
func CanTransition(from, to SyncStatus) bool {
	for _, s := range sourceStatuses[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Phase represents where a record type's sync cycle currently is
type Phase string

const (
	// PhaseIdle means no cycle is running
	PhaseIdle Phase = "Idle"

	// PhasePushing means the cycle is uploading pending records
	PhasePushing Phase = "Pushing"

	// PhasePulling means the cycle is downloading remote changes
	PhasePulling Phase = "Pulling"

	// PhaseFailed means the last cycle stopped on an error
	PhaseFailed Phase = "Failed"
)

// CycleStatus is the persisted summary of the latest sync cycle of one record type
type CycleStatus struct {
	// Phase is the current phase of the record type's cycle
	Phase Phase `json:"phase"`

	// Message provides additional information about the last cycle
	Message string `json:"message,omitempty"`

	// LastAttempt is the timestamp of the last cycle start
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of attempts since the last successful cycle
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful cycle
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// LastErrorKind classifies the error of the last failed cycle
	LastErrorKind string `json:"lastErrorKind,omitempty"`

	// Pushed is the number of records accepted by the server in the last cycle
	Pushed int `json:"pushed,omitempty"`

	// Rejected is the number of records the server marked invalid in the last cycle
	Rejected int `json:"rejected,omitempty"`

	// Pulled is the number of records merged from the server in the last cycle
	Pulled int `json:"pulled,omitempty"`

	// SyncInterval is the cadence class configured for the record type (e.g. FREQUENT)
	SyncInterval string `json:"syncInterval,omitempty"`
}

// IsRunning reports whether a cycle is in progress
func (s *CycleStatus) IsRunning() bool {
	return s != nil && (s.Phase == PhasePushing || s.Phase == PhasePulling)
}
