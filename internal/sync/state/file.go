package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/status"
)

type fileStateService struct {
	// nil keeps statuses in memory only
	statusPersistence status.StatusPersistence

	mu             sync.RWMutex
	cachedStatuses map[string]*status.CycleStatus
}

// NewFileStateService creates a state service persisting through statusPersistence
func NewFileStateService(statusPersistence status.StatusPersistence) CycleStateService {
	return &fileStateService{
		statusPersistence: statusPersistence,
		cachedStatuses:    make(map[string]*status.CycleStatus),
	}
}

// NewMemoryStateService creates a state service that forgets everything on restart
func NewMemoryStateService() CycleStateService {
	return NewFileStateService(nil)
}

func (f *fileStateService) Initialize(ctx context.Context, recordTypes []config.RecordTypeConfig) error {
	for _, rt := range recordTypes {
		f.loadOrInitializeStatus(ctx, rt)
	}
	return nil
}

func (f *fileStateService) ListStatuses(_ context.Context) (map[string]*status.CycleStatus, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make(map[string]*status.CycleStatus, len(f.cachedStatuses))
	for name, cycleStatus := range f.cachedStatuses {
		result[name] = copyStatus(cycleStatus)
	}
	return result, nil
}

func (f *fileStateService) GetStatus(_ context.Context, recordType string) (*status.CycleStatus, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cycleStatus, exists := f.cachedStatuses[recordType]
	if !exists {
		return nil, fmt.Errorf("%s: %w", recordType, ErrRecordTypeNotFound)
	}
	return copyStatus(cycleStatus), nil
}

func (f *fileStateService) UpdateStatusAtomically(
	ctx context.Context,
	recordType string,
	testAndUpdateFn func(cycleStatus *status.CycleStatus) bool,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, exists := f.cachedStatuses[recordType]
	if !exists {
		return false, fmt.Errorf("%s: %w", recordType, ErrRecordTypeNotFound)
	}

	// the callback works on a copy so a failed save leaves the cache untouched
	candidate := copyStatus(current)
	if !testAndUpdateFn(candidate) {
		return false, nil
	}
	if err := f.save(ctx, recordType, candidate); err != nil {
		return false, err
	}
	f.cachedStatuses[recordType] = candidate
	return true, nil
}

func (f *fileStateService) UpdateStatus(ctx context.Context, recordType string, cycleStatus *status.CycleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := copyStatus(cycleStatus)
	if err := f.save(ctx, recordType, stored); err != nil {
		return err
	}
	f.cachedStatuses[recordType] = stored
	return nil
}

func (f *fileStateService) save(ctx context.Context, recordType string, cycleStatus *status.CycleStatus) error {
	if f.statusPersistence == nil {
		return nil
	}
	return f.statusPersistence.SaveStatus(ctx, recordType, cycleStatus)
}

func (f *fileStateService) loadOrInitializeStatus(ctx context.Context, rt config.RecordTypeConfig) {
	var loaded *status.CycleStatus
	if f.statusPersistence != nil {
		var err error
		loaded, err = f.statusPersistence.LoadStatus(ctx, rt.Name)
		if err != nil {
			slog.Warn("Failed to load cycle status, initializing with defaults",
				"record_type", rt.Name, "error", err)
			loaded = nil
		}
	}

	cycleStatus, changed := initialStatus(loaded, rt)
	if changed {
		if cycleStatus.Phase == status.PhaseFailed {
			slog.Warn("Previous sync was interrupted, resetting to Failed", "record_type", rt.Name)
		}
		if err := f.save(ctx, rt.Name, cycleStatus); err != nil {
			slog.Warn("Failed to persist initial cycle status", "record_type", rt.Name, "error", err)
		}
	}

	if cycleStatus.LastSyncTime != nil {
		slog.Info("Loaded cycle status",
			"record_type", rt.Name,
			"phase", cycleStatus.Phase,
			"last_sync", cycleStatus.LastSyncTime.Format(time.RFC3339))
	} else {
		slog.Info("Loaded cycle status", "record_type", rt.Name, "phase", cycleStatus.Phase)
	}

	f.mu.Lock()
	f.cachedStatuses[rt.Name] = cycleStatus
	f.mu.Unlock()
}
