package record

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fieldsync/fieldsync/internal/status"
)

// MarkPendingAsInFlight claims records for a push attempt.
// Records already IN_FLIGHT from a dead attempt are re-claimed.
func MarkPendingAsInFlight(ctx context.Context, s Store, ids []uuid.UUID) (int, error) {
	return s.Transition(ctx, ids, status.StatusInFlight, nil)
}

// MarkInFlightAsDone records that the server accepted the records
func MarkInFlightAsDone(ctx context.Context, s Store, ids []uuid.UUID) (int, error) {
	return s.Transition(ctx, ids, status.StatusDone, nil)
}

// MarkInFlightAsInvalid records that the server rejected the records, keeping its reasons
func MarkInFlightAsInvalid(
	ctx context.Context, s Store, ids []uuid.UUID, reasons map[uuid.UUID][]FieldError,
) (int, error) {
	return s.Transition(ctx, ids, status.StatusInvalid, reasons)
}

// ResetZombies returns records stranded IN_FLIGHT by an interrupted push to PENDING.
// It must only run when no push is active for the store's record type.
func ResetZombies(ctx context.Context, s Store) (int, error) {
	return s.ResetInFlight(ctx)
}

// TransitionSources returns the statuses a sync-driven transition to target may start from,
// or ErrInvalidTransition when target cannot be entered by the sync engine.
func TransitionSources(target status.SyncStatus) ([]status.SyncStatus, error) {
	sources := status.SourcesFor(target)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: target %q", ErrInvalidTransition, target)
	}
	return sources, nil
}
