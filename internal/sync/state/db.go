package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldsync/fieldsync/internal/config"
	"github.com/fieldsync/fieldsync/internal/status"
)

const statusColumns = `phase, message, last_attempt, attempt_count, last_sync_time,
	last_error_kind, pushed, rejected, pulled, sync_interval`

const upsertStatusSQL = `
	INSERT INTO sync_cycle_status (record_type, ` + statusColumns + `, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
	ON CONFLICT (record_type) DO UPDATE SET
		phase = EXCLUDED.phase,
		message = EXCLUDED.message,
		last_attempt = EXCLUDED.last_attempt,
		attempt_count = EXCLUDED.attempt_count,
		last_sync_time = EXCLUDED.last_sync_time,
		last_error_kind = EXCLUDED.last_error_kind,
		pushed = EXCLUDED.pushed,
		rejected = EXCLUDED.rejected,
		pulled = EXCLUDED.pulled,
		sync_interval = EXCLUDED.sync_interval,
		updated_at = now()`

type dbStateService struct {
	pool *pgxpool.Pool
}

// NewDBStateService creates a state service storing cycle statuses in PostgreSQL.
// Several processes syncing through the same hub database see each other's statuses.
func NewDBStateService(pool *pgxpool.Pool) CycleStateService {
	return &dbStateService{pool: pool}
}

func (d *dbStateService) Initialize(ctx context.Context, recordTypes []config.RecordTypeConfig) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	names := make([]string, 0, len(recordTypes))
	for _, rt := range recordTypes {
		names = append(names, rt.Name)

		loaded, err := selectStatus(ctx, tx, rt.Name, true)
		if err != nil && !errors.Is(err, ErrRecordTypeNotFound) {
			return err
		}
		cycleStatus, changed := initialStatus(loaded, rt)
		if !changed {
			continue
		}
		if cycleStatus.Phase == status.PhaseFailed {
			slog.Warn("Previous sync was interrupted, resetting to Failed", "record_type", rt.Name)
		}
		if err := upsertStatus(ctx, tx, rt.Name, cycleStatus); err != nil {
			return err
		}
	}

	// record types removed from the configuration
	if _, err := tx.Exec(ctx,
		`DELETE FROM sync_cycle_status WHERE NOT (record_type = ANY($1))`, names,
	); err != nil {
		return fmt.Errorf("failed to delete stale cycle statuses: %w", err)
	}

	return tx.Commit(ctx)
}

func (d *dbStateService) ListStatuses(ctx context.Context) (map[string]*status.CycleStatus, error) {
	rows, err := d.pool.Query(ctx, `SELECT record_type, `+statusColumns+` FROM sync_cycle_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle statuses: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*status.CycleStatus)
	for rows.Next() {
		var name string
		cycleStatus, err := scanStatus(rows, &name)
		if err != nil {
			return nil, err
		}
		result[name] = cycleStatus
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list cycle statuses: %w", err)
	}
	return result, nil
}

func (d *dbStateService) GetStatus(ctx context.Context, recordType string) (*status.CycleStatus, error) {
	return selectStatus(ctx, d.pool, recordType, false)
}

func (d *dbStateService) UpdateStatus(ctx context.Context, recordType string, cycleStatus *status.CycleStatus) error {
	return upsertStatus(ctx, d.pool, recordType, cycleStatus)
}

func (d *dbStateService) UpdateStatusAtomically(
	ctx context.Context,
	recordType string,
	testAndUpdateFn func(cycleStatus *status.CycleStatus) bool,
) (bool, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cycleStatus, err := selectStatus(ctx, tx, recordType, true)
	if err != nil {
		return false, err
	}
	if !testAndUpdateFn(cycleStatus) {
		return false, nil
	}
	if err := upsertStatus(ctx, tx, recordType, cycleStatus); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit cycle status: %w", err)
	}
	return true, nil
}

// rowQuerier and execer are satisfied by both the pool and a transaction
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func selectStatus(ctx context.Context, q rowQuerier, recordType string, forUpdate bool) (*status.CycleStatus, error) {
	query := `SELECT record_type, ` + statusColumns + ` FROM sync_cycle_status WHERE record_type = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var name string
	cycleStatus, err := scanStatus(q.QueryRow(ctx, query, recordType), &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", recordType, ErrRecordTypeNotFound)
	}
	return cycleStatus, err
}

func scanStatus(row pgx.Row, name *string) (*status.CycleStatus, error) {
	var (
		cycleStatus  status.CycleStatus
		phase        string
		lastAttempt  *time.Time
		lastSyncTime *time.Time
	)
	err := row.Scan(
		name,
		&phase,
		&cycleStatus.Message,
		&lastAttempt,
		&cycleStatus.AttemptCount,
		&lastSyncTime,
		&cycleStatus.LastErrorKind,
		&cycleStatus.Pushed,
		&cycleStatus.Rejected,
		&cycleStatus.Pulled,
		&cycleStatus.SyncInterval,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan cycle status: %w", err)
	}
	cycleStatus.Phase = status.Phase(phase)
	cycleStatus.LastAttempt = utc(lastAttempt)
	cycleStatus.LastSyncTime = utc(lastSyncTime)
	return &cycleStatus, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertStatus(ctx context.Context, e execer, recordType string, s *status.CycleStatus) error {
	if s == nil {
		return fmt.Errorf("cycle status of %s cannot be nil", recordType)
	}
	_, err := e.Exec(ctx, upsertStatusSQL,
		recordType,
		string(s.Phase),
		s.Message,
		s.LastAttempt,
		s.AttemptCount,
		s.LastSyncTime,
		s.LastErrorKind,
		s.Pushed,
		s.Rejected,
		s.Pulled,
		s.SyncInterval,
	)
	if err != nil {
		return fmt.Errorf("failed to store cycle status of %s: %w", recordType, err)
	}
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
