// Package postgres implements the record store of a facility hub on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/status"
)

const recordColumns = `id, payload, created_at, updated_at, deleted_at, sync_status, validation_errors`

const upsertSQL = `
	INSERT INTO sync_records (record_type, ` + recordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
	ON CONFLICT (record_type, id) DO UPDATE SET
		payload = EXCLUDED.payload,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at,
		deleted_at = EXCLUDED.deleted_at,
		sync_status = EXCLUDED.sync_status,
		validation_errors = NULL`

// Store is the Postgres-backed record.Store of one record type.
// Stores of different record types share one pool.
type Store struct {
	pool       *pgxpool.Pool
	recordType string
	now        func() time.Time
}

var _ record.Store = (*Store)(nil)

// New creates the store of one record type. The schema must already be migrated.
func New(pool *pgxpool.Pool, recordType string) *Store {
	return &Store{pool: pool, recordType: recordType, now: record.Now}
}

// RecordType implements record.Store
func (s *Store) RecordType() string {
	return s.recordType
}

// Save implements record.Store
func (s *Store) Save(ctx context.Context, rec *record.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := s.now()

	var createdAt time.Time
	err = tx.QueryRow(ctx,
		`SELECT created_at FROM sync_records WHERE record_type = $1 AND id = $2 FOR UPDATE`,
		s.recordType, rec.ID,
	).Scan(&createdAt)
	switch {
	case err == nil:
		rec.CreatedAt = createdAt.UTC()
	case errors.Is(err, pgx.ErrNoRows):
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
	default:
		return fmt.Errorf("failed to load %s %s: %w", s.recordType, rec.ID, err)
	}
	rec.Touch(now)

	_, err = tx.Exec(ctx, `
		INSERT INTO sync_records (record_type, `+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)
		ON CONFLICT (record_type, id) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at,
			sync_status = EXCLUDED.sync_status,
			validation_errors = NULL`,
		s.recordType, rec.ID, payloadJSON(rec.Payload), rec.CreatedAt, rec.UpdatedAt, rec.DeletedAt, string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", s.recordType, rec.ID, err)
	}

	return tx.Commit(ctx)
}

// SoftDelete implements record.Store
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	now := s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_records
		SET deleted_at = $1, updated_at = $1, sync_status = $2, validation_errors = NULL
		WHERE record_type = $3 AND id = $4`,
		now, string(status.StatusPending), s.recordType, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", s.recordType, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", s.recordType, id, record.ErrNotFound)
	}
	return nil
}

// Get implements record.Store
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM sync_records WHERE record_type = $1 AND id = $2`,
		s.recordType, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", s.recordType, id, record.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", s.recordType, id, err)
	}
	return rec, nil
}

// PendingRecords implements record.Store
func (s *Store) PendingRecords(ctx context.Context) ([]*record.Record, error) {
	return s.RecordsWithStatus(ctx, status.StatusPending)
}

// RecordsWithStatus implements record.Store. Results are ordered by updated_at then id.
func (s *Store) RecordsWithStatus(ctx context.Context, statuses ...status.SyncStatus) ([]*record.Record, error) {
	out := make([]*record.Record, 0)
	if len(statuses) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM sync_records
		WHERE record_type = $1 AND sync_status = ANY($2)
		ORDER BY updated_at, id`,
		s.recordType, statusStrings(statuses),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s records: %w", s.recordType, err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", s.recordType, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Transition implements record.Store
func (s *Store) Transition(
	ctx context.Context, ids []uuid.UUID, target status.SyncStatus, reasons map[uuid.UUID][]record.FieldError,
) (int, error) {
	sources, err := record.TransitionSources(target)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if target != status.StatusInvalid {
		tag, err := s.pool.Exec(ctx, `
			UPDATE sync_records SET sync_status = $1, validation_errors = NULL
			WHERE record_type = $2 AND id = ANY($3) AND sync_status = ANY($4)`,
			string(target), s.recordType, ids, statusStrings(sources),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to move %s records to %s: %w", s.recordType, target, err)
		}
		return int(tag.RowsAffected()), nil
	}

	// INVALID carries per-record reasons, so each row gets its own statement in one transaction
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, id := range ids {
		var errorsJSON any
		if len(reasons[id]) > 0 {
			encoded, err := json.Marshal(reasons[id])
			if err != nil {
				return 0, fmt.Errorf("failed to encode validation errors of %s: %w", id, err)
			}
			errorsJSON = encoded
		}
		batch.Queue(`
			UPDATE sync_records SET sync_status = $1, validation_errors = $2
			WHERE record_type = $3 AND id = $4 AND sync_status = ANY($5)`,
			string(target), errorsJSON, s.recordType, id, statusStrings(sources),
		)
	}

	results := tx.SendBatch(ctx, batch)
	changed := 0
	for range ids {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("failed to move %s records to %s: %w", s.recordType, target, err)
		}
		changed += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transition: %w", err)
	}
	return changed, nil
}

// Upsert implements record.Store
func (s *Store) Upsert(ctx context.Context, records []*record.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertSQL,
			s.recordType, rec.ID, payloadJSON(rec.Payload),
			rec.CreatedAt, rec.UpdatedAt, rec.DeletedAt, string(status.StatusDone),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to merge %s records: %w", s.recordType, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}
	return nil
}

// ResetInFlight implements record.Store
func (s *Store) ResetInFlight(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_records SET sync_status = $1 WHERE record_type = $2 AND sync_status = $3`,
		string(status.StatusPending), s.recordType, string(status.StatusInFlight),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset in-flight %s records: %w", s.recordType, err)
	}
	return int(tag.RowsAffected()), nil
}

// CountByStatus implements record.Store
func (s *Store) CountByStatus(ctx context.Context) (map[status.SyncStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sync_status, COUNT(*) FROM sync_records WHERE record_type = $1 GROUP BY sync_status`,
		s.recordType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s records: %w", s.recordType, err)
	}
	defer rows.Close()

	counts := make(map[status.SyncStatus]int, len(status.AllStatuses))
	for _, st := range status.AllStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[status.SyncStatus(st)] = int(n)
	}
	return counts, rows.Err()
}

// GetCursor implements record.CursorStore
func (s *Store) GetCursor(ctx context.Context) (string, bool, error) {
	var cursor string
	err := s.pool.QueryRow(ctx,
		`SELECT cursor FROM pull_cursors WHERE record_type = $1`, s.recordType,
	).Scan(&cursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load %s cursor: %w", s.recordType, err)
	}
	return cursor, true, nil
}

// SetCursor implements record.CursorStore
func (s *Store) SetCursor(ctx context.Context, cursor string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pull_cursors (record_type, cursor, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (record_type) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = EXCLUDED.updated_at`,
		s.recordType, cursor, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s cursor: %w", s.recordType, err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*record.Record, error) {
	var (
		rec              record.Record
		payload          []byte
		syncStatus       string
		deletedAt        *time.Time
		validationErrors []byte
	)
	err := row.Scan(&rec.ID, &payload, &rec.CreatedAt, &rec.UpdatedAt, &deletedAt, &syncStatus, &validationErrors)
	if err != nil {
		return nil, err
	}

	st, err := status.ParseSyncStatus(syncStatus)
	if err != nil {
		return nil, err
	}
	rec.Status = st
	rec.Payload = json.RawMessage(payload)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if deletedAt != nil {
		t := deletedAt.UTC()
		rec.DeletedAt = &t
	}
	if len(validationErrors) > 0 {
		if err := json.Unmarshal(validationErrors, &rec.ValidationErrors); err != nil {
			return nil, fmt.Errorf("corrupt validation errors of %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func statusStrings(statuses []status.SyncStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func payloadJSON(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("{}")
	}
	return payload
}
