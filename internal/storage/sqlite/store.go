// Package sqlite implements the on-device record store on top of SQLite.
//
// All record types share one database file; rows are partitioned by record type.
// Timestamps are stored as UTC unix microseconds.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/fieldsync/fieldsync/database"
	"github.com/fieldsync/fieldsync/internal/record"
	"github.com/fieldsync/fieldsync/internal/status"
)

const recordColumns = `id, payload, created_at, updated_at, deleted_at, sync_status, validation_errors`

// ErrLocked is returned by Open while another process holds the database
var ErrLocked = errors.New("sqlite database is in use by another fieldsync process")

// DB is an open SQLite database holding the stores of every record type
type DB struct {
	db   *sql.DB
	lock *flock.Flock
	path string
	now  func() time.Time
}

// Option configures the database
type Option func(*DB)

// WithClock overrides the clock used for local mutation timestamps
func WithClock(now func() time.Time) Option {
	return func(d *DB) {
		d.now = now
	}
}

// Open migrates the database at path to the latest schema and opens it
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// push claims rows that are PENDING or IN_FLIGHT, which is only safe with one engine per file
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock sqlite database %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	sqlDB, err := openLocked(ctx, path)
	if err != nil {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			slog.Warn("Failed to release sqlite lock", "path", path, "error", unlockErr)
		}
		return nil, err
	}

	d := &DB{db: sqlDB, lock: lock, path: path, now: record.Now}
	for _, opt := range opts {
		opt(d)
	}

	slog.Info("SQLite record store opened", "path", path)
	return d, nil
}

func openLocked(ctx context.Context, path string) (*sql.DB, error) {
	m, err := database.NewMigrator(database.DialectSQLite, database.SQLiteMigrationURL(path))
	if err != nil {
		return nil, err
	}
	migrateErr := database.MigrateUp(m)
	if closeErr := database.CloseMigrator(m); closeErr != nil {
		slog.Warn("Failed to close sqlite migrator", "path", path, "error", closeErr)
	}
	if migrateErr != nil {
		return nil, migrateErr
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return sqlDB, nil
}

// Store returns the store of one record type
func (d *DB) Store(recordType string) *Store {
	return &Store{db: d.db, recordType: recordType, now: d.now}
}

// Ping verifies the database is reachable
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database and releases its lock
func (d *DB) Close() error {
	return errors.Join(d.db.Close(), d.lock.Unlock())
}

// Store is the SQLite-backed record.Store of one record type
type Store struct {
	db         *sql.DB
	recordType string
	now        func() time.Time
}

var _ record.Store = (*Store)(nil)

// RecordType implements record.Store
func (s *Store) RecordType() string {
	return s.recordType
}

// Save implements record.Store
func (s *Store) Save(ctx context.Context, rec *record.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := s.now()

	var createdAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT created_at FROM sync_records WHERE record_type = ? AND id = ?`,
		s.recordType, rec.ID.String(),
	).Scan(&createdAt)
	switch {
	case err == nil:
		rec.CreatedAt = fromMicros(createdAt)
	case errors.Is(err, sql.ErrNoRows):
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
	default:
		return fmt.Errorf("failed to load %s %s: %w", s.recordType, rec.ID, err)
	}
	rec.Touch(now)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_records (record_type, `+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (record_type, id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			sync_status = excluded.sync_status,
			validation_errors = NULL`,
		s.recordType, rec.ID.String(), payloadText(rec.Payload),
		toMicros(rec.CreatedAt), toMicros(rec.UpdatedAt), nullableMicros(rec.DeletedAt), string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", s.recordType, rec.ID, err)
	}

	return tx.Commit()
}

// SoftDelete implements record.Store
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	now := toMicros(s.now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_records
		SET deleted_at = ?, updated_at = ?, sync_status = ?, validation_errors = NULL
		WHERE record_type = ? AND id = ?`,
		now, now, string(status.StatusPending), s.recordType, id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", s.recordType, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", s.recordType, id, record.ErrNotFound)
	}
	return nil
}

// Get implements record.Store
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM sync_records WHERE record_type = ? AND id = ?`,
		s.recordType, id.String(),
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	args := make([]any, 0, len(statuses)+1)
	args = append(args, s.recordType)
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM sync_records
		WHERE record_type = ? AND sync_status IN (`+placeholders(len(statuses))+`)
		ORDER BY updated_at, id`,
		args...,
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE sync_records SET sync_status = ?, validation_errors = ?
		WHERE record_type = ? AND id = ? AND sync_status IN (`+placeholders(len(sources))+`)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare transition: %w", err)
	}
	defer stmt.Close()

	changed := 0
	for _, id := range ids {
		var errorsJSON any
		if target == status.StatusInvalid && len(reasons[id]) > 0 {
			encoded, err := json.Marshal(reasons[id])
			if err != nil {
				return 0, fmt.Errorf("failed to encode validation errors of %s: %w", id, err)
			}
			errorsJSON = string(encoded)
		}

		args := []any{string(target), errorsJSON, s.recordType, id.String()}
		for _, src := range sources {
			args = append(args, string(src))
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to move %s %s to %s: %w", s.recordType, id, target, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		changed += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transition: %w", err)
	}
	return changed, nil
}

// Upsert implements record.Store
func (s *Store) Upsert(ctx context.Context, records []*record.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_records (record_type, `+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (record_type, id) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			sync_status = excluded.sync_status,
			validation_errors = NULL`)
	if err != nil {
		return fmt.Errorf("failed to prepare merge: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			s.recordType, rec.ID.String(), payloadText(rec.Payload),
			toMicros(rec.CreatedAt), toMicros(rec.UpdatedAt), nullableMicros(rec.DeletedAt),
			string(status.StatusDone),
		)
		if err != nil {
			return fmt.Errorf("failed to merge %s %s: %w", s.recordType, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}
	return nil
}

// ResetInFlight implements record.Store
func (s *Store) ResetInFlight(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_records SET sync_status = ? WHERE record_type = ? AND sync_status = ?`,
		string(status.StatusPending), s.recordType, string(status.StatusInFlight),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset in-flight %s records: %w", s.recordType, err)
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// CountByStatus implements record.Store
func (s *Store) CountByStatus(ctx context.Context) (map[status.SyncStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sync_status, COUNT(*) FROM sync_records WHERE record_type = ? GROUP BY sync_status`,
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
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[status.SyncStatus(st)] = n
	}
	return counts, rows.Err()
}

// GetCursor implements record.CursorStore
func (s *Store) GetCursor(ctx context.Context) (string, bool, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM pull_cursors WHERE record_type = ?`, s.recordType,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load %s cursor: %w", s.recordType, err)
	}
	return cursor, true, nil
}

// SetCursor implements record.CursorStore
func (s *Store) SetCursor(ctx context.Context, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pull_cursors (record_type, cursor, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (record_type) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at`,
		s.recordType, cursor, toMicros(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s cursor: %w", s.recordType, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*record.Record, error) {
	var (
		id, payload, syncStatus string
		createdAt, updatedAt    int64
		deletedAt               sql.NullInt64
		validationErrors        sql.NullString
	)
	if err := row.Scan(&id, &payload, &createdAt, &updatedAt, &deletedAt, &syncStatus, &validationErrors); err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt record id %q: %w", id, err)
	}
	st, err := status.ParseSyncStatus(syncStatus)
	if err != nil {
		return nil, err
	}

	rec := &record.Record{
		ID:        parsedID,
		Payload:   json.RawMessage(payload),
		CreatedAt: fromMicros(createdAt),
		UpdatedAt: fromMicros(updatedAt),
		Status:    st,
	}
	if deletedAt.Valid {
		t := fromMicros(deletedAt.Int64)
		rec.DeletedAt = &t
	}
	if validationErrors.Valid && validationErrors.String != "" {
		if err := json.Unmarshal([]byte(validationErrors.String), &rec.ValidationErrors); err != nil {
			return nil, fmt.Errorf("corrupt validation errors of %s: %w", id, err)
		}
	}
	return rec, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func payloadText(payload json.RawMessage) string {
	if len(payload) == 0 {
		return "{}"
	}
	return string(payload)
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func nullableMicros(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMicros(*t)
}
