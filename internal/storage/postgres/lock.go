package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrLocked is returned by AcquireEngineLock while another engine uses the database
var ErrLocked = errors.New("record database is in use by another fieldsync process")

// engineLockKey is the advisory lock id ("fieldsyn")
const engineLockKey int64 = 0x6669656c6473796e

// EngineLock is a session advisory lock held on a dedicated pool connection
type EngineLock struct {
	conn *pgxpool.Conn
}

// AcquireEngineLock takes the engine lock without waiting
func AcquireEngineLock(ctx context.Context, pool *pgxpool.Pool) (*EngineLock, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for engine lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, engineLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take engine lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, ErrLocked
	}
	return &EngineLock{conn: conn}, nil
}

// Release unlocks and returns the connection to the pool
func (l *EngineLock) Release(ctx context.Context) error {
	if l == nil || l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Release()
		l.conn = nil
	}()
	if _, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, engineLockKey); err != nil {
		return fmt.Errorf("failed to release engine lock: %w", err)
	}
	return nil
}
