package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/cron"
)

const lockPollInterval = 50 * time.Millisecond

// AcquireLock takes a transaction-scoped advisory lock on key, retrying
// until timeout. The lock lives as long as the returned Lock's
// transaction.
func (s *Store) AcquireLock(ctx context.Context, key string, timeout time.Duration) (cron.Lock, error) {
	deadline := time.Now().Add(timeout)
	for {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("atomizer/postgres: begin lock tx: %w", err)
		}

		var acquired bool
		if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, key).Scan(&acquired); err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("atomizer/postgres: try advisory lock: %w", err)
		}
		if acquired {
			return &advisoryLock{tx: tx}, nil
		}
		_ = tx.Rollback(context.WithoutCancel(ctx))

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", atomizer.ErrLockNotAcquired, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

type advisoryLock struct {
	once sync.Once
	tx   pgx.Tx
	err  error
}

// Release ends the holding transaction. Later calls return the first
// result.
func (l *advisoryLock) Release(ctx context.Context) error {
	l.once.Do(func() {
		if err := l.tx.Rollback(ctx); err != nil {
			l.err = fmt.Errorf("atomizer/postgres: release advisory lock: %w", err)
		}
	})
	return l.err
}
