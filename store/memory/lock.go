package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/cron"
)

const lockPollInterval = 10 * time.Millisecond

// AcquireLock takes the registry mutex for key, retrying until timeout.
// The lock only serialises callers sharing the store's registry.
func (s *Store) AcquireLock(ctx context.Context, key string, timeout time.Duration) (cron.Lock, error) {
	deadline := time.Now().Add(timeout)
	for {
		if unlock, ok := s.locks.TryLock("lock:" + key); ok {
			return &heldLock{unlock: unlock}, nil
		}
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

type heldLock struct {
	once   sync.Once
	unlock func()
}

// Release frees the lock. Later calls are no-ops.
func (l *heldLock) Release(_ context.Context) error {
	l.once.Do(l.unlock)
	return nil
}
