package cron

import (
	"context"
	"time"

	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/lease"
)

// Store defines the persistence contract for schedules.
type Store interface {
	// UpsertSchedule inserts s, or replaces the schedule with the same job
	// key while keeping the stored ID and creation time.
	UpsertSchedule(ctx context.Context, s *Schedule) (id.ID, error)

	// GetSchedule retrieves a schedule by job key.
	GetSchedule(ctx context.Context, key job.Key) (*Schedule, error)

	// ListSchedules returns every schedule ordered by job key.
	ListSchedules(ctx context.Context) ([]*Schedule, error)

	// DeleteSchedule removes a schedule by job key.
	DeleteSchedule(ctx context.Context, key job.Key) error

	// GetDueSchedules returns enabled schedules whose next run is at or
	// before now and that are not held by a live lease.
	GetDueSchedules(ctx context.Context, now time.Time) ([]*Schedule, error)

	// LeaseDueSchedules atomically claims up to batchSize due schedules
	// under token, invisible until now+visibility.
	LeaseDueSchedules(ctx context.Context, now time.Time, batchSize int, visibility time.Duration, token lease.Token) ([]*Schedule, error)

	// ReleaseLeasedSchedules clears the lease of every schedule held under
	// token and reports how many were released.
	ReleaseLeasedSchedules(ctx context.Context, token lease.Token) (int, error)
}

// Lock is a held advisory lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker acquires named advisory locks. AcquireLock waits up to timeout
// and returns atomizer.ErrLockNotAcquired when the lock stays taken.
type Locker interface {
	AcquireLock(ctx context.Context, key string, timeout time.Duration) (Lock, error)
}
