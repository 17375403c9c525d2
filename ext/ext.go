package ext

import (
	"context"
	"time"

	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/job"
)

// Extension is anything registered with a Registry. It receives only the
// events whose hook interfaces it also implements.
type Extension interface {
	Name() string
}

type (
	JobEnqueued interface {
		OnJobEnqueued(ctx context.Context, j *job.Job) error
	}

	JobStarted interface {
		OnJobStarted(ctx context.Context, j *job.Job) error
	}

	// JobCompleted receives the handler's wall time.
	JobCompleted interface {
		OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
	}

	// JobRetrying receives the attempt that failed and when the job becomes
	// visible again.
	JobRetrying interface {
		OnJobRetrying(ctx context.Context, j *job.Job, attempt int, visibleAt time.Time) error
	}

	// JobFailed fires once, after the last permitted attempt.
	JobFailed interface {
		OnJobFailed(ctx context.Context, j *job.Job, err error) error
	}

	// JobCancelled fires when shutdown interrupts an attempt. The job stays
	// leased until the lease expires.
	JobCancelled interface {
		OnJobCancelled(ctx context.Context, j *job.Job) error
	}

	ScheduleFired interface {
		OnScheduleFired(ctx context.Context, s *cron.Schedule, j *job.Job) error
	}

	Shutdown interface {
		OnShutdown(ctx context.Context) error
	}
)
