package job

import (
	"context"
	"time"

	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Queue filters by queue. Zero means all queues.
	Queue queue.Key
	// Status filters by status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for jobs.
type Store interface {
	// InsertJob persists a new job. It returns
	// atomizer.ErrDuplicateIdempotencyKey when a non-terminal job already
	// holds the same idempotency key.
	InsertJob(ctx context.Context, j *Job) (id.ID, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.ID) (*Job, error)

	// ListJobs returns jobs ordered by creation time.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// LeaseBatch atomically claims up to batchSize due jobs on queue q,
	// flips them to processing under token and makes them invisible until
	// now+visibility. Jobs are ordered by scheduled time. Two concurrent
	// calls never return the same job.
	LeaseBatch(ctx context.Context, q queue.Key, batchSize int, now time.Time, visibility time.Duration, token lease.Token) ([]*Job, error)

	// ReleaseLeased returns every job still processing under token to
	// pending and reports how many were released.
	ReleaseLeased(ctx context.Context, token lease.Token) (int, error)
}
