package dlq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/ext"
	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/queue"
)

// pageSize is how many failed jobs ReplayAll loads per store call.
const pageSize = 100

// Service provides dead letter operations over a job.Store.
type Service struct {
	store      job.Store
	clock      clock.Clock
	logger     *slog.Logger
	extensions *ext.Registry
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock stamping replayed jobs.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithExtensions sets the registry notified of replayed jobs.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Service) { s.extensions = r }
}

// NewService creates a dead letter service.
func NewService(store job.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(s.logger)
	}
	return s
}

// List returns failed jobs. A zero q lists every queue.
func (s *Service) List(ctx context.Context, q queue.Key, limit, offset int) ([]*job.Job, error) {
	return s.store.ListJobs(ctx, job.ListOpts{
		Queue:  q,
		Status: job.StatusFailed,
		Limit:  limit,
		Offset: offset,
	})
}

// Get returns a failed job. It returns atomizer.ErrJobNotFailed when the
// job exists in another status.
func (s *Service) Get(ctx context.Context, jobID id.ID) (*job.Job, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusFailed {
		return nil, fmt.Errorf("%w: %s is %s", atomizer.ErrJobNotFailed, jobID, j.Status)
	}
	return j, nil
}

// Replay enqueues a new pending job copied from the failed job jobID and
// returns it. Failed jobs hold no idempotency key, so the copy has none.
func (s *Service) Replay(ctx context.Context, jobID id.ID) (*job.Job, error) {
	failed, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.replay(ctx, failed)
}

// ReplayAll replays every failed job of queue q, or of every queue when q
// is zero, and reports how many were replayed.
func (s *Service) ReplayAll(ctx context.Context, q queue.Key) (int, error) {
	// Replayed jobs stay failed, so paging must move past them.
	replayed, offset := 0, 0
	for {
		page, err := s.List(ctx, q, pageSize, offset)
		if err != nil {
			return replayed, err
		}
		for _, failed := range page {
			if _, err := s.replay(ctx, failed); err != nil {
				return replayed, err
			}
			replayed++
		}
		if len(page) < pageSize {
			return replayed, nil
		}
		offset += len(page)
	}
}

func (s *Service) replay(ctx context.Context, failed *job.Job) (*job.Job, error) {
	now := s.clock.Now()
	j := job.New(failed.Queue, failed.Type, failed.Payload, now, failed.MaxAttempts, now)
	j.ScheduleJobKey = failed.ScheduleJobKey

	if _, err := s.store.InsertJob(ctx, j); err != nil {
		return nil, fmt.Errorf("replay %s: %w", failed.ID, err)
	}

	s.logger.Info("failed job replayed",
		slog.String("job_id", failed.ID.String()),
		slog.String("replay_id", j.ID.String()),
		slog.String("queue", j.Queue.String()),
	)
	s.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}
