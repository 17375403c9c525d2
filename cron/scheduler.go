package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

// Scheduler owns the schedule poller goroutine.
type Scheduler struct {
	poller         *Poller
	store          Store
	instanceID     string
	releaseTimeout time.Duration
	logger         *slog.Logger

	mu     sync.Mutex
	token  lease.Token
	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithReleaseTimeout bounds the lease release performed by Stop.
func WithReleaseTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.releaseTimeout = d }
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a Scheduler for the runtime instanceID.
func NewScheduler(poller *Poller, store Store, instanceID string, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		poller:         poller,
		store:          store,
		instanceID:     instanceID,
		releaseTimeout: 5 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the lease token of the running scheduler.
func (s *Scheduler) Token() lease.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Start launches the poller. The poller stops when Stop is called; ctx
// only scopes startup.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return atomizer.ErrAlreadyStarted
	}
	token, err := lease.NewToken(s.instanceID, queue.Scheduler)
	if err != nil {
		return fmt.Errorf("scheduler lease token: %w", err)
	}

	ioCtx, cancel := context.WithCancel(context.Background())
	s.token = token
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		s.poller.Run(ioCtx, token)
	}(s.done)

	s.logger.Info("scheduler started", slog.String("lease_token", token.String()))
	return nil
}

// Stop cancels polling, waits for the in-flight cycle and releases any
// schedules still leased under the scheduler's token. The release is
// bounded by its own timeout regardless of ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done, token := s.cancel, s.done, s.token
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("scheduler stop: %w", ctx.Err())
	}

	releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer releaseCancel()
	released, err := s.store.ReleaseLeasedSchedules(releaseCtx, token)
	if err != nil {
		s.logger.Error("failed to release leased schedules",
			slog.String("lease_token", token.String()),
			slog.String("error", err.Error()),
		)
	} else if released > 0 {
		s.logger.Info("released leased schedules", slog.Int("count", released))
	}

	s.logger.Info("scheduler stopped")
	return waitErr
}
