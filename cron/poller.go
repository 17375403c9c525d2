package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/lease"
)

// LockKey is the advisory lock held around a scheduler poll cycle.
const LockKey = "atomizer:scheduler"

// PollerConfig configures schedule polling.
type PollerConfig struct {
	// BatchSize is the maximum number of schedules leased per cycle.
	BatchSize int
	// VisibilityTimeout is how long a leased schedule stays invisible.
	VisibilityTimeout time.Duration
	// StorageCheckInterval is the minimum time between poll cycles.
	StorageCheckInterval time.Duration
	// TickInterval is how often the poller wakes up.
	TickInterval time.Duration
	// LockTimeout bounds the wait for the scheduler lock.
	LockTimeout time.Duration
	// Lookahead moves the horizon past now so jobs are materialized
	// ahead of their scheduled time.
	Lookahead time.Duration
}

// DefaultPollerConfig returns the defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		BatchSize:            10,
		VisibilityTimeout:    time.Minute,
		StorageCheckInterval: time.Second,
		TickInterval:         100 * time.Millisecond,
		LockTimeout:          5 * time.Second,
	}
}

// Poller leases due schedules and hands them to the processor.
type Poller struct {
	store     Store
	locker    Locker
	processor *Processor
	clock     clock.Clock
	logger    *slog.Logger
	cfg       PollerConfig
}

// NewPoller creates a Poller.
func NewPoller(store Store, locker Locker, processor *Processor, cfg PollerConfig, c clock.Clock, logger *slog.Logger) *Poller {
	if c == nil {
		c = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		store:     store,
		locker:    locker,
		processor: processor,
		clock:     c,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run polls until ctx is cancelled. Errors are logged and never end the
// loop.
func (p *Poller) Run(ctx context.Context, token lease.Token) {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	var lastCheck time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := p.clock.Now()
		if !lastCheck.IsZero() && now.Sub(lastCheck) < p.cfg.StorageCheckInterval {
			continue
		}
		lastCheck = now
		if _, err := p.Poll(ctx, token); err != nil && ctx.Err() == nil {
			p.logger.Error("schedule poll failed", slog.String("error", err.Error()))
		}
	}
}

// Poll runs one cycle: it takes the scheduler lock, leases due schedules
// under token and processes each with horizon now+Lookahead. It returns
// the number of jobs inserted.
func (p *Poller) Poll(ctx context.Context, token lease.Token) (int, error) {
	lock, err := p.locker.AcquireLock(ctx, LockKey, p.cfg.LockTimeout)
	if err != nil {
		return 0, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.LockTimeout)
		defer cancel()
		if relErr := lock.Release(releaseCtx); relErr != nil {
			p.logger.Error("release scheduler lock failed", slog.String("error", relErr.Error()))
		}
	}()

	// Every poller shifts lease times by the same lookahead, so visibility
	// still expires VisibilityTimeout after the lease was taken.
	horizon := p.clock.Now().Add(p.cfg.Lookahead)
	due, err := p.store.LeaseDueSchedules(ctx, horizon, p.cfg.BatchSize, p.cfg.VisibilityTimeout, token)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, s := range due {
		inserted += p.processor.Process(ctx, s, horizon)
	}
	return inserted, nil
}
