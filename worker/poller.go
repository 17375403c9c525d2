package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

// Poller leases due jobs for one queue and writes them to the pump's
// channel. It is the channel's only writer.
type Poller struct {
	deps   Deps
	logger *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(deps Deps, logger *slog.Logger) *Poller {
	deps = deps.withDefaults()
	if logger == nil {
		logger = deps.Logger
	}
	return &Poller{deps: deps, logger: logger}
}

// Run polls until ctx is cancelled, then closes ch. Every TickInterval it
// leases a batch when StorageCheckInterval has elapsed since the last
// lease call and fewer than DegreeOfParallelism jobs are waiting in ch.
// Writes block while ch is full. Errors are logged and never end the loop.
func (p *Poller) Run(ctx context.Context, opts queue.Options, token lease.Token, ch chan<- *job.Job) {
	defer close(ch)

	limiter := opts.NewLimiter()
	ticker := time.NewTicker(opts.TickInterval)
	defer ticker.Stop()

	var lastCheck time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := p.deps.Clock.Now()
		if !lastCheck.IsZero() && now.Sub(lastCheck) < opts.StorageCheckInterval {
			continue
		}
		if len(ch) >= opts.DegreeOfParallelism {
			continue
		}
		lastCheck = now

		batch := limiter.Take(now, opts.BatchSize)
		if batch == 0 {
			continue
		}

		jobs, err := p.deps.Store.LeaseBatch(ctx, opts.Key, batch, now, opts.VisibilityTimeout, token)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("lease batch failed", slog.String("error", err.Error()))
			}
			continue
		}
		if len(jobs) > 0 {
			p.logger.Debug("leased jobs", slog.Int("count", len(jobs)))
		}

		for _, j := range jobs {
			select {
			case ch <- j:
			case <-ctx.Done():
				return
			}
		}
	}
}
