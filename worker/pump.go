package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

// Pump runs the poller and workers of one queue.
type Pump struct {
	opts   queue.Options
	token  lease.Token
	deps   Deps
	logger *slog.Logger

	mu         sync.Mutex
	running    bool
	ioCancel   context.CancelFunc
	execCancel context.CancelFunc
	workers    sync.WaitGroup
	pollerDone chan struct{}
}

// NewPump creates a pump for opts leasing under token.
func NewPump(opts queue.Options, token lease.Token, deps Deps) *Pump {
	deps = deps.withDefaults()
	return &Pump{
		opts:  opts,
		token: token,
		deps:  deps,
		logger: deps.Logger.With(
			slog.String("queue", opts.Key.String()),
		),
	}
}

// Token returns the pump's lease token.
func (p *Pump) Token() lease.Token { return p.token }

// Start launches the poller and DegreeOfParallelism workers. It returns
// immediately; ctx only scopes startup.
func (p *Pump) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return atomizer.ErrAlreadyStarted
	}
	if err := p.opts.Validate(); err != nil {
		return err
	}
	p.running = true

	ioCtx, ioCancel := context.WithCancel(context.Background())
	execCtx, execCancel := context.WithCancel(context.Background())
	p.ioCancel, p.execCancel = ioCancel, execCancel

	ch := make(chan *job.Job, p.opts.Capacity())
	p.pollerDone = make(chan struct{})

	poller := NewPoller(p.deps, p.logger)
	go func() {
		defer close(p.pollerDone)
		poller.Run(ioCtx, p.opts, p.token, ch)
	}()

	retry := p.opts.RetryStrategy()
	for i := range p.opts.DegreeOfParallelism {
		w := NewWorker(p.deps, retry, p.logger.With(slog.Int("worker", i)))
		p.workers.Add(1)
		go func() {
			defer p.workers.Done()
			w.Run(ioCtx, execCtx, ch)
		}()
	}

	p.logger.Info("queue pump started",
		slog.Int("degree_of_parallelism", p.opts.DegreeOfParallelism),
		slog.Int("batch_size", p.opts.BatchSize),
		slog.String("lease_token", p.token.String()),
	)
	return nil
}

// Stop shuts the pump down:
//
//  1. cancel the io context, ending leasing and channel reads
//  2. wait for in-flight jobs up to grace
//  3. if grace (or ctx) runs out, cancel the execution context and wait
//  4. wait for the poller
//  5. release jobs still leased under the pump's token, bounded by the
//     release timeout regardless of ctx
//
// Release failures are logged, not returned. Stop returns ctx's error if
// ctx ended before the workers did.
func (p *Pump) Stop(ctx context.Context, grace time.Duration) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("queue pump stopping", slog.Duration("grace_period", grace))
	p.ioCancel()

	workersDone := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(workersDone)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	var stopErr error
	select {
	case <-workersDone:
	case <-timer.C:
		p.logger.Warn("grace period elapsed, cancelling in-flight jobs")
		p.execCancel()
		<-workersDone
	case <-ctx.Done():
		p.logger.Warn("stop context ended, cancelling in-flight jobs")
		stopErr = fmt.Errorf("queue %s: %w", p.opts.Key, ctx.Err())
		p.execCancel()
		<-workersDone
	}
	<-p.pollerDone
	p.execCancel()

	p.releaseLeased(ctx)
	p.logger.Info("queue pump stopped")
	return stopErr
}

func (p *Pump) releaseLeased(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.deps.ReleaseTimeout)
	defer cancel()

	released, err := p.deps.Store.ReleaseLeased(releaseCtx, p.token)
	if err != nil {
		p.logger.Error("failed to release leased jobs",
			slog.String("lease_token", p.token.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if released > 0 {
		p.logger.Info("released leased jobs", slog.Int("count", released))
	}
}
