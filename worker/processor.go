package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mnbuhl/atomizer/backoff"
	"github.com/mnbuhl/atomizer/job"
)

// Processor runs a single job attempt and records its outcome. A worker
// creates one per job.
type Processor struct {
	deps   Deps
	retry  backoff.RetryStrategy
	logger *slog.Logger
}

// NewProcessor creates a Processor for jobs retried with retry.
func NewProcessor(deps Deps, retry backoff.RetryStrategy, logger *slog.Logger) *Processor {
	deps = deps.withDefaults()
	if logger == nil {
		logger = deps.Logger
	}
	if retry.IsZero() {
		retry = backoff.Default()
	}
	return &Processor{deps: deps, retry: retry, logger: logger}
}

// Process increments the job's attempts, dispatches it and persists the
// outcome. If ctx is cancelled and the handler returns a context error,
// the job is left untouched; its lease expires and another poller
// reclaims it. Process never panics and never returns an error:
// persistence failures are logged.
func (p *Processor) Process(ctx context.Context, j *job.Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job processing panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	j.Attempts++
	p.deps.Extensions.EmitJobStarted(ctx, j)

	start := time.Now()
	err := p.deps.Dispatcher.Dispatch(ctx, j)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		p.complete(ctx, j, elapsed)
	case ctx.Err() != nil && isContextError(err):
		p.logger.Warn("job cancelled",
			slog.Int("attempt", j.Attempts),
			slog.Duration("elapsed", elapsed),
		)
		p.deps.Extensions.EmitJobCancelled(ctx, j)
	default:
		p.fail(ctx, j, err)
	}
}

func (p *Processor) complete(ctx context.Context, j *job.Job, elapsed time.Duration) {
	j.MarkCompleted(p.deps.Clock.Now())
	if err := p.persist(ctx, j); err != nil {
		p.logger.Error("failed to persist completed job", slog.String("error", err.Error()))
	}

	p.logger.Info("job completed",
		slog.String("job_type", j.Type),
		slog.Int("attempt", j.Attempts),
		slog.Duration("duration", elapsed),
	)
	p.deps.Extensions.EmitJobCompleted(ctx, j, elapsed)
}

func (p *Processor) fail(ctx context.Context, j *job.Job, cause error) {
	now := p.deps.Clock.Now()
	record := job.NewError(j, cause, p.deps.InstanceID, now)

	maxAttempts := j.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.retry.MaxAttempts()
	}

	if j.Attempts < maxAttempts {
		delay := p.retry.Delay(j.Attempts)
		visibleAt := now.Add(delay)
		j.Retry(record, now, visibleAt)
		if err := p.persist(ctx, j); err != nil {
			p.logger.Error("failed to persist retried job", slog.String("error", err.Error()))
		}

		p.logger.Info("job attempt failed, retry scheduled",
			slog.String("job_type", j.Type),
			slog.Int("attempt", j.Attempts),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", cause.Error()),
		)
		p.deps.Extensions.EmitJobRetrying(ctx, j, j.Attempts, visibleAt)
		return
	}

	j.MarkFailed(record, now)
	if err := p.persist(ctx, j); err != nil {
		p.logger.Error("failed to persist failed job", slog.String("error", err.Error()))
	}

	p.logger.Warn("job failed after exhausting attempts",
		slog.String("job_type", j.Type),
		slog.Int("attempts", j.Attempts),
		slog.String("error", cause.Error()),
	)
	p.deps.Extensions.EmitJobFailed(ctx, j, cause)
}

// persist updates j on a context detached from handler cancellation and
// bounded by the release timeout.
func (p *Processor) persist(ctx context.Context, j *job.Job) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.deps.ReleaseTimeout)
	defer cancel()
	if err := p.deps.Store.UpdateJob(persistCtx, j); err != nil {
		return fmt.Errorf("update job %s: %w", j.ID, err)
	}
	return nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
