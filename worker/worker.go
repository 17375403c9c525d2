package worker

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/mnbuhl/atomizer/backoff"
	"github.com/mnbuhl/atomizer/job"
)

// Worker processes jobs from a pump's channel one at a time.
type Worker struct {
	deps   Deps
	retry  backoff.RetryStrategy
	logger *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(deps Deps, retry backoff.RetryStrategy, logger *slog.Logger) *Worker {
	deps = deps.withDefaults()
	if logger == nil {
		logger = deps.Logger
	}
	return &Worker{deps: deps, retry: retry, logger: logger}
}

// Run reads jobs from ch until ioCtx is cancelled or ch is closed. Each
// job is processed under execCtx by a fresh Processor, so a cancelled io
// context never interrupts the job in flight.
func (w *Worker) Run(ioCtx, execCtx context.Context, ch <-chan *job.Job) {
	for {
		if ioCtx.Err() != nil {
			return
		}
		select {
		case <-ioCtx.Done():
			return
		case j, ok := <-ch:
			if !ok {
				return
			}
			w.process(execCtx, j)
		}
	}
}

func (w *Worker) process(ctx context.Context, j *job.Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker recovered from panic",
				slog.String("job_id", j.ID.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	logger := w.logger.With(slog.String("job_id", j.ID.String()))
	NewProcessor(w.deps, w.retry, logger).Process(ctx, j)
}
