package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/mnbuhl/atomizer/job"
)

// Recover turns a handler panic into a *job.PanicError so the attempt is
// retried or dead-lettered like any other failure.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (err error) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			pe := &job.PanicError{Value: v, Stack: string(debug.Stack())}
			logger.LogAttrs(ctx, slog.LevelError, "handler panic",
				slog.String("job_id", j.ID.String()),
				slog.String("queue", j.Queue.String()),
				slog.Int("attempt", j.Attempts),
				slog.Any("value", v),
				slog.String("stack", pe.Stack),
			)
			err = pe
		}()
		return next(ctx)
	}
}
