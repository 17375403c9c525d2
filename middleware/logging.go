package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/mnbuhl/atomizer/job"
)

// Logging writes one debug record per attempt once the handler returns.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if !logger.Enabled(ctx, slog.LevelDebug) {
			return next(ctx)
		}

		began := time.Now()
		err := next(ctx)

		attrs := []slog.Attr{
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("queue", j.Queue.String()),
			slog.String("attempt", attemptLabel(j)),
			slog.String("outcome", string(classify(ctx, err))),
			slog.Duration("took", time.Since(began)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.LogAttrs(ctx, slog.LevelDebug, "attempt done", attrs...)
		return err
	}
}

func attemptLabel(j *job.Job) string {
	return strconv.Itoa(j.Attempts) + "/" + strconv.Itoa(j.MaxAttempts)
}
