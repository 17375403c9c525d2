package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/mnbuhl/atomizer/job"
)

// Timeout cancels an attempt after d. An attempt cut short this way fails
// with an error wrapping context.DeadlineExceeded and is retried; it is not
// mistaken for shutdown. d <= 0 returns a pass-through.
func Timeout(d time.Duration) Middleware {
	if d <= 0 {
		return Chain()
	}
	return func(ctx context.Context, j *job.Job, next Handler) error {
		bounded, cancel := context.WithTimeoutCause(ctx, d, errAttemptTimeout{d: d})
		defer cancel()

		err := next(bounded)
		if err == nil || ctx.Err() != nil || bounded.Err() == nil {
			return err
		}
		return fmt.Errorf("job %s: %w: %w", j.ID, context.Cause(bounded), err)
	}
}

type errAttemptTimeout struct{ d time.Duration }

func (e errAttemptTimeout) Error() string { return "attempt exceeded " + e.d.String() }
