package middleware

import (
	"context"
	"errors"
	"slices"

	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/queue"
)

// Handler runs one attempt of a job.
type Handler func(ctx context.Context) error

// Middleware runs around an attempt. It calls next to continue, or
// returns without calling it to short-circuit the attempt.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain folds mws into one Middleware. mws[0] sees the attempt first.
func Chain(mws ...Middleware) Middleware {
	switch len(mws) {
	case 0:
		return func(ctx context.Context, _ *job.Job, next Handler) error { return next(ctx) }
	case 1:
		return mws[0]
	}
	return func(ctx context.Context, j *job.Job, next Handler) error {
		var step func(i int) Handler
		step = func(i int) Handler {
			if i == len(mws) {
				return next
			}
			return func(ctx context.Context) error { return mws[i](ctx, j, step(i+1)) }
		}
		return step(0)(ctx)
	}
}

// When applies m only to jobs matching pred. Other jobs go straight to
// next.
func When(pred func(*job.Job) bool, m Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if !pred(j) {
			return next(ctx)
		}
		return m(ctx, j, next)
	}
}

// OnQueues applies m to jobs leased from one of keys.
func OnQueues(m Middleware, keys ...queue.Key) Middleware {
	return When(func(j *job.Job) bool { return slices.Contains(keys, j.Queue) }, m)
}

// OnTypes applies m to jobs whose handler type is one of types.
func OnTypes(m Middleware, types ...string) Middleware {
	return When(func(j *job.Job) bool { return slices.Contains(types, j.Type) }, m)
}

type outcome string

const (
	outcomeOK        outcome = "ok"
	outcomeError     outcome = "error"
	outcomeCancelled outcome = "cancelled"
)

// classify tells a handler failure apart from the caller's context going
// away. A per-attempt timeout counts as an error.
func classify(ctx context.Context, err error) outcome {
	if err == nil {
		return outcomeOK
	}
	if cause := ctx.Err(); cause != nil && errors.Is(err, cause) {
		return outcomeCancelled
	}
	return outcomeError
}
