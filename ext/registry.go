package ext

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/job"
)

type subscriber[H any] struct {
	ext  string
	hook H
}

// subscribers holds the extensions implementing hook H, in registration
// order.
type subscribers[H any] []subscriber[H]

func (s *subscribers[H]) offer(e Extension) {
	if h, ok := e.(H); ok {
		*s = append(*s, subscriber[H]{ext: e.Name(), hook: h})
	}
}

// Registry fans lifecycle events out to extensions. Registration must be
// finished before the engine starts; emitting is safe from any goroutine.
type Registry struct {
	logger *slog.Logger
	all    []Extension

	enqueued  subscribers[JobEnqueued]
	started   subscribers[JobStarted]
	completed subscribers[JobCompleted]
	retrying  subscribers[JobRetrying]
	failed    subscribers[JobFailed]
	cancelled subscribers[JobCancelled]
	fired     subscribers[ScheduleFired]
	shutdown  subscribers[Shutdown]
}

var _ cron.Emitter = (*Registry)(nil)

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// SetLogger swaps the logger hook failures are reported to. nil is ignored.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

func (r *Registry) Register(e Extension) {
	r.all = append(r.all, e)
	r.enqueued.offer(e)
	r.started.offer(e)
	r.completed.offer(e)
	r.retrying.offer(e)
	r.failed.offer(e)
	r.cancelled.offer(e)
	r.fired.offer(e)
	r.shutdown.offer(e)
}

func (r *Registry) Extensions() []Extension { return r.all }

func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	deliver(ctx, r, "OnJobEnqueued", r.enqueued, func(h JobEnqueued) error { return h.OnJobEnqueued(ctx, j) })
}

func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	deliver(ctx, r, "OnJobStarted", r.started, func(h JobStarted) error { return h.OnJobStarted(ctx, j) })
}

func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	deliver(ctx, r, "OnJobCompleted", r.completed, func(h JobCompleted) error { return h.OnJobCompleted(ctx, j, elapsed) })
}

func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, visibleAt time.Time) {
	deliver(ctx, r, "OnJobRetrying", r.retrying, func(h JobRetrying) error {
		return h.OnJobRetrying(ctx, j, attempt, visibleAt)
	})
}

func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, cause error) {
	deliver(ctx, r, "OnJobFailed", r.failed, func(h JobFailed) error { return h.OnJobFailed(ctx, j, cause) })
}

func (r *Registry) EmitJobCancelled(ctx context.Context, j *job.Job) {
	deliver(ctx, r, "OnJobCancelled", r.cancelled, func(h JobCancelled) error { return h.OnJobCancelled(ctx, j) })
}

func (r *Registry) EmitScheduleFired(ctx context.Context, s *cron.Schedule, j *job.Job) {
	deliver(ctx, r, "OnScheduleFired", r.fired, func(h ScheduleFired) error { return h.OnScheduleFired(ctx, s, j) })
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	deliver(ctx, r, "OnShutdown", r.shutdown, func(h Shutdown) error { return h.OnShutdown(ctx) })
}

// deliver calls every subscriber in order. A failing or panicking hook is
// logged and does not stop delivery to the rest.
func deliver[H any](ctx context.Context, r *Registry, hook string, subs subscribers[H], call func(H) error) {
	for _, s := range subs {
		if err := guard(call, s.hook); err != nil {
			r.logger.LogAttrs(ctx, slog.LevelWarn, "extension hook failed",
				slog.String("hook", hook),
				slog.String("extension", s.ext),
				slog.Any("error", err),
			)
		}
	}
}

func guard[H any](call func(H) error, h H) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return call(h)
}
