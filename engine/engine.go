package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/dlq"
	"github.com/mnbuhl/atomizer/ext"
	"github.com/mnbuhl/atomizer/job"
	mw "github.com/mnbuhl/atomizer/middleware"
	"github.com/mnbuhl/atomizer/observability"
	"github.com/mnbuhl/atomizer/queue"
	"github.com/mnbuhl/atomizer/store"
	"github.com/mnbuhl/atomizer/worker"
)

const instrumentationName = "github.com/mnbuhl/atomizer"

// Engine is a configured Atomizer runtime plus its client surface.
type Engine struct {
	host       *atomizer.Atomizer
	store      store.Store
	locker     cron.Locker
	extensions *ext.Registry
	registry   *job.Registry
	serializer job.Serializer
	clock      clock.Clock
	logger     *slog.Logger
	mws        []mw.Middleware
	hostOpts   []atomizer.Option

	queues      []queue.Options
	queueByKey  map[queue.Key]queue.Options
	coordinator *worker.Coordinator

	pollerConfig     cron.PollerConfig
	misfireThreshold time.Duration
	scheduler        *cron.Scheduler

	deadLetters *dlq.Service

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Build creates an Engine on top of s.
func Build(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, atomizer.ErrNoStore
	}

	eng := &Engine{
		store:            s,
		registry:         job.NewRegistry(),
		serializer:       job.SonicSerializer{},
		clock:            clock.System{},
		logger:           slog.Default(),
		pollerConfig:     cron.DefaultPollerConfig(),
		misfireThreshold: cron.DefaultMisfireThreshold,
	}
	// Extensions registered through options need the registry first.
	eng.extensions = ext.NewRegistry(eng.logger)
	for _, opt := range opts {
		opt(eng)
	}
	eng.extensions.SetLogger(eng.logger)

	if len(eng.queues) == 0 {
		eng.queues = []queue.Options{queue.DefaultOptions()}
	}
	eng.queueByKey = make(map[queue.Key]queue.Options, len(eng.queues))
	for _, q := range eng.queues {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("queue %s: %w", q.Key, err)
		}
		if _, dup := eng.queueByKey[q.Key]; dup {
			return nil, fmt.Errorf("%w: queue %s configured twice", atomizer.ErrInvalidQueueKey, q.Key)
		}
		eng.queueByKey[q.Key] = q
	}
	if eng.locker == nil {
		eng.locker = s
	}

	hostOpts := append([]atomizer.Option{
		atomizer.WithStore(s),
		atomizer.WithLogger(eng.logger),
	}, eng.hostOpts...)
	host, err := atomizer.New(hostOpts...)
	if err != nil {
		return nil, err
	}
	eng.host = host
	cfg := host.Config()

	eng.extensions.Register(eng.observabilityExtension())

	deps := worker.Deps{
		Store:          s,
		Dispatcher:     worker.NewDispatcher(eng.registry, eng.serializer, eng.middleware()...),
		Extensions:     eng.extensions,
		Clock:          eng.clock,
		Logger:         eng.logger,
		InstanceID:     cfg.InstanceID,
		ReleaseTimeout: cfg.ReleaseTimeout,
	}
	eng.coordinator = worker.NewCoordinator(eng.queues, deps)

	processor := cron.NewProcessor(s, s, eng.registry,
		cron.WithProcessorLogger(eng.logger),
		cron.WithProcessorClock(eng.clock),
		cron.WithEmitter(eng.extensions),
		cron.WithMisfireThreshold(eng.misfireThreshold),
	)
	poller := cron.NewPoller(s, eng.locker, processor, eng.pollerConfig, eng.clock, eng.logger)
	eng.scheduler = cron.NewScheduler(poller, s, cfg.InstanceID,
		cron.WithReleaseTimeout(cfg.ReleaseTimeout),
		cron.WithSchedulerLogger(eng.logger),
	)

	eng.deadLetters = dlq.NewService(s,
		dlq.WithClock(eng.clock),
		dlq.WithLogger(eng.logger),
		dlq.WithExtensions(eng.extensions),
	)

	host.SetCoordinator(eng.coordinator)
	host.SetScheduler(eng.scheduler)
	host.SetExtensions(eng.extensions)
	return eng, nil
}

// middleware builds the handler chain: recover, tracing, metrics and
// logging, followed by user middleware.
func (eng *Engine) middleware() []mw.Middleware {
	tracing := mw.Tracing()
	if eng.tracerProvider != nil {
		tracing = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	}
	metrics := mw.Metrics()
	if eng.meterProvider != nil {
		metrics = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	}

	chain := []mw.Middleware{
		mw.Recover(eng.logger),
		tracing,
		metrics,
		mw.Logging(eng.logger),
	}
	return append(chain, eng.mws...)
}

func (eng *Engine) observabilityExtension() *observability.MetricsExtension {
	if eng.meterProvider != nil {
		return observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	}
	return observability.NewMetricsExtension()
}

// Start begins queue and schedule processing.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.host.Start(ctx)
}

// Stop shuts processing down within the host's grace period. The store
// is left open.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.host.Stop(ctx)
}

// Host returns the underlying lifecycle host.
func (eng *Engine) Host() *atomizer.Atomizer { return eng.host }

// Store returns the store.
func (eng *Engine) Store() store.Store { return eng.store }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the handler registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Coordinator returns the queue coordinator.
func (eng *Engine) Coordinator() *worker.Coordinator { return eng.coordinator }

// Scheduler returns the recurring schedule scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// DeadLetters returns the service replaying failed jobs.
func (eng *Engine) DeadLetters() *dlq.Service { return eng.deadLetters }

// Queues returns the served queue configurations.
func (eng *Engine) Queues() []queue.Options {
	out := make([]queue.Options, len(eng.queues))
	copy(out, eng.queues)
	return out
}

// maxAttemptsFor returns n, or the retry budget of queue q when n is
// unset and q is served here.
func (eng *Engine) maxAttemptsFor(q queue.Key, n int) int {
	if n > 0 {
		return n
	}
	if opts, ok := eng.queueByKey[q]; ok {
		return opts.RetryStrategy().MaxAttempts()
	}
	return 0
}

// ──────────────────────────────────────────────────
// Client surface
// ──────────────────────────────────────────────────

// Register registers fn as the handler for payloads of type T, keyed by
// job.TypeOf[T]().
func Register[T any](eng *Engine, fn func(ctx context.Context, payload T) error) {
	job.Handle(eng.registry, job.TypeOf[T](), fn)
}

// RegisterAs registers fn under an explicit payload type tag. Jobs must
// be enqueued with job.WithType(tag) to reach it.
func RegisterAs[T any](eng *Engine, tag string, fn func(ctx context.Context, payload T) error) {
	job.Handle(eng.registry, tag, fn)
}

// Enqueue submits payload for immediate processing.
func Enqueue[T any](ctx context.Context, eng *Engine, payload T, opts ...job.Option) (*job.Job, error) {
	return enqueue(ctx, eng, payload, job.NewOptions(opts...))
}

// Schedule submits payload for processing no earlier than runAt.
func Schedule[T any](ctx context.Context, eng *Engine, payload T, runAt time.Time, opts ...job.Option) (*job.Job, error) {
	o := job.NewOptions(opts...)
	o.RunAt = runAt
	return enqueue(ctx, eng, payload, o)
}

func enqueue[T any](ctx context.Context, eng *Engine, payload T, o job.Options) (*job.Job, error) {
	tag := o.Type
	if tag == "" {
		tag = job.TypeOf[T]()
	}
	data, err := eng.serializer.Serialize(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize payload %s: %w", tag, err)
	}

	now := eng.clock.Now()
	runAt := o.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	j := job.New(o.Queue, tag, data, runAt, eng.maxAttemptsFor(o.Queue, o.MaxAttempts), now)
	j.IdempotencyKey = o.IdempotencyKey
	j.ScheduleJobKey = o.ScheduleJobKey

	if _, err := eng.store.InsertJob(ctx, j); err != nil {
		return nil, err
	}
	eng.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// ScheduleRecurring creates or redefines the recurring schedule jobKey.
// Redefining keeps the schedule's identity and run history; its next run
// is recomputed only when the expression or time zone changed.
func ScheduleRecurring[T any](ctx context.Context, eng *Engine, payload T, jobKey job.Key, expr string, opts ...cron.Option) (*cron.Schedule, error) {
	tag := job.TypeOf[T]()
	data, err := eng.serializer.Serialize(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize payload %s: %w", tag, err)
	}

	now := eng.clock.Now()
	def, err := cron.New(jobKey, tag, data, expr, now, opts...)
	if err != nil {
		return nil, err
	}
	def.MaxAttempts = eng.maxAttemptsFor(def.Queue, def.MaxAttempts)

	existing, err := eng.store.GetSchedule(ctx, jobKey)
	switch {
	case errors.Is(err, atomizer.ErrScheduleNotFound):
		existing = def
	case err != nil:
		return nil, fmt.Errorf("load schedule %s: %w", jobKey, err)
	default:
		if err := existing.Redefine(def, now); err != nil {
			return nil, err
		}
	}

	scheduleID, err := eng.store.UpsertSchedule(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("upsert schedule %s: %w", jobKey, err)
	}
	existing.ID = scheduleID

	eng.logger.Info("recurring schedule registered",
		slog.String("job_key", jobKey.String()),
		slog.String("expression", existing.Expression),
		slog.String("time_zone", existing.TimeZone),
		slog.Time("next_run_at", existing.NextRunAt),
	)
	return existing, nil
}

// Unschedule deletes the recurring schedule jobKey. Jobs it already
// spawned are left alone.
func (eng *Engine) Unschedule(ctx context.Context, jobKey job.Key) error {
	return eng.store.DeleteSchedule(ctx, jobKey)
}
