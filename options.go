package atomizer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mnbuhl/atomizer/id"
)

// Option configures an Atomizer.
type Option func(*Atomizer) error

// Storer is the minimal store interface held by the Atomizer. It covers
// lifecycle operations only; subsystem layers use the full store.Store.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// coordinator is the queue processing lifecycle (worker.Coordinator).
type coordinator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context, grace time.Duration) error
}

// scheduler is the recurring schedule lifecycle (cron.Scheduler).
type scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Atomizer hosts the queue coordinator and the scheduler. It is a thin
// lifecycle adapter; the engine package wires the subsystems into it.
type Atomizer struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	queues     coordinator
	sched      scheduler

	mu      sync.Mutex
	started bool
}

// New creates a new Atomizer with the given options.
func New(opts ...Option) (*Atomizer, error) {
	a := &Atomizer{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.config.InstanceID == "" {
		a.config.InstanceID = id.NewRuntimeID().String()
	}
	return a, nil
}

// Logger returns the logger.
func (a *Atomizer) Logger() *slog.Logger { return a.logger }

// Store returns the configured store.
func (a *Atomizer) Store() Storer { return a.store }

// Config returns a copy of the configuration.
func (a *Atomizer) Config() Config { return a.config }

// SetCoordinator sets the queue coordinator (called by the engine package).
func (a *Atomizer) SetCoordinator(c coordinator) { a.queues = c }

// SetScheduler sets the schedule processor lifecycle (called by the engine package).
func (a *Atomizer) SetScheduler(s scheduler) { a.sched = s }

// SetExtensions sets the extension emitter (called by the engine package).
func (a *Atomizer) SetExtensions(e extensionEmitter) { a.extensions = e }

// Start begins queue processing and, when enabled, schedule processing.
func (a *Atomizer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store == nil {
		return ErrNoStore
	}
	if a.started {
		return ErrAlreadyStarted
	}
	if a.queues != nil {
		if err := a.queues.Start(ctx); err != nil {
			return err
		}
	}
	if a.sched != nil && a.config.SchedulerEnabled {
		if err := a.sched.Start(ctx); err != nil {
			return err
		}
	}
	a.started = true
	a.logger.Info("atomizer started", slog.String("instance_id", a.config.InstanceID))
	return nil
}

// Stop gracefully shuts down schedule and queue processing. The store is
// not closed; its owner closes it.
func (a *Atomizer) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.started = false

	if a.sched != nil && a.config.SchedulerEnabled {
		if err := a.sched.Stop(ctx); err != nil {
			a.logger.Error("scheduler stop error", slog.String("error", err.Error()))
		}
	}
	var stopErr error
	if a.queues != nil {
		if err := a.queues.Stop(ctx, a.config.GracePeriod); err != nil {
			a.logger.Error("queue coordinator stop error", slog.String("error", err.Error()))
			stopErr = err
		}
	}
	if a.extensions != nil {
		a.extensions.EmitShutdown(ctx)
	}
	a.logger.Info("atomizer stopped", slog.String("instance_id", a.config.InstanceID))
	return stopErr
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(a *Atomizer) error {
		a.config = cfg
		return nil
	}
}

// WithInstanceID sets the runtime instance identifier.
func WithInstanceID(instanceID string) Option {
	return func(a *Atomizer) error {
		a.config.InstanceID = instanceID
		return nil
	}
}

// WithGracePeriod sets how long Stop waits before cancelling in-flight jobs.
func WithGracePeriod(d time.Duration) Option {
	return func(a *Atomizer) error {
		a.config.GracePeriod = d
		return nil
	}
}

// WithReleaseTimeout bounds lease release and outcome persistence during
// shutdown.
func WithReleaseTimeout(d time.Duration) Option {
	return func(a *Atomizer) error {
		a.config.ReleaseTimeout = d
		return nil
	}
}

// WithSchedulerEnabled toggles recurring schedule processing.
func WithSchedulerEnabled(enabled bool) Option {
	return func(a *Atomizer) error {
		a.config.SchedulerEnabled = enabled
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Atomizer) error {
		a.logger = l
		return nil
	}
}

// WithStore sets the persistence backend. The store must implement
// Storer at minimum; typically it is a store.Store.
func WithStore(s Storer) Option {
	return func(a *Atomizer) error {
		a.store = s
		return nil
	}
}
