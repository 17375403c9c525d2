package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/ext"
	"github.com/mnbuhl/atomizer/job"
	mw "github.com/mnbuhl/atomizer/middleware"
	"github.com/mnbuhl/atomizer/queue"
)

// Option configures an Engine.
type Option func(*Engine)

// WithQueues sets the queues served by this runtime. When none are given
// the default queue is served with default options.
func WithQueues(queues ...queue.Options) Option {
	return func(eng *Engine) {
		eng.queues = append(eng.queues, queues...)
	}
}

// WithHostOptions passes options to the underlying atomizer.Atomizer.
func WithHostOptions(opts ...atomizer.Option) Option {
	return func(eng *Engine) {
		eng.hostOpts = append(eng.hostOpts, opts...)
	}
}

// WithLogger sets the logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) {
		eng.logger = l
	}
}

// WithClock sets the time source. Tests use clock.Fake.
func WithClock(c clock.Clock) Option {
	return func(eng *Engine) {
		eng.clock = c
	}
}

// WithSerializer sets the payload serializer. The default is
// job.SonicSerializer.
func WithSerializer(s job.Serializer) Option {
	return func(eng *Engine) {
		eng.serializer = s
	}
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithSchedulerConfig sets the schedule poller configuration.
func WithSchedulerConfig(cfg cron.PollerConfig) Option {
	return func(eng *Engine) {
		eng.pollerConfig = cfg
	}
}

// WithMisfireThreshold sets how late a single late occurrence may be and
// still run under its own timestamp.
func WithMisfireThreshold(d time.Duration) Option {
	return func(eng *Engine) {
		eng.misfireThreshold = d
	}
}

// WithLocker replaces the store's scheduler lock, for example with a
// lock/redislock.Locker.
func WithLocker(l cron.Locker) Option {
	return func(eng *Engine) {
		eng.locker = l
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// Both the metrics middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}
