package cron

import (
	"fmt"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/queue"
)

// DefaultMaxCatchUp bounds the occurrences emitted by MisfireCatchUp when
// a schedule configures none.
const DefaultMaxCatchUp = 10

// Options configures a recurring schedule.
type Options struct {
	// Queue is the queue spawned jobs are enqueued on.
	Queue queue.Key

	// Type overrides the payload type tag.
	Type string

	// MaxAttempts is propagated to every spawned job. Zero means the
	// queue's retry strategy decides.
	MaxAttempts int

	// MisfirePolicy decides what happens to missed occurrences.
	MisfirePolicy MisfirePolicy

	// TimeZone is the IANA zone the expression is evaluated in.
	TimeZone string

	// Enabled controls whether the schedule is polled.
	Enabled bool

	// MaxCatchUp bounds the occurrences emitted under MisfireCatchUp and
	// must be at least 1 for that policy. There is no unbounded setting.
	MaxCatchUp int
}

// Option configures Options.
type Option func(*Options)

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Queue:         queue.Default,
		MisfirePolicy: MisfireExecuteNow,
		TimeZone:      "UTC",
		Enabled:       true,
		MaxCatchUp:    DefaultMaxCatchUp,
	}
}

// NewOptions applies opts over DefaultOptions.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Validate checks the options.
func (o Options) Validate() error {
	switch {
	case o.Queue.IsZero():
		return fmt.Errorf("%w: empty queue", atomizer.ErrInvalidQueueKey)
	case !o.MisfirePolicy.Valid():
		return fmt.Errorf("%w: unknown misfire policy %q", atomizer.ErrInvalidSchedule, o.MisfirePolicy)
	case o.MisfirePolicy == MisfireCatchUp && o.MaxCatchUp < 1:
		return fmt.Errorf("%w: max catch-up must be at least 1, got %d", atomizer.ErrInvalidSchedule, o.MaxCatchUp)
	case o.MaxAttempts < 0:
		return fmt.Errorf("%w: negative max attempts %d", atomizer.ErrInvalidSchedule, o.MaxAttempts)
	}
	return nil
}

// WithQueue sets the queue spawned jobs are enqueued on.
func WithQueue(q queue.Key) Option {
	return func(o *Options) { o.Queue = q }
}

// WithType overrides the payload type tag.
func WithType(tag string) Option {
	return func(o *Options) { o.Type = tag }
}

// WithMaxAttempts sets the attempts of spawned jobs.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithMisfirePolicy sets the misfire policy.
func WithMisfirePolicy(p MisfirePolicy) Option {
	return func(o *Options) { o.MisfirePolicy = p }
}

// WithTimeZone sets the IANA time zone, e.g. "Europe/Copenhagen".
func WithTimeZone(tz string) Option {
	return func(o *Options) { o.TimeZone = tz }
}

// WithEnabled enables or disables the schedule.
func WithEnabled(enabled bool) Option {
	return func(o *Options) { o.Enabled = enabled }
}

// WithMaxCatchUp bounds the occurrences emitted under MisfireCatchUp.
func WithMaxCatchUp(n int) Option {
	return func(o *Options) { o.MaxCatchUp = n }
}
