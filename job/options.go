package job

import (
	"time"

	"github.com/mnbuhl/atomizer/queue"
)

// Options configures a single enqueue.
type Options struct {
	// Queue is the target queue. Zero means queue.Default.
	Queue queue.Key

	// Type overrides the payload type tag derived from the payload's Go type.
	Type string

	// IdempotencyKey rejects the enqueue when another non-terminal job holds
	// the same key.
	IdempotencyKey string

	// MaxAttempts overrides the queue retry strategy's attempt count.
	// Zero means use the strategy's value.
	MaxAttempts int

	// RunAt schedules the job for later. Zero means now.
	RunAt time.Time

	// ScheduleJobKey links the job to the recurring schedule that spawned it.
	ScheduleJobKey Key
}

// Option is a functional option for an enqueue.
type Option func(*Options)

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{Queue: queue.Default}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Queue.IsZero() {
		o.Queue = queue.Default
	}
	return o
}

// WithQueue sets the target queue.
func WithQueue(q queue.Key) Option {
	return func(o *Options) {
		o.Queue = q
	}
}

// WithType overrides the payload type tag.
func WithType(tag string) Option {
	return func(o *Options) {
		o.Type = tag
	}
}

// WithIdempotencyKey sets the idempotency key.
func WithIdempotencyKey(key string) Option {
	return func(o *Options) {
		o.IdempotencyKey = key
	}
}

// WithMaxAttempts caps the number of attempts for this job.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithRunAt schedules the job for execution at t.
func WithRunAt(t time.Time) Option {
	return func(o *Options) {
		o.RunAt = t
	}
}

// WithScheduleJobKey links the job to a recurring schedule.
func WithScheduleJobKey(k Key) Option {
	return func(o *Options) {
		o.ScheduleJobKey = k
	}
}
