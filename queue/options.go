package queue

import (
	"fmt"
	"time"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/backoff"
)

// Options configures how a single queue is polled and processed.
type Options struct {
	// Key is the queue served by the pump.
	Key Key

	// BatchSize is the maximum number of jobs leased per storage call.
	BatchSize int

	// DegreeOfParallelism is the number of concurrent workers.
	DegreeOfParallelism int

	// VisibilityTimeout is how long a leased job stays invisible to
	// other pollers. A job not finished within it may be reclaimed.
	VisibilityTimeout time.Duration

	// StorageCheckInterval is the minimum time between lease calls.
	StorageCheckInterval time.Duration

	// TickInterval is how often the poller wakes up to consider leasing.
	TickInterval time.Duration

	// Retry is the retry strategy for jobs in this queue. The zero value
	// means backoff.Default().
	Retry backoff.RetryStrategy

	// LeaseRate caps the jobs leased per second. Zero disables it.
	LeaseRate float64

	// LeaseBurst is the token bucket size. Defaults to BatchSize when
	// LeaseRate is set.
	LeaseBurst int
}

// Option configures Options.
type Option func(*Options)

// DefaultOptions returns the options of the default queue.
func DefaultOptions() Options {
	return Options{
		Key:                  Default,
		BatchSize:            10,
		DegreeOfParallelism:  4,
		VisibilityTimeout:    5 * time.Minute,
		StorageCheckInterval: time.Second,
		TickInterval:         100 * time.Millisecond,
		Retry:                backoff.Default(),
	}
}

// NewOptions builds Options for the named queue, starting from the
// defaults, and validates the result.
func NewOptions(name string, opts ...Option) (Options, error) {
	key, err := NewKey(name)
	if err != nil {
		return Options{}, err
	}
	o := DefaultOptions()
	o.Key = key
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// MustOptions is like NewOptions but panics on error.
func MustOptions(name string, opts ...Option) Options {
	o, err := NewOptions(name, opts...)
	if err != nil {
		panic(err)
	}
	return o
}

// Validate reports invalid settings.
func (o Options) Validate() error {
	switch {
	case o.Key.IsZero():
		return fmt.Errorf("%w: options have no key", atomizer.ErrInvalidQueueKey)
	case o.BatchSize < 1:
		return fmt.Errorf("queue %s: batch size must be at least 1, got %d", o.Key, o.BatchSize)
	case o.DegreeOfParallelism < 1:
		return fmt.Errorf("queue %s: degree of parallelism must be at least 1, got %d", o.Key, o.DegreeOfParallelism)
	case o.VisibilityTimeout <= 0:
		return fmt.Errorf("queue %s: visibility timeout must be positive", o.Key)
	case o.TickInterval <= 0:
		return fmt.Errorf("queue %s: tick interval must be positive", o.Key)
	case o.StorageCheckInterval < 0:
		return fmt.Errorf("queue %s: negative storage check interval", o.Key)
	case o.LeaseRate < 0:
		return fmt.Errorf("queue %s: negative lease rate", o.Key)
	}
	return nil
}

// Capacity is the size of the pump's channel.
func (o Options) Capacity() int {
	return o.DegreeOfParallelism * o.BatchSize
}

// RetryStrategy returns the configured strategy or backoff.Default().
func (o Options) RetryStrategy() backoff.RetryStrategy {
	if o.Retry.IsZero() {
		return backoff.Default()
	}
	return o.Retry
}

// WithBatchSize sets the lease batch size.
func WithBatchSize(n int) Option {
	return func(o *Options) { o.BatchSize = n }
}

// WithDegreeOfParallelism sets the number of workers.
func WithDegreeOfParallelism(n int) Option {
	return func(o *Options) { o.DegreeOfParallelism = n }
}

// WithVisibilityTimeout sets the lease visibility timeout.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(o *Options) { o.VisibilityTimeout = d }
}

// WithStorageCheckInterval sets the minimum time between lease calls.
func WithStorageCheckInterval(d time.Duration) Option {
	return func(o *Options) { o.StorageCheckInterval = d }
}

// WithTickInterval sets the poller tick.
func WithTickInterval(d time.Duration) Option {
	return func(o *Options) { o.TickInterval = d }
}

// WithRetry sets the retry strategy.
func WithRetry(s backoff.RetryStrategy) Option {
	return func(o *Options) { o.Retry = s }
}

// WithLeaseRate caps leasing at perSecond jobs with the given burst.
func WithLeaseRate(perSecond float64, burst int) Option {
	return func(o *Options) {
		o.LeaseRate = perSecond
		o.LeaseBurst = burst
	}
}
