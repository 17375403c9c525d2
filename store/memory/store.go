package memory

import (
	"context"
	"sync/atomic"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
	"github.com/mnbuhl/atomizer/store"
)

var _ store.Store = (*Store)(nil)

// DefaultMaxJobs bounds the number of jobs kept in memory.
const DefaultMaxJobs = 100_000

const storeLockKey = "atomizer:memory:store"

// Store is an in-memory implementation of store.Store. Safe for
// concurrent use.
type Store struct {
	locks   *lease.Registry
	clock   clock.Clock
	maxJobs int
	closed  atomic.Bool

	jobs        map[string]*job.Job
	order       []string
	byQueue     map[queue.Key]map[string]struct{}
	byToken     map[string]map[string]struct{}
	idempotency map[string]string

	schedules map[string]*cron.Schedule
}

// Option configures a Store.
type Option func(*Store)

// WithMaxJobs bounds the number of stored jobs. Zero or less disables
// eviction.
func WithMaxJobs(n int) Option {
	return func(s *Store) { s.maxJobs = n }
}

// WithRegistry sets the lock registry. Runtimes sharing a registry share
// the store lock and the named locks handed out by AcquireLock.
func WithRegistry(r *lease.Registry) Option {
	return func(s *Store) { s.locks = r }
}

// WithClock sets the clock used to stamp updates.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		locks:       lease.NewRegistry(),
		clock:       clock.System{},
		maxJobs:     DefaultMaxJobs,
		jobs:        make(map[string]*job.Job),
		byQueue:     make(map[queue.Key]map[string]struct{}),
		byToken:     make(map[string]map[string]struct{}),
		idempotency: make(map[string]string),
		schedules:   make(map[string]*cron.Schedule),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping fails only after Close.
func (s *Store) Ping(_ context.Context) error {
	if s.closed.Load() {
		return atomizer.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Data is kept.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) lock() func() {
	return s.locks.Lock(storeLockKey)
}

func addToSet(index map[string]map[string]struct{}, key, member string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[member] = struct{}{}
}

func removeFromSet(index map[string]map[string]struct{}, key, member string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(index, key)
	}
}
