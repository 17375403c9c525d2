// Package redislock implements cron.Locker on Redis, letting scheduler
// instances that share a Redis server but not a database serialise their
// lease sections.
//
// A lock is a key set with SET NX PX holding a random owner token. The
// key expires after the configured TTL so a crashed holder cannot wedge
// the scheduler; Release deletes the key only while it still holds the
// caller's token.
package redislock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/cron"
)

const (
	// DefaultTTL bounds how long a lock survives its holder.
	DefaultTTL = 30 * time.Second

	// DefaultPrefix namespaces lock keys.
	DefaultPrefix = "atomizer:lock:"

	defaultPollInterval = 25 * time.Millisecond
)

// releaseScript deletes KEYS[1] only when it holds ARGV[1].
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ cron.Locker = (*Locker)(nil)

// Locker acquires named locks on a Redis server.
type Locker struct {
	client       goredis.UniversalClient
	prefix       string
	ttl          time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets how long a lock outlives a holder that never releases it.
func WithTTL(d time.Duration) Option {
	return func(l *Locker) { l.ttl = d }
}

// WithPrefix sets the key prefix.
func WithPrefix(p string) Option {
	return func(l *Locker) { l.prefix = p }
}

// WithPollInterval sets the delay between acquisition attempts.
func WithPollInterval(d time.Duration) Option {
	return func(l *Locker) { l.pollInterval = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

// New returns a Locker using client.
func New(client goredis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client:       client,
		prefix:       DefaultPrefix,
		ttl:          DefaultTTL,
		pollInterval: defaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AcquireLock tries SET NX until it succeeds or timeout elapses, in which
// case it returns atomizer.ErrLockNotAcquired.
func (l *Locker) AcquireLock(ctx context.Context, key string, timeout time.Duration) (cron.Lock, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("atomizer/redislock: acquire %s: %w", key, err)
		}
		if ok {
			return &redisLock{locker: l, key: redisKey, token: token}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", atomizer.ErrLockNotAcquired, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

type redisLock struct {
	locker *Locker
	key    string
	token  string

	once sync.Once
	err  error
}

// Release deletes the key if the lock still owns it. A lock that already
// expired releases silently.
func (r *redisLock) Release(ctx context.Context) error {
	r.once.Do(func() {
		n, err := releaseScript.Run(ctx, r.locker.client, []string{r.key}, r.token).Int()
		if err != nil {
			r.err = fmt.Errorf("atomizer/redislock: release %s: %w", r.key, err)
			return
		}
		if n == 0 {
			r.locker.logger.Warn("lock expired before release", slog.String("key", r.key))
		}
	})
	return r.err
}
