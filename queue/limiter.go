package queue

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter caps how many jobs a pump may lease per second. A nil *Limiter
// allows everything. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewLimiter returns the lease limiter for o, or nil when o has no
// lease rate.
func (o Options) NewLimiter() *Limiter {
	if o.LeaseRate <= 0 {
		return nil
	}
	burst := o.LeaseBurst
	if burst <= 0 {
		burst = max(o.BatchSize, 1)
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(o.LeaseRate), burst)}
}

// Take reserves up to want tokens at now and returns how many were
// granted. It never blocks.
func (l *Limiter) Take(now time.Time, want int) int {
	if l == nil {
		return want
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	n := min(want, int(l.limiter.TokensAt(now)))
	if n <= 0 || !l.limiter.AllowN(now, n) {
		return 0
	}
	return n
}
