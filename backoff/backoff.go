// Package backoff provides retry strategies for job execution. A
// RetryStrategy is an immutable value: a maximum attempt count plus the
// ordered backoff intervals, precomputed when the strategy is built.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/mnbuhl/atomizer"
)

// jitterFactor bounds the random spread applied to an interval (±20%).
const jitterFactor = 0.2

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait after failed attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// RetryStrategy decides whether a failed job is retried and when.
// It is safe for concurrent use.
type RetryStrategy struct {
	maxAttempts int
	intervals   []time.Duration
	jitter      bool
}

var _ Strategy = RetryStrategy{}

// ──────────────────────────────────────────────────
// Constructors
// ──────────────────────────────────────────────────

// Fixed retries up to maxAttempts total attempts, waiting the same
// interval after every failure.
func Fixed(maxAttempts int, interval time.Duration, jitter bool) (RetryStrategy, error) {
	if maxAttempts < 1 {
		return RetryStrategy{}, fmt.Errorf("%w: max attempts must be at least 1, got %d", atomizer.ErrInvalidRetryStrategy, maxAttempts)
	}
	if interval < 0 {
		return RetryStrategy{}, fmt.Errorf("%w: negative interval %v", atomizer.ErrInvalidRetryStrategy, interval)
	}
	intervals := make([]time.Duration, max(maxAttempts-1, 1))
	for i := range intervals {
		intervals[i] = interval
	}
	return RetryStrategy{maxAttempts: maxAttempts, intervals: intervals, jitter: jitter}, nil
}

// Intervals waits intervals[i] after the (i+1)th failure. The strategy
// allows len(intervals)+1 attempts.
func Intervals(jitter bool, intervals ...time.Duration) (RetryStrategy, error) {
	if len(intervals) == 0 {
		return RetryStrategy{}, fmt.Errorf("%w: at least one interval is required", atomizer.ErrInvalidRetryStrategy)
	}
	for i, d := range intervals {
		if d < 0 {
			return RetryStrategy{}, fmt.Errorf("%w: interval %d is negative (%v)", atomizer.ErrInvalidRetryStrategy, i, d)
		}
	}
	cp := make([]time.Duration, len(intervals))
	copy(cp, intervals)
	return RetryStrategy{maxAttempts: len(cp) + 1, intervals: cp, jitter: jitter}, nil
}

// Exponential multiplies the interval by exponent after every failure:
// interval[i] = base * exponent^i. A positive maxInterval caps each value.
func Exponential(maxAttempts int, base time.Duration, exponent float64, maxInterval time.Duration, jitter bool) (RetryStrategy, error) {
	switch {
	case maxAttempts < 1:
		return RetryStrategy{}, fmt.Errorf("%w: max attempts must be at least 1, got %d", atomizer.ErrInvalidRetryStrategy, maxAttempts)
	case base <= 0:
		return RetryStrategy{}, fmt.Errorf("%w: base interval must be positive, got %v", atomizer.ErrInvalidRetryStrategy, base)
	case exponent < 1:
		return RetryStrategy{}, fmt.Errorf("%w: exponent must be at least 1, got %v", atomizer.ErrInvalidRetryStrategy, exponent)
	case maxInterval < 0:
		return RetryStrategy{}, fmt.Errorf("%w: negative max interval %v", atomizer.ErrInvalidRetryStrategy, maxInterval)
	}

	intervals := make([]time.Duration, max(maxAttempts-1, 1))
	for i := range intervals {
		d := float64(base) * math.Pow(exponent, float64(i))
		if maxInterval > 0 && d > float64(maxInterval) {
			d = float64(maxInterval)
		}
		if d > math.MaxInt64 {
			d = math.MaxInt64
		}
		intervals[i] = time.Duration(d)
	}
	return RetryStrategy{maxAttempts: maxAttempts, intervals: intervals, jitter: jitter}, nil
}

// MustFixed is like Fixed but panics on invalid parameters.
func MustFixed(maxAttempts int, interval time.Duration, jitter bool) RetryStrategy {
	s, err := Fixed(maxAttempts, interval, jitter)
	if err != nil {
		panic(err)
	}
	return s
}

// Default returns the strategy used when a queue configures none:
// 3 attempts, exponential from 15s doubling, capped at 1h, jittered.
func Default() RetryStrategy {
	s, err := Exponential(3, 15*time.Second, 2, time.Hour, true)
	if err != nil {
		panic(err)
	}
	return s
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// MaxAttempts returns the total number of attempts allowed.
func (s RetryStrategy) MaxAttempts() int { return s.maxAttempts }

// Jitter reports whether delays are randomised.
func (s RetryStrategy) Jitter() bool { return s.jitter }

// Intervals returns a copy of the precomputed intervals.
func (s RetryStrategy) Intervals() []time.Duration {
	out := make([]time.Duration, len(s.intervals))
	copy(out, s.intervals)
	return out
}

// IsZero reports whether s is the zero value (no strategy configured).
func (s RetryStrategy) IsZero() bool { return s.maxAttempts == 0 }

// ShouldRetry reports whether another attempt is allowed after attempts
// attempts have been made.
func (s RetryStrategy) ShouldRetry(attempts int) bool {
	return attempts < s.maxAttempts
}

// Delay returns the backoff after failed attempt n (1-indexed). Attempts
// past the last interval reuse it. Jitter is resampled on every call.
func (s RetryStrategy) Delay(attempt int) time.Duration {
	if len(s.intervals) == 0 {
		return 0
	}
	idx := min(max(attempt-1, 0), len(s.intervals)-1)
	d := s.intervals[idx]
	if !s.jitter || d == 0 {
		return d
	}
	spread := 1 - jitterFactor + rand.Float64()*2*jitterFactor //nolint:gosec // jitter intentionally uses non-crypto rand
	return time.Duration(float64(d) * spread)
}
