package atomizer

import "time"

// Config holds runtime-wide configuration for an Atomizer instance.
type Config struct {
	// InstanceID identifies this runtime. It is embedded in every lease
	// token issued by the instance. Empty means one is generated.
	InstanceID string

	// GracePeriod is how long Stop waits for in-flight jobs before their
	// execution context is cancelled.
	GracePeriod time.Duration

	// ReleaseTimeout bounds the best-effort release of leases on shutdown.
	// It is independent of the context passed to Stop.
	ReleaseTimeout time.Duration

	// SchedulerEnabled controls whether recurring schedules are processed
	// by this instance.
	SchedulerEnabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriod:      30 * time.Second,
		ReleaseTimeout:   5 * time.Second,
		SchedulerEnabled: true,
	}
}
