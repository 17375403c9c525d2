package worker

import (
	"log/slog"
	"time"

	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/ext"
	"github.com/mnbuhl/atomizer/job"
)

// Deps are the collaborators shared by every pump of a runtime.
type Deps struct {
	Store      job.Store
	Dispatcher *Dispatcher
	Extensions *ext.Registry
	Clock      clock.Clock
	Logger     *slog.Logger

	// InstanceID identifies the runtime in lease tokens and job errors.
	InstanceID string

	// ReleaseTimeout bounds the lease release performed on shutdown and
	// every persistence call made after a handler returns.
	ReleaseTimeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Extensions == nil {
		d.Extensions = ext.NewRegistry(d.Logger)
	}
	if d.ReleaseTimeout <= 0 {
		d.ReleaseTimeout = 5 * time.Second
	}
	return d
}
