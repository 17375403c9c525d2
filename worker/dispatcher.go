package worker

import (
	"context"
	"fmt"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/middleware"
)

// Dispatcher resolves a job's handler by payload type and invokes it
// through the middleware chain.
type Dispatcher struct {
	registry   *job.Registry
	serializer job.Serializer
	mw         middleware.Middleware
}

// NewDispatcher creates a Dispatcher. A nil serializer means
// job.SonicSerializer.
func NewDispatcher(registry *job.Registry, serializer job.Serializer, mws ...middleware.Middleware) *Dispatcher {
	if serializer == nil {
		serializer = job.SonicSerializer{}
	}
	return &Dispatcher{
		registry:   registry,
		serializer: serializer,
		mw:         middleware.Chain(mws...),
	}
}

// Dispatch runs the handler registered for j.Type. The handler sees j via
// job.FromContext. Its error is returned as is so callers can inspect the
// cause with errors.Is and errors.As.
func (d *Dispatcher) Dispatch(ctx context.Context, j *job.Job) error {
	if j.Type == "" {
		return fmt.Errorf("job %s: %w", j.ID, atomizer.ErrMissingPayloadType)
	}
	handler, ok := d.registry.Resolve(j.Type)
	if !ok {
		return fmt.Errorf("%w: %q", atomizer.ErrHandlerNotFound, j.Type)
	}

	terminal := func(ctx context.Context) error {
		return handler(ctx, j.Payload, d.serializer)
	}
	return d.mw(job.WithJob(ctx, j), j, terminal)
}
