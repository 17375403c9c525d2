// Package job defines the job entity, its state machine, the handler
// registry and the store contract.
//
// # Job Entity
//
// A [Job] is a unit of work. It carries a payload type tag, an opaque
// serialized payload and progresses through a state machine:
//
//	pending → processing → completed
//	pending → processing → pending (retry, invisible until backoff elapses)
//	pending → processing → failed
//	processing → processing (lease expired, reclaimed by another poller)
//
// While processing, a job holds a lease token and a visibility deadline.
// Once the deadline passes the job is due again even though its status is
// still processing; lease expiry, not an explicit unlock, governs reclaim.
//
// Every failed attempt appends an [Error]. Errors are never mutated or
// removed, so a failed job keeps its full history.
//
// # Handlers
//
// [Registry] maps payload type tags to type-erased [HandlerFunc] values.
// Register typed handlers at startup via [Handle]:
//
//	job.Handle(registry, job.TypeOf[SendEmail](),
//	    func(ctx context.Context, p SendEmail) error {
//	        j, _ := job.FromContext(ctx)
//	        return mailer.Send(ctx, p.To, j.ID.String())
//	    },
//	)
//
// The engine package provides higher-level engine.Register and
// engine.Enqueue wrappers.
package job
