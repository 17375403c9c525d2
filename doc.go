// Package atomizer provides a durable background job processing engine
// for Go. Producers enqueue typed jobs and recurring schedules against
// named queues; a runtime leases batches of due jobs, dispatches them to
// handlers with retry and backoff, and a scheduler materializes recurring
// jobs on time with misfire handling.
//
// Atomizer is a library. Import it, configure a store, register handlers
// as ordinary Go functions and start the engine.
//
// # Quick Start
//
//	s := memory.New()
//	eng, err := engine.Build(s,
//	    engine.WithQueues(queue.DefaultOptions()),
//	)
//	engine.Register(eng, func(ctx context.Context, p SendEmail) error {
//	    return mailer.Send(ctx, p.To, p.Body)
//	})
//	_ = eng.Start(ctx)
//	defer eng.Stop(ctx)
//
//	_, err = engine.Enqueue(ctx, eng, SendEmail{To: "alice@example.com"})
//
// # Architecture
//
// Each queue is served by a pump: a poller leases due jobs from the store
// into a bounded channel, and a pool of workers drains the channel. Leases
// are time bounded; a job whose owner disappears becomes visible again
// once its visibility timeout elapses. Correctness across instances relies
// on the store's atomic lease operation only; there is no leader election.
//
// Shutdown uses two contexts. Cancelling the io context stops intake while
// in-flight handlers keep running; the execution context is cancelled only
// once the grace period has elapsed.
package atomizer
