// Package worker runs the queue processing pipeline.
//
// Each configured queue gets a [Pump]. A pump owns one bounded channel, a
// [Poller] that leases due jobs from storage into the channel, and
// DegreeOfParallelism [Worker] goroutines that read from it. Each worker
// hands every job to a fresh [Processor], which runs the job through the
// [Dispatcher] and records the outcome: completed, retried with backoff,
// or failed.
//
// # Two contexts
//
// A pump runs on two contexts. The io context governs intake: polling and
// channel reads. The execution context governs handlers in flight.
// Pump.Stop cancels io first so no new work is leased, waits up to the
// grace period for in-flight jobs, and only then cancels execution.
// Jobs still leased afterwards are released back to pending.
//
// The [Coordinator] starts a pump per queue and stops them concurrently.
package worker
