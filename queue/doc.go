// Package queue defines queue identity and per-queue processing options.
//
// A [Key] names a queue. Keys compare case-insensitively: "Email" and
// "email" are the same queue. Every job carries the key of the queue it
// belongs to, and every configured queue gets its own pump.
//
// # Per-Queue Options
//
// Use [Options] to size a queue's pump and its retry policy:
//
//	opts := queue.MustOptions("email",
//	    queue.WithBatchSize(20),
//	    queue.WithDegreeOfParallelism(5),
//	    queue.WithVisibilityTimeout(2*time.Minute),
//	    queue.WithLeaseRate(10, 20), // at most 10 jobs/s leased, bursts of 20
//	)
//
// The poller never keeps more than DegreeOfParallelism × BatchSize jobs in
// the pump's channel, and only leases when the channel backlog is below
// DegreeOfParallelism.
//
// # Lease Rate
//
// [Limiter] wraps a token bucket (golang.org/x/time/rate) that caps how
// many jobs a pump may lease per second. Queues without a lease rate are
// limited only by their parallelism.
package queue
