// Package dlq treats failed jobs as a dead letter queue: jobs whose retry
// budget is exhausted stay in the store with status failed, and this
// package inspects and replays them.
//
// Replaying a failed job enqueues a fresh pending job with the same
// queue, payload type, payload and attempt budget. The failed job is
// left untouched so its error history survives.
//
//	svc := dlq.NewService(store)
//
//	failed, err := svc.List(ctx, queue.Default, 50, 0)
//	replayed, err := svc.Replay(ctx, failed[0].ID)
package dlq
