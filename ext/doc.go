// Package ext lets code outside the engine observe job and schedule
// lifecycle events.
//
// An extension implements [Extension] plus any of the hook interfaces
// ([JobEnqueued], [JobStarted], [JobCompleted], [JobRetrying],
// [JobFailed], [JobCancelled], [ScheduleFired], [Shutdown]). The
// [Registry] works out which hooks each extension implements when it is
// registered and calls only those.
//
//	type pager struct{ client *pd.Client }
//
//	func (pager) Name() string { return "pager" }
//
//	func (p pager) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
//	    return p.client.Trigger(ctx, j.Type, err.Error())
//	}
//
// Hook errors and panics are logged at warn level and never reach the
// worker.
package ext
