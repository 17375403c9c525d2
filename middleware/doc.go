// Package middleware wraps job attempts with cross-cutting behaviour.
//
// The engine installs [Recover], [Tracing], [Metrics] and [Logging] ahead
// of any middleware passed through engine.WithMiddleware. Extra
// middleware can be scoped with [OnQueues], [OnTypes] or [When]:
//
//	engine.WithMiddleware(middleware.OnQueues(
//	    middleware.Timeout(30*time.Second), queue.MustKey("email"),
//	))
//
// A middleware that returns without calling next skips the handler; the
// returned error is recorded against the attempt like a handler error.
package middleware
