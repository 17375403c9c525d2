// Package observability provides an OpenTelemetry metrics extension for
// Atomizer. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for enqueue, completion, retry, failure,
// cancellation and schedule events.
//
// For per-attempt tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
