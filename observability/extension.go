package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/ext"
	"github.com/mnbuhl/atomizer/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/mnbuhl/atomizer/observability"

// Compile-time interface checks.
var (
	_ ext.Extension     = (*MetricsExtension)(nil)
	_ ext.JobEnqueued   = (*MetricsExtension)(nil)
	_ ext.JobCompleted  = (*MetricsExtension)(nil)
	_ ext.JobRetrying   = (*MetricsExtension)(nil)
	_ ext.JobFailed     = (*MetricsExtension)(nil)
	_ ext.JobCancelled  = (*MetricsExtension)(nil)
	_ ext.ScheduleFired = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters. Register it as
// an extension to track enqueue, completion, retry, failure and
// cancellation rates and schedule fires. Every counter carries the
// job_type and queue attributes.
type MetricsExtension struct {
	JobEnqueued   metric.Int64Counter
	JobCompleted  metric.Int64Counter
	JobRetried    metric.Int64Counter
	JobFailed     metric.Int64Counter
	JobCancelled  metric.Int64Counter
	ScheduleFired metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	return &MetricsExtension{
		JobEnqueued:   counter(meter, "atomizer.job.enqueued", "Jobs inserted by producers"),
		JobCompleted:  counter(meter, "atomizer.job.completed", "Jobs completed successfully"),
		JobRetried:    counter(meter, "atomizer.job.retried", "Failed attempts scheduled for retry"),
		JobFailed:     counter(meter, "atomizer.job.failed", "Jobs that exhausted their attempts"),
		JobCancelled:  counter(meter, "atomizer.job.cancelled", "Attempts interrupted by shutdown"),
		ScheduleFired: counter(meter, "atomizer.schedule.fired", "Jobs spawned by recurring schedules"),
	}
}

// counter creates an Int64Counter. The OTel API returns a noop instrument
// alongside any error.
func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
	return c
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func jobAttrs(j *job.Job) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("job_type", j.Type),
		attribute.String("queue", j.Queue.String()),
	)
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.JobEnqueued.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, j *job.Job) error {
	m.JobCancelled.Add(context.WithoutCancel(ctx), 1, jobAttrs(j))
	return nil
}

// ── Schedule lifecycle hooks ────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(ctx context.Context, s *cron.Schedule, j *job.Job) error {
	m.ScheduleFired.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_key", s.JobKey.String()),
		attribute.String("queue", j.Queue.String()),
	))
	return nil
}
