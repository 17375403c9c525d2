package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mnbuhl/atomizer/job"
)

// Metrics records attempt instruments on the global meter provider.
func Metrics() Middleware { return MetricsWithMeter(otel.Meter(scope)) }

// MetricsWithMeter records two instruments per attempt:
//
//	atomizer.attempt.duration  histogram, seconds
//	atomizer.attempts          counter
//
// labelled with job_type, queue and outcome (ok, error or cancelled).
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instrument errors come with a usable noop instrument.
	took, _ := meter.Float64Histogram("atomizer.attempt.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of a job attempt"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300),
	)
	count, _ := meter.Int64Counter("atomizer.attempts",
		metric.WithUnit("{attempt}"),
		metric.WithDescription("Job attempts by outcome"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		began := time.Now()
		err := next(ctx)

		set := metric.WithAttributeSet(attribute.NewSet(
			attribute.String("job_type", j.Type),
			attribute.String("queue", j.Queue.String()),
			attribute.String("outcome", string(classify(ctx, err))),
		))
		rec := context.WithoutCancel(ctx)
		took.Record(rec, time.Since(began).Seconds(), set)
		count.Add(rec, 1, set)
		return err
	}
}
