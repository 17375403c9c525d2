package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnbuhl/atomizer/job"
)

const scope = "github.com/mnbuhl/atomizer/middleware"

// Tracing starts a consumer span per attempt on the global tracer
// provider.
func Tracing() Middleware { return TracingWithTracer(otel.Tracer(scope)) }

// TracingWithTracer is Tracing with an explicit tracer. The span is named
// "process <queue>" and carries messaging.* plus atomizer.* attributes.
// A cancelled attempt leaves the status unset and adds a "cancelled"
// event.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "process "+j.Queue.String(),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(spanAttrs(j)...),
		)
		defer span.End()

		err := next(ctx)
		switch classify(ctx, err) {
		case outcomeOK:
			span.SetStatus(codes.Ok, "")
		case outcomeCancelled:
			span.AddEvent("cancelled")
		case outcomeError:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}

func spanAttrs(j *job.Job) []attribute.KeyValue {
	kv := make([]attribute.KeyValue, 0, 7)
	kv = append(kv,
		attribute.String("messaging.system", "atomizer"),
		attribute.String("messaging.operation.type", "process"),
		attribute.String("messaging.destination.name", j.Queue.String()),
		attribute.String("messaging.message.id", j.ID.String()),
		attribute.String("atomizer.job.type", j.Type),
		attribute.Int("atomizer.job.attempt", j.Attempts),
	)
	if !j.ScheduleJobKey.IsZero() {
		kv = append(kv, attribute.String("atomizer.schedule", j.ScheduleJobKey.String()))
	}
	return kv
}
