package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnbuhl/atomizer/middleware"
)

func recordSpan(t *testing.T, ctx context.Context, h middleware.Handler) (sdktrace.ReadOnlySpan, error) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	err := middleware.TracingWithTracer(tp.Tracer("test"))(ctx, attemptJob(), h)
	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	return spans[0], err
}

func TestTracing_Span(t *testing.T) {
	t.Parallel()

	var inner trace.SpanContext
	span, err := recordSpan(t, context.Background(), func(ctx context.Context) error {
		inner = trace.SpanContextFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if span.Name() != "process default" || span.SpanKind() != trace.SpanKindConsumer {
		t.Errorf("span = %q kind %v", span.Name(), span.SpanKind())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v", span.Status())
	}
	if inner.SpanID() != span.SpanContext().SpanID() {
		t.Error("handler context does not carry the attempt span")
	}

	got := attribute.NewSet(span.Attributes()...)
	want := map[attribute.Key]attribute.Value{
		"messaging.system":           attribute.StringValue("atomizer"),
		"messaging.destination.name": attribute.StringValue("default"),
		"atomizer.job.type":          attribute.StringValue("send-email"),
		"atomizer.job.attempt":       attribute.IntValue(2),
		"atomizer.schedule":          attribute.StringValue("nightly-digest"),
	}
	for k, v := range want {
		if have, found := got.Value(k); !found || have != v {
			t.Errorf("%s = %v (present %v), want %v", k, have.Emit(), found, v.Emit())
		}
	}
	if _, found := got.Value("messaging.message.id"); !found {
		t.Error("missing messaging.message.id")
	}
}

func TestTracing_Outcomes(t *testing.T) {
	t.Parallel()

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		span, err := recordSpan(t, context.Background(), func(context.Context) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v", err)
		}
		if span.Status().Code != codes.Error || span.Status().Description != "boom" {
			t.Errorf("status = %+v", span.Status())
		}
		if !hasEvent(span, "exception") {
			t.Error("error not recorded")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		span, _ := recordSpan(t, ctx, func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		})
		if span.Status().Code != codes.Unset || !hasEvent(span, "cancelled") {
			t.Errorf("status = %+v events = %v", span.Status(), span.Events())
		}
	})
}

func hasEvent(span sdktrace.ReadOnlySpan, name string) bool {
	for _, ev := range span.Events() {
		if ev.Name == name {
			return true
		}
	}
	return false
}

func TestTracing_GlobalNoop(t *testing.T) {
	t.Parallel()

	ran := false
	err := middleware.Tracing()(context.Background(), attemptJob(), func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("err = %v ran = %v", err, ran)
	}
}
