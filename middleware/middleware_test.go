package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/middleware"
	"github.com/mnbuhl/atomizer/queue"
)

func attemptJob() *job.Job {
	return &job.Job{
		ID:             id.NewJobID(),
		Type:           "send-email",
		Queue:          queue.Default,
		Attempts:       2,
		MaxAttempts:    5,
		ScheduleJobKey: job.MustKey("nightly-digest"),
	}
}

func ok(context.Context) error { return nil }

// tag returns a middleware that appends name to log before and after
// next.
func tag(log *[]string, name string) middleware.Middleware {
	return func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		*log = append(*log, name+">")
		err := next(ctx)
		*log = append(*log, "<"+name)
		return err
	}
}

func TestChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mws  []string
		want []string
	}{
		{"empty", nil, []string{"h"}},
		{"single", []string{"a"}, []string{"a>", "h", "<a"}},
		{"first is outermost", []string{"a", "b", "c"}, []string{"a>", "b>", "c>", "h", "<c", "<b", "<a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var log []string
			mws := make([]middleware.Middleware, 0, len(tt.mws))
			for _, n := range tt.mws {
				mws = append(mws, tag(&log, n))
			}
			err := middleware.Chain(mws...)(context.Background(), attemptJob(), func(context.Context) error {
				log = append(log, "h")
				return nil
			})
			if err != nil {
				t.Fatalf("chain: %v", err)
			}
			if !slices.Equal(log, tt.want) {
				t.Errorf("order = %v, want %v", log, tt.want)
			}
		})
	}
}

func TestChain_ReusableAcrossJobs(t *testing.T) {
	t.Parallel()

	var seen []string
	record := func(ctx context.Context, j *job.Job, next middleware.Handler) error {
		seen = append(seen, j.Type)
		return next(ctx)
	}
	chain := middleware.Chain(record, record)
	for _, typ := range []string{"a", "b"} {
		j := attemptJob()
		j.Type = typ
		_ = chain(context.Background(), j, ok)
	}
	if !slices.Equal(seen, []string{"a", "a", "b", "b"}) {
		t.Errorf("seen = %v", seen)
	}
}

func TestChain_ShortCircuit(t *testing.T) {
	t.Parallel()

	denied := errors.New("denied")
	gate := func(context.Context, *job.Job, middleware.Handler) error { return denied }
	called := false
	err := middleware.Chain(gate)(context.Background(), attemptJob(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, denied) || called {
		t.Fatalf("err = %v, handler called = %v", err, called)
	}
}

func TestScoping(t *testing.T) {
	t.Parallel()

	email := queue.MustKey("email")
	tests := []struct {
		name  string
		wrap  func(middleware.Middleware) middleware.Middleware
		queue queue.Key
		typ   string
		hit   bool
	}{
		{"queue match", func(m middleware.Middleware) middleware.Middleware { return middleware.OnQueues(m, email) }, email, "x", true},
		{"queue miss", func(m middleware.Middleware) middleware.Middleware { return middleware.OnQueues(m, email) }, queue.Default, "x", false},
		{"type match", func(m middleware.Middleware) middleware.Middleware { return middleware.OnTypes(m, "a", "b") }, queue.Default, "b", true},
		{"type miss", func(m middleware.Middleware) middleware.Middleware { return middleware.OnTypes(m, "a") }, queue.Default, "c", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hit := false
			m := tt.wrap(func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
				hit = true
				return next(ctx)
			})
			j := attemptJob()
			j.Queue, j.Type = tt.queue, tt.typ
			ran := false
			if err := m(context.Background(), j, func(context.Context) error { ran = true; return nil }); err != nil {
				t.Fatal(err)
			}
			if hit != tt.hit || !ran {
				t.Errorf("middleware hit = %v (want %v), handler ran = %v", hit, tt.hit, ran)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	m := middleware.Recover(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := m(context.Background(), attemptJob(), func(context.Context) error { panic("kaboom") })
	var pe *job.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T %v, want *job.PanicError", err, err)
	}
	if pe.Value != "kaboom" || !strings.Contains(pe.Stack, "goroutine") {
		t.Errorf("panic error = %+v", pe)
	}
	if !strings.Contains(buf.String(), `"msg":"handler panic"`) {
		t.Errorf("missing log record: %s", buf.String())
	}

	if err := m(context.Background(), attemptJob(), ok); err != nil {
		t.Errorf("clean attempt returned %v", err)
	}
}

func TestLogging(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{"success", nil, "ok"},
		{"failure", boom, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			err := middleware.Logging(logger)(context.Background(), attemptJob(), func(context.Context) error { return tt.err })
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}

			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("decode log: %v (%s)", err, buf.String())
			}
			if rec["outcome"] != tt.outcome || rec["attempt"] != "2/5" || rec["queue"] != "default" {
				t.Errorf("record = %v", rec)
			}
		})
	}
}

func TestLogging_SilentAboveDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := middleware.Logging(logger)(context.Background(), attemptJob(), ok); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	waitDone := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	t.Run("expires", func(t *testing.T) {
		t.Parallel()
		err := middleware.Timeout(20*time.Millisecond)(context.Background(), attemptJob(), waitDone)
		if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "attempt exceeded 20ms") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		err := middleware.Timeout(0)(context.Background(), attemptJob(), func(ctx context.Context) error {
			if _, set := ctx.Deadline(); set {
				return errors.New("deadline set")
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})

	t.Run("caller cancellation passes through", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := middleware.Timeout(time.Hour)(ctx, attemptJob(), waitDone)
		if err != context.Canceled { //nolint:errorlint // must be unwrapped
			t.Fatalf("err = %v, want bare context.Canceled", err)
		}
	})
}
