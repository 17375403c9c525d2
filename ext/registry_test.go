package ext_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/ext"
	"github.com/mnbuhl/atomizer/job"
)

// journal records "<ext>:<hook>" for every call it sees.
type journal struct{ lines []string }

func (l *journal) note(ext, hook string) error {
	l.lines = append(l.lines, ext+":"+hook)
	return nil
}

type everyHook struct {
	name string
	log  *journal
}

func (e everyHook) Name() string { return e.name }

func (e everyHook) OnJobEnqueued(context.Context, *job.Job) error { return e.log.note(e.name, "enqueued") }
func (e everyHook) OnJobStarted(context.Context, *job.Job) error  { return e.log.note(e.name, "started") }
func (e everyHook) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	return e.log.note(e.name, "completed")
}
func (e everyHook) OnJobRetrying(context.Context, *job.Job, int, time.Time) error {
	return e.log.note(e.name, "retrying")
}
func (e everyHook) OnJobFailed(context.Context, *job.Job, error) error { return e.log.note(e.name, "failed") }
func (e everyHook) OnJobCancelled(context.Context, *job.Job) error     { return e.log.note(e.name, "cancelled") }
func (e everyHook) OnScheduleFired(context.Context, *cron.Schedule, *job.Job) error {
	return e.log.note(e.name, "fired")
}
func (e everyHook) OnShutdown(context.Context) error { return e.log.note(e.name, "shutdown") }

// failuresOnly subscribes to a single hook.
type failuresOnly struct{ log *journal }

func (failuresOnly) Name() string { return "failures" }

func (f failuresOnly) OnJobFailed(context.Context, *job.Job, error) error {
	return f.log.note("failures", "failed")
}

type broken struct{ panics bool }

func (broken) Name() string { return "broken" }

func (b broken) OnJobEnqueued(context.Context, *job.Job) error {
	if b.panics {
		panic("hook exploded")
	}
	return errors.New("hook refused")
}

func emitAll(r *ext.Registry) {
	ctx := context.Background()
	j := &job.Job{Type: "t"}
	r.EmitJobEnqueued(ctx, j)
	r.EmitJobStarted(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Millisecond)
	r.EmitJobRetrying(ctx, j, 1, time.Now())
	r.EmitJobFailed(ctx, j, errors.New("x"))
	r.EmitJobCancelled(ctx, j)
	r.EmitScheduleFired(ctx, &cron.Schedule{}, j)
	r.EmitShutdown(ctx)
}

func TestRegistry_Delivery(t *testing.T) {
	t.Parallel()

	log := &journal{}
	r := ext.NewRegistry(nil)
	r.Register(everyHook{name: "a", log: log})
	r.Register(failuresOnly{log: log})
	r.Register(everyHook{name: "b", log: log})

	emitAll(r)

	want := []string{
		"a:enqueued", "b:enqueued",
		"a:started", "b:started",
		"a:completed", "b:completed",
		"a:retrying", "b:retrying",
		"a:failed", "failures:failed", "b:failed",
		"a:cancelled", "b:cancelled",
		"a:fired", "b:fired",
		"a:shutdown", "b:shutdown",
	}
	if !slices.Equal(log.lines, want) {
		t.Errorf("delivery =\n%v\nwant\n%v", log.lines, want)
	}

	names := make([]string, 0, 3)
	for _, e := range r.Extensions() {
		names = append(names, e.Name())
	}
	if !slices.Equal(names, []string{"a", "failures", "b"}) {
		t.Errorf("Extensions() = %v", names)
	}
}

func TestRegistry_FaultyHooksAreIsolated(t *testing.T) {
	t.Parallel()

	for _, panics := range []bool{false, true} {
		var buf bytes.Buffer
		log := &journal{}
		r := ext.NewRegistry(slog.Default())
		r.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
		r.Register(broken{panics: panics})
		r.Register(everyHook{name: "ok", log: log})

		r.EmitJobEnqueued(context.Background(), &job.Job{})

		if !slices.Equal(log.lines, []string{"ok:enqueued"}) {
			t.Errorf("panics=%v: later extension not notified: %v", panics, log.lines)
		}
		out := buf.String()
		if !strings.Contains(out, "extension=broken") || !strings.Contains(out, "hook=OnJobEnqueued") {
			t.Errorf("panics=%v: hook failure not logged: %q", panics, out)
		}
	}
}

func TestRegistry_Empty(t *testing.T) {
	t.Parallel()

	r := ext.NewRegistry(nil)
	r.SetLogger(nil)
	emitAll(r)
	if len(r.Extensions()) != 0 {
		t.Fatal("expected no extensions")
	}
}
