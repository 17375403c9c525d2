package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/backoff"
	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/ext"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/middleware"
	"github.com/mnbuhl/atomizer/queue"
	"github.com/mnbuhl/atomizer/store/memory"
	"github.com/mnbuhl/atomizer/worker"
)

type emailPayload struct {
	To string `json:"to"`
}

var (
	t0        = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	emailType = job.TypeOf[emailPayload]()
)

// releaseCountingStore records ReleaseLeased calls.
type releaseCountingStore struct {
	*memory.Store
	releases atomic.Int32
	released atomic.Int32
}

func (s *releaseCountingStore) ReleaseLeased(ctx context.Context, token lease.Token) (int, error) {
	s.releases.Add(1)
	n, err := s.Store.ReleaseLeased(ctx, token)
	s.released.Add(int32(n))
	return n, err
}

// lifecycleRecorder records the hooks the processor emits.
type lifecycleRecorder struct {
	mu        sync.Mutex
	started   int
	completed int
	retrying  []int
	failed    int
	cancelled int
}

func (r *lifecycleRecorder) Name() string { return "recorder" }

func (r *lifecycleRecorder) OnJobStarted(context.Context, *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return nil
}

func (r *lifecycleRecorder) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	return nil
}

func (r *lifecycleRecorder) OnJobRetrying(_ context.Context, _ *job.Job, attempt int, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retrying = append(r.retrying, attempt)
	return nil
}

func (r *lifecycleRecorder) OnJobFailed(context.Context, *job.Job, error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
	return nil
}

func (r *lifecycleRecorder) OnJobCancelled(context.Context, *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled++
	return nil
}

func newDeps(store job.Store, registry *job.Registry, c clock.Clock, rec *lifecycleRecorder) worker.Deps {
	exts := ext.NewRegistry(nil)
	if rec != nil {
		exts.Register(rec)
	}
	return worker.Deps{
		Store:      store,
		Dispatcher: worker.NewDispatcher(registry, nil),
		Extensions: exts,
		Clock:      c,
		InstanceID: "rt-test",
	}
}

func insertEmail(t *testing.T, store job.Store, q queue.Key, maxAttempts int, now time.Time) *job.Job {
	t.Helper()
	j := job.New(q, emailType, `{"to":"ada@example.com"}`, now, maxAttempts, now)
	if _, err := store.InsertJob(context.Background(), j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	return j
}

func leaseOne(t *testing.T, store job.Store, now time.Time) *job.Job {
	t.Helper()
	tok, err := lease.NewToken("rt-test", queue.Default)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	leased, err := store.LeaseBatch(context.Background(), queue.Default, 1, now, time.Minute, tok)
	if err != nil {
		t.Fatalf("LeaseBatch: %v", err)
	}
	if len(leased) != 1 {
		t.Fatalf("leased %d jobs at %v, want 1", len(leased), now)
	}
	return leased[0]
}

// ──────────────────────────────────────────────────
// Dispatcher
// ──────────────────────────────────────────────────

func TestDispatch(t *testing.T) {
	t.Parallel()
	registry := job.NewRegistry()
	var got emailPayload
	var sawJob bool
	job.Handle(registry, emailType, func(ctx context.Context, p emailPayload) error {
		got = p
		_, sawJob = job.FromContext(ctx)
		return nil
	})
	d := worker.NewDispatcher(registry, nil)

	j := job.New(queue.Default, emailType, `{"to":"ada@example.com"}`, t0, 1, t0)
	if err := d.Dispatch(context.Background(), j); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.To != "ada@example.com" {
		t.Errorf("payload = %+v", got)
	}
	if !sawJob {
		t.Error("handler context does not carry the job")
	}

	tests := []struct {
		name    string
		jobType string
		want    error
	}{
		{"missing type", "", atomizer.ErrMissingPayloadType},
		{"unknown type", "unknown.Payload", atomizer.ErrHandlerNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := job.New(queue.Default, tt.jobType, `{}`, t0, 1, t0)
			if err := d.Dispatch(context.Background(), j); !errors.Is(err, tt.want) {
				t.Fatalf("Dispatch = %v, want %v", err, tt.want)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Processor
// ──────────────────────────────────────────────────

func TestProcessor_FailsAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	store := memory.New()
	fake := clock.NewFake(t0)
	rec := &lifecycleRecorder{}

	registry := job.NewRegistry()
	job.Handle(registry, emailType, func(context.Context, emailPayload) error {
		return errors.New("smtp unreachable")
	})
	deps := newDeps(store, registry, fake, rec)
	retry := backoff.MustFixed(5, time.Second, false)

	j := insertEmail(t, store, queue.Default, 3, t0)
	for range 3 {
		leased := leaseOne(t, store, fake.Now())
		worker.NewProcessor(deps, retry, nil).Process(context.Background(), leased)
		fake.Advance(2 * time.Second)
	}

	got, err := store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if len(got.Errors) != 3 {
		t.Errorf("errors = %d, want 3", len(got.Errors))
	}
	if got.FailedAt == nil {
		t.Error("FailedAt not set")
	}
	if got.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", got.Attempts)
	}
	for i, e := range got.Errors {
		if e.Attempt != i+1 {
			t.Errorf("error[%d].Attempt = %d, want %d", i, e.Attempt, i+1)
		}
		if e.RuntimeIdentity != "rt-test" {
			t.Errorf("error[%d].RuntimeIdentity = %q", i, e.RuntimeIdentity)
		}
	}

	if rec.started != 3 || rec.failed != 1 || len(rec.retrying) != 2 {
		t.Errorf("hooks: started=%d retrying=%v failed=%d", rec.started, rec.retrying, rec.failed)
	}
}

func TestProcessor_SucceedsOnRetry(t *testing.T) {
	t.Parallel()
	store := memory.New()
	fake := clock.NewFake(t0)
	rec := &lifecycleRecorder{}

	var calls int
	registry := job.NewRegistry()
	job.Handle(registry, emailType, func(context.Context, emailPayload) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	deps := newDeps(store, registry, fake, rec)
	retry := backoff.MustFixed(5, time.Second, false)

	j := insertEmail(t, store, queue.Default, 2, t0)

	first := leaseOne(t, store, fake.Now())
	worker.NewProcessor(deps, retry, nil).Process(context.Background(), first)

	pending, _ := store.GetJob(context.Background(), j.ID)
	if pending.Status != job.StatusPending {
		t.Fatalf("status after first failure = %s, want pending", pending.Status)
	}
	if pending.VisibleAt == nil || !pending.VisibleAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("visible at = %v, want %v", pending.VisibleAt, t0.Add(time.Second))
	}

	fake.Advance(2 * time.Second)
	second := leaseOne(t, store, fake.Now())
	worker.NewProcessor(deps, retry, nil).Process(context.Background(), second)

	got, _ := store.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}
	if len(got.Errors) != 1 {
		t.Errorf("errors = %d, want 1", len(got.Errors))
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if !got.LeaseToken.IsZero() || got.VisibleAt != nil {
		t.Error("completed job still carries a lease")
	}
	if rec.completed != 1 {
		t.Errorf("completed hooks = %d, want 1", rec.completed)
	}
}

func TestProcessor_UsesRetryStrategyWhenJobHasNoMaxAttempts(t *testing.T) {
	t.Parallel()
	store := memory.New()
	fake := clock.NewFake(t0)

	registry := job.NewRegistry()
	job.Handle(registry, emailType, func(context.Context, emailPayload) error {
		return errors.New("boom")
	})
	deps := newDeps(store, registry, fake, nil)

	j := insertEmail(t, store, queue.Default, 0, t0)
	leased := leaseOne(t, store, fake.Now())
	worker.NewProcessor(deps, backoff.MustFixed(1, time.Second, false), nil).Process(context.Background(), leased)

	got, _ := store.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed with a single-attempt strategy", got.Status)
	}
}

func TestProcessor_CancellationLeavesJobUntouched(t *testing.T) {
	t.Parallel()
	store := memory.New()
	fake := clock.NewFake(t0)
	rec := &lifecycleRecorder{}

	registry := job.NewRegistry()
	job.Handle(registry, emailType, func(ctx context.Context, _ emailPayload) error {
		<-ctx.Done()
		return ctx.Err()
	})
	deps := newDeps(store, registry, fake, rec)

	j := insertEmail(t, store, queue.Default, 3, t0)
	leased := leaseOne(t, store, fake.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker.NewProcessor(deps, backoff.Default(), nil).Process(ctx, leased)

	got, _ := store.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusProcessing {
		t.Errorf("status = %s, want processing", got.Status)
	}
	if len(got.Errors) != 0 {
		t.Errorf("errors = %d, want 0", len(got.Errors))
	}
	if rec.cancelled != 1 || rec.failed != 0 || len(rec.retrying) != 0 {
		t.Errorf("hooks: cancelled=%d retrying=%v failed=%d", rec.cancelled, rec.retrying, rec.failed)
	}
}

func TestProcessor_RecordsPanics(t *testing.T) {
	t.Parallel()
	store := memory.New()
	fake := clock.NewFake(t0)

	registry := job.NewRegistry()
	job.Handle(registry, emailType, func(context.Context, emailPayload) error {
		panic("template missing")
	})
	deps := newDeps(store, registry, fake, nil)
	deps.Dispatcher = worker.NewDispatcher(registry, nil, middleware.Recover(slog.Default()))

	j := insertEmail(t, store, queue.Default, 1, t0)
	leased := leaseOne(t, store, fake.Now())
	worker.NewProcessor(deps, backoff.Default(), nil).Process(context.Background(), leased)

	got, _ := store.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if len(got.Errors) != 1 || got.Errors[0].StackTrace == "" {
		t.Errorf("errors = %+v, want one record with a stack trace", got.Errors)
	}
}

// ──────────────────────────────────────────────────
// Pump
// ──────────────────────────────────────────────────

func fastQueue(t *testing.T, name string, dop int) queue.Options {
	t.Helper()
	opts, err := queue.NewOptions(name,
		queue.WithDegreeOfParallelism(dop),
		queue.WithTickInterval(5*time.Millisecond),
		queue.WithStorageCheckInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("queue.NewOptions: %v", err)
	}
	return opts
}

func TestPump_ProcessesJobs(t *testing.T) {
	t.Parallel()
	store := memory.New()

	var done atomic.Int32
	registry := job.NewRegistry()
	job.Handle(registry, emailType, func(context.Context, emailPayload) error {
		done.Add(1)
		return nil
	})

	const total = 20
	for range total {
		insertEmail(t, store, queue.Default, 1, time.Now())
	}

	opts := fastQueue(t, "default", 4)
	tok, _ := lease.NewToken("rt-test", opts.Key)
	pump := worker.NewPump(opts, tok, newDeps(store, registry, nil, nil))
	if err := pump.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := pump.Start(context.Background()); !errors.Is(err, atomizer.ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	waitFor(t, 3*time.Second, func() bool { return done.Load() == total })

	if err := pump.Stop(context.Background(), time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	completed, _ := store.ListJobs(context.Background(), job.ListOpts{Status: job.StatusCompleted})
	if len(completed) != total {
		t.Errorf("completed = %d, want %d", len(completed), total)
	}
}

func TestPump_StopCancelsAfterGracePeriod(t *testing.T) {
	t.Parallel()
	store := &releaseCountingStore{Store: memory.New()}
	rec := &lifecycleRecorder{}

	started := make(chan struct{})
	registry := job.NewRegistry()
	job.Handle(registry, emailType, func(ctx context.Context, _ emailPayload) error {
		close(started)
		select {
		case <-time.After(3 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	j := insertEmail(t, store, queue.Default, 3, time.Now())

	opts := fastQueue(t, "default", 1)
	tok, _ := lease.NewToken("rt-test", opts.Key)
	pump := worker.NewPump(opts, tok, newDeps(store, registry, nil, rec))
	if err := pump.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	begin := time.Now()
	if err := pump.Stop(context.Background(), time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	elapsed := time.Since(begin)
	if elapsed < 900*time.Millisecond || elapsed > 2*time.Second {
		t.Errorf("Stop took %v, want about 1s", elapsed)
	}

	if store.releases.Load() != 1 {
		t.Errorf("ReleaseLeased calls = %d, want 1", store.releases.Load())
	}
	if store.released.Load() != 1 {
		t.Errorf("released jobs = %d, want 1", store.released.Load())
	}
	if rec.cancelled != 1 {
		t.Errorf("cancelled hooks = %d, want 1", rec.cancelled)
	}

	got, _ := store.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusPending || !got.LeaseToken.IsZero() {
		t.Errorf("job after stop: status=%s token=%s, want pending without lease", got.Status, got.LeaseToken)
	}
}

func TestPump_StopWithoutStart(t *testing.T) {
	t.Parallel()
	opts := fastQueue(t, "default", 1)
	tok, _ := lease.NewToken("rt-test", opts.Key)
	pump := worker.NewPump(opts, tok, newDeps(memory.New(), job.NewRegistry(), nil, nil))
	if err := pump.Stop(context.Background(), time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Coordinator
// ──────────────────────────────────────────────────

func TestCoordinator_RunsEveryQueue(t *testing.T) {
	t.Parallel()
	store := memory.New()

	var mu sync.Mutex
	seen := make(map[queue.Key]int)
	registry := job.NewRegistry()
	job.Handle(registry, emailType, func(ctx context.Context, _ emailPayload) error {
		j, _ := job.FromContext(ctx)
		mu.Lock()
		seen[j.Queue]++
		mu.Unlock()
		return nil
	})

	emails := queue.MustKey("emails")
	insertEmail(t, store, queue.Default, 1, time.Now())
	insertEmail(t, store, emails, 1, time.Now())

	coord := worker.NewCoordinator([]queue.Options{
		fastQueue(t, "default", 2),
		fastQueue(t, "emails", 1),
	}, newDeps(store, registry, nil, nil))

	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := coord.Start(context.Background()); !errors.Is(err, atomizer.ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if pumps := coord.Pumps(); len(pumps) != 2 || pumps[0].Token() == pumps[1].Token() {
		t.Fatalf("pumps = %d, want 2 with distinct tokens", len(pumps))
	}

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[queue.Default] == 1 && seen[emails] == 1
	})

	if err := coord.Stop(context.Background(), time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestCoordinator_StopReportsEveryPump(t *testing.T) {
	t.Parallel()
	store := memory.New()

	var mu sync.Mutex
	running := 0
	registry := job.NewRegistry()
	job.Handle(registry, emailType, func(ctx context.Context, _ emailPayload) error {
		mu.Lock()
		running++
		mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	})

	insertEmail(t, store, queue.Default, 1, time.Now())
	insertEmail(t, store, queue.MustKey("emails"), 1, time.Now())

	coord := worker.NewCoordinator([]queue.Options{
		fastQueue(t, "default", 1),
		fastQueue(t, "emails", 1),
	}, newDeps(store, registry, nil, nil))
	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == 2
	})

	stopCtx, cancel := context.WithCancel(context.Background())
	cancel()
	err := coord.Stop(stopCtx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Stop = %v, want context.Canceled", err)
	}
	for _, name := range []string{"default", "emails"} {
		if !strings.Contains(err.Error(), "queue "+name) {
			t.Errorf("Stop error %q does not mention queue %s", err, name)
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
