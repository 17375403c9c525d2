package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/dlq"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/queue"
	"github.com/mnbuhl/atomizer/store/memory"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func insertFailed(t *testing.T, s *memory.Store, q queue.Key, payload string) *job.Job {
	t.Helper()
	j := job.New(q, "email", payload, t0, 3, t0)
	j.Attempts = 3
	j.MarkFailed(job.NewError(j, errors.New("smtp down"), "rt_test", t0), t0)
	if _, err := s.InsertJob(context.Background(), j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	return j
}

func TestReplay_EnqueuesCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	fake := clock.NewFake(t0.Add(time.Hour))
	svc := dlq.NewService(s, dlq.WithClock(fake))

	failed := insertFailed(t, s, queue.Default, `{"to":"a@b.c"}`)

	replayed, err := svc.Replay(ctx, failed.ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed.ID == failed.ID {
		t.Fatal("replay reused the failed job's ID")
	}
	if replayed.Status != job.StatusPending || replayed.Attempts != 0 {
		t.Errorf("replayed status=%s attempts=%d, want pending/0", replayed.Status, replayed.Attempts)
	}
	if replayed.Payload != failed.Payload || replayed.Type != failed.Type || replayed.MaxAttempts != 3 {
		t.Errorf("replayed %+v does not copy the failed job", replayed)
	}
	if !replayed.ScheduledAt.Equal(fake.Now()) {
		t.Errorf("ScheduledAt = %v, want %v", replayed.ScheduledAt, fake.Now())
	}

	orig, err := s.GetJob(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if orig.Status != job.StatusFailed || len(orig.Errors) != 1 {
		t.Errorf("original status=%s errors=%d, want failed with history", orig.Status, len(orig.Errors))
	}
}

func TestReplay_RejectsNonFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	svc := dlq.NewService(s)

	pending := job.New(queue.Default, "email", `{}`, t0, 3, t0)
	if _, err := s.InsertJob(ctx, pending); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	if _, err := svc.Replay(ctx, pending.ID); !errors.Is(err, atomizer.ErrJobNotFailed) {
		t.Errorf("error = %v, want ErrJobNotFailed", err)
	}
	if _, err := svc.Replay(ctx, job.New(queue.Default, "x", "", t0, 1, t0).ID); !errors.Is(err, atomizer.ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}

func TestReplayAll_FiltersByQueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	svc := dlq.NewService(s)

	critical := queue.MustKey("critical")
	for range 3 {
		insertFailed(t, s, queue.Default, `{}`)
	}
	insertFailed(t, s, critical, `{}`)

	n, err := svc.ReplayAll(ctx, queue.Default)
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	if n != 3 {
		t.Errorf("replayed %d, want 3", n)
	}

	pending, err := s.ListJobs(ctx, job.ListOpts{Status: job.StatusPending})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	for _, j := range pending {
		if j.Queue != queue.Default {
			t.Errorf("replayed job on queue %s", j.Queue)
		}
	}

	failed, err := svc.List(ctx, queue.Key{}, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(failed) != 4 {
		t.Errorf("failed = %d, want 4", len(failed))
	}
}
