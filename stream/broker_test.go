package stream

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/queue"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testJob(q queue.Key) *job.Job {
	return job.New(q, "email", `{}`, t0, 3, t0)
}

func receive(t *testing.T, sub *Subscriber) *Event {
	t.Helper()
	select {
	case evt := <-sub.C():
		return evt
	case <-time.After(time.Second):
		t.Fatalf("subscriber %s timed out", sub.ID())
		return nil
	}
}

func expectNone(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case evt := <-sub.C():
		t.Fatalf("subscriber %s got unexpected %s", sub.ID(), evt.Type)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroker_JobEventReachesTopics(t *testing.T) {
	t.Parallel()
	b := NewBroker(testLogger(), WithClock(clock.NewFake(t0)))
	j := testJob(queue.Default)

	firehose := b.Subscribe("firehose", TopicFirehose)
	jobs := b.Subscribe("jobs", TopicJobs)
	single := b.Subscribe("single", JobTopic(j.ID.String()))
	byQueue := b.Subscribe("queue", QueueTopic("default"))
	schedules := b.Subscribe("schedules", TopicSchedules)

	if err := b.OnJobCompleted(context.Background(), j, 1500*time.Millisecond); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}

	for _, sub := range []*Subscriber{firehose, jobs, single, byQueue} {
		evt := receive(t, sub)
		if evt.Type != EventJobCompleted {
			t.Errorf("%s got %s, want %s", sub.ID(), evt.Type, EventJobCompleted)
		}
		if !evt.Timestamp.Equal(t0) {
			t.Errorf("timestamp = %v, want %v", evt.Timestamp, t0)
		}
	}
	expectNone(t, schedules)
}

func TestBroker_EventData(t *testing.T) {
	t.Parallel()
	b := NewBroker(testLogger())
	sub := b.Subscribe("sub", TopicJobs)

	j := testJob(queue.Default)
	j.Attempts = 3
	if err := b.OnJobFailed(context.Background(), j, errors.New("mailbox full")); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}

	evt := receive(t, sub)
	var data JobEventData
	if err := sonic.Unmarshal(evt.Data, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data.JobID != j.ID.String() || data.Error != "mailbox full" || data.Attempt != 3 {
		t.Errorf("data = %+v", data)
	}
}

func TestBroker_ScheduleFired(t *testing.T) {
	t.Parallel()
	b := NewBroker(testLogger())

	key := job.MustKey("nightly")
	sched, err := cron.New(key, "report", `{}`, "@every 1m", t0)
	if err != nil {
		t.Fatalf("cron.New: %v", err)
	}
	sub := b.Subscribe("sub", ScheduleTopic("nightly"))

	if err := b.OnScheduleFired(context.Background(), sched, testJob(queue.Default)); err != nil {
		t.Fatalf("OnScheduleFired: %v", err)
	}
	if evt := receive(t, sub); evt.Type != EventScheduleFired {
		t.Errorf("got %s, want %s", evt.Type, EventScheduleFired)
	}
}

func TestBroker_CreditsAndBuffer(t *testing.T) {
	t.Parallel()
	b := NewBroker(testLogger(), WithDefaultCredits(1), WithBufferSize(4))
	sub := b.Subscribe("sub", TopicFirehose)
	ctx := context.Background()

	_ = b.OnJobEnqueued(ctx, testJob(queue.Default))
	_ = b.OnJobEnqueued(ctx, testJob(queue.Default))

	receive(t, sub)
	expectNone(t, sub)
	if stats := b.Stats(); stats.TotalPublished != 1 || stats.TotalDropped != 1 {
		t.Errorf("stats = %+v, want 1 published and 1 dropped", stats)
	}

	sub.AddCredits(1)
	_ = b.OnJobEnqueued(ctx, testJob(queue.Default))
	receive(t, sub)
}

func TestBroker_Filter(t *testing.T) {
	t.Parallel()
	b := NewBroker(testLogger())
	sub := b.Subscribe("sub", TopicJobs)
	sub.SetFilter(func(evt *Event) bool { return evt.Type == EventJobFailed })
	ctx := context.Background()

	_ = b.OnJobStarted(ctx, testJob(queue.Default))
	_ = b.OnJobFailed(ctx, testJob(queue.Default), errors.New("boom"))

	if evt := receive(t, sub); evt.Type != EventJobFailed {
		t.Errorf("got %s, want %s", evt.Type, EventJobFailed)
	}
	expectNone(t, sub)
	if stats := b.Stats(); stats.TotalFiltered != 1 || stats.TotalDropped != 0 {
		t.Errorf("stats = %+v, want 1 filtered and 0 dropped", stats)
	}
}

func TestBroker_Unsubscribe(t *testing.T) {
	t.Parallel()
	b := NewBroker(testLogger())
	sub := b.Subscribe("sub", TopicJobs, TopicSchedules)
	ctx := context.Background()

	b.Unsubscribe("sub", TopicJobs)
	_ = b.OnJobEnqueued(ctx, testJob(queue.Default))
	expectNone(t, sub)
	if got := b.Stats().TopicCount; got != 1 {
		t.Errorf("TopicCount = %d, want 1", got)
	}

	b.Unsubscribe("missing", TopicSchedules)
	b.Unsubscribe("sub")
	if got := b.Stats().TopicCount; got != 1 {
		t.Errorf("TopicCount after no-op unsubscribes = %d, want 1", got)
	}
}

func TestBroker_RemoveAndShutdown(t *testing.T) {
	t.Parallel()
	b := NewBroker(testLogger())
	removed := b.Subscribe("removed", TopicFirehose)
	kept := b.Subscribe("kept", TopicFirehose)

	b.RemoveSubscriber("removed")
	if _, ok := <-removed.C(); ok {
		t.Fatal("removed subscriber channel should be closed")
	}

	if err := b.OnShutdown(context.Background()); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}
	if _, ok := <-kept.C(); ok {
		t.Fatal("shutdown should close every subscriber")
	}
	if stats := b.Stats(); stats.SubscriberCount != 0 || stats.TopicCount != 0 {
		t.Errorf("stats after shutdown = %+v", stats)
	}

	_ = b.OnJobEnqueued(context.Background(), testJob(queue.Default))
}

func TestBroker_ResubscribeReplaces(t *testing.T) {
	t.Parallel()
	b := NewBroker(testLogger())
	first := b.Subscribe("sub", TopicJobs)
	second := b.Subscribe("sub", TopicSchedules)

	if _, ok := <-first.C(); ok {
		t.Fatal("replaced subscriber should be closed")
	}
	_ = b.OnJobEnqueued(context.Background(), testJob(queue.Default))
	expectNone(t, second)
}

func TestValidateTopic(t *testing.T) {
	t.Parallel()
	tests := []struct {
		topic string
		ok    bool
	}{
		{TopicFirehose, true},
		{TopicJobs, true},
		{TopicSchedules, true},
		{JobTopic("job_123"), true},
		{QueueTopic("default"), true},
		{ScheduleTopic("nightly"), true},
		{"job:", false},
		{"workflow:abc", false},
		{"nonsense", false},
	}
	for _, tt := range tests {
		if err := ValidateTopic(tt.topic); (err == nil) != tt.ok {
			t.Errorf("ValidateTopic(%q) = %v, want ok=%v", tt.topic, err, tt.ok)
		}
	}
}
