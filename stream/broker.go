package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/ext"
	"github.com/mnbuhl/atomizer/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*Broker)(nil)
	_ ext.JobEnqueued   = (*Broker)(nil)
	_ ext.JobStarted    = (*Broker)(nil)
	_ ext.JobCompleted  = (*Broker)(nil)
	_ ext.JobRetrying   = (*Broker)(nil)
	_ ext.JobFailed     = (*Broker)(nil)
	_ ext.JobCancelled  = (*Broker)(nil)
	_ ext.ScheduleFired = (*Broker)(nil)
	_ ext.Shutdown      = (*Broker)(nil)
)

const (
	// DefaultBufferSize is the per-subscriber event buffer.
	DefaultBufferSize = 256

	// DefaultCredits is the initial credit grant of a subscriber.
	DefaultCredits int64 = 1000
)

// Broker receives lifecycle hooks as an extension and fans them out to
// subscribers by topic.
type Broker struct {
	topics *router
	logger *slog.Logger
	clock  clock.Clock

	mu          sync.Mutex
	subscribers map[string]*Subscriber

	totalPublished atomic.Int64
	totalFiltered  atomic.Int64
	totalDropped   atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits of new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// WithClock sets the clock stamping events.
func WithClock(c clock.Clock) BrokerOption {
	return func(b *Broker) { b.clock = c }
}

// NewBroker creates a stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         newRouter(),
		logger:         logger,
		clock:          clock.System{},
		subscribers:    make(map[string]*Subscriber),
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Subscribe creates a subscriber on topics. An existing subscriber with
// the same ID is replaced and closed.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)

	b.mu.Lock()
	old := b.subscribers[subscriberID]
	b.subscribers[subscriberID] = sub
	b.mu.Unlock()

	if old != nil {
		b.topics.leave(old)
		old.Close()
	}
	b.topics.join(sub, topics...)
	return sub
}

// Unsubscribe removes a subscriber from topics. The subscriber stays
// open. Calling it with no topics is a no-op.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	if len(topics) == 0 {
		return
	}
	b.mu.Lock()
	sub := b.subscribers[subscriberID]
	b.mu.Unlock()
	if sub != nil {
		b.topics.leave(sub, topics...)
	}
}

// RemoveSubscriber removes a subscriber from every topic and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.mu.Lock()
	sub, ok := b.subscribers[subscriberID]
	delete(b.subscribers, subscriberID)
	b.mu.Unlock()

	if ok {
		b.topics.leave(sub)
		sub.Close()
	}
}

// BrokerStats contains broker counters. TotalFiltered counts events a
// subscriber filter rejected; TotalDropped counts events lost to a closed
// subscriber, exhausted credits or a full buffer.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalFiltered   int64 `json:"total_filtered"`
	TotalDropped    int64 `json:"total_dropped"`
}

// Stats returns broker counters.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	count := len(b.subscribers)
	b.mu.Unlock()

	return BrokerStats{
		TopicCount:      b.topics.size(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalFiltered:   b.totalFiltered.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

func (b *Broker) publish(evtType EventType, topic, queue string, data any) {
	raw, err := sonic.Marshal(data)
	if err != nil {
		b.logger.Error("stream: marshal event data",
			slog.String("type", string(evtType)),
			slog.String("error", err.Error()),
		)
		return
	}
	evt := &Event{
		Type:      evtType,
		Timestamp: b.clock.Now(),
		Topic:     topic,
		Queue:     queue,
		Data:      raw,
	}

	delivered, filtered, dropped := b.topics.fanout(topicsOf(evt), evt)
	b.totalPublished.Add(int64(delivered))
	b.totalFiltered.Add(int64(filtered))
	b.totalDropped.Add(int64(dropped))
}

func (b *Broker) publishJob(evtType EventType, j *job.Job, data JobEventData) {
	data.JobID = j.ID.String()
	data.Type = j.Type
	data.Queue = j.Queue.String()
	b.publish(evtType, JobTopic(data.JobID), data.Queue, data)
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

func (b *Broker) OnJobEnqueued(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobEnqueued, j, JobEventData{})
	return nil
}

func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobStarted, j, JobEventData{Attempt: j.Attempts})
	return nil
}

func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	b.publishJob(EventJobCompleted, j, JobEventData{Attempt: j.Attempts, ElapsedMs: elapsed.Milliseconds()})
	return nil
}

func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, attempt int, visibleAt time.Time) error {
	b.publishJob(EventJobRetrying, j, JobEventData{Attempt: attempt, VisibleAt: visibleAt.Format(time.RFC3339Nano)})
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	data := JobEventData{Attempt: j.Attempts}
	if jobErr != nil {
		data.Error = jobErr.Error()
	}
	b.publishJob(EventJobFailed, j, data)
	return nil
}

func (b *Broker) OnJobCancelled(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobCancelled, j, JobEventData{Attempt: j.Attempts})
	return nil
}

func (b *Broker) OnScheduleFired(_ context.Context, s *cron.Schedule, j *job.Job) error {
	b.publish(EventScheduleFired, ScheduleTopic(s.JobKey.String()), j.Queue.String(), ScheduleEventData{
		JobKey:     s.JobKey.String(),
		ScheduleID: s.ID.String(),
		JobID:      j.ID.String(),
		ScheduleAt: j.ScheduledAt.Format(time.RFC3339Nano),
	})
	return nil
}

// OnShutdown closes every subscriber.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		b.topics.leave(sub)
		sub.Close()
	}
	b.logger.Info("stream broker shut down", slog.Int("subscribers", len(subs)))
	return nil
}
