// Package stream fans Atomizer lifecycle events out to in-process
// subscribers. A Broker is registered as an extension and republishes
// every hook it receives on topics that subscribers pick from.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobEnqueued  EventType = "job.enqueued"
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobRetrying  EventType = "job.retrying"
	EventJobFailed    EventType = "job.failed"
	EventJobCancelled EventType = "job.cancelled"

	EventScheduleFired EventType = "schedule.fired"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity topic of the event, such as job:<id>.
	Topic string `json:"topic"`

	// Queue is the queue of the job involved.
	Queue string `json:"queue"`

	// Data is the JSON-encoded JobEventData or ScheduleEventData.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload of job events.
type JobEventData struct {
	JobID     string `json:"job_id"`
	Type      string `json:"type"`
	Queue     string `json:"queue"`
	Attempt   int    `json:"attempt,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
	VisibleAt string `json:"visible_at,omitempty"`
}

// ScheduleEventData is the payload of schedule events.
type ScheduleEventData struct {
	JobKey     string `json:"job_key"`
	ScheduleID string `json:"schedule_id"`
	JobID      string `json:"job_id"`
	ScheduleAt string `json:"scheduled_at"`
}
