package job

import (
	"time"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job waits to be leased.
	StatusPending Status = "pending"
	// StatusProcessing means a runtime holds a lease on the job.
	StatusProcessing Status = "processing"
	// StatusCompleted means the handler succeeded.
	StatusCompleted Status = "completed"
	// StatusFailed means every attempt failed. It is terminal.
	StatusFailed Status = "failed"
)

// IsTerminal reports whether s is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job represents a unit of work.
type Job struct {
	atomizer.Entity

	ID             id.ID       `json:"id"`
	Queue          queue.Key   `json:"queue"`
	Type           string      `json:"type"`
	Payload        string      `json:"payload"`
	ScheduledAt    time.Time   `json:"scheduled_at"`
	VisibleAt      *time.Time  `json:"visible_at,omitempty"`
	Status         Status      `json:"status"`
	Attempts       int         `json:"attempts"`
	MaxAttempts    int         `json:"max_attempts"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	FailedAt       *time.Time  `json:"failed_at,omitempty"`
	LeaseToken     lease.Token `json:"-"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
	ScheduleJobKey Key         `json:"schedule_job_key,omitempty"`
	Errors         []Error     `json:"errors,omitempty"`
}

// New returns a pending job for queue q scheduled at runAt.
func New(q queue.Key, payloadType, payload string, runAt time.Time, maxAttempts int, now time.Time) *Job {
	return &Job{
		Entity:      atomizer.NewEntity(now),
		ID:          id.NewJobID(),
		Queue:       q,
		Type:        payloadType,
		Payload:     payload,
		ScheduledAt: runAt.UTC(),
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
	}
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// jobs without racing with the store.
func (j *Job) Clone() *Job {
	cp := *j
	cp.VisibleAt = cloneTime(j.VisibleAt)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	cp.FailedAt = cloneTime(j.FailedAt)
	if j.Errors != nil {
		cp.Errors = make([]Error, len(j.Errors))
		copy(cp.Errors, j.Errors)
	}
	return &cp
}

// IsDue reports whether the job may be leased at now: either pending,
// visible and scheduled, or processing with an expired lease.
func (j *Job) IsDue(now time.Time) bool {
	switch j.Status {
	case StatusPending:
		if j.VisibleAt != nil && j.VisibleAt.After(now) {
			return false
		}
		return !j.ScheduledAt.After(now)
	case StatusProcessing:
		return j.VisibleAt != nil && !j.VisibleAt.After(now)
	default:
		return false
	}
}

// MarkProcessing flips the job to processing under token, invisible until
// now+visibility.
func (j *Job) MarkProcessing(token lease.Token, now time.Time, visibility time.Duration) {
	until := now.Add(visibility)
	j.Status = StatusProcessing
	j.LeaseToken = token
	j.VisibleAt = &until
	j.Touch(now)
}

// MarkCompleted marks the job completed and drops its lease, visibility and
// idempotency key.
func (j *Job) MarkCompleted(now time.Time) {
	j.Status = StatusCompleted
	j.CompletedAt = &now
	j.FailedAt = nil
	j.clearLease()
	j.IdempotencyKey = ""
	j.Touch(now)
}

// Retry records e and returns the job to pending, invisible until
// visibleAt.
func (j *Job) Retry(e Error, now, visibleAt time.Time) {
	j.Errors = append(j.Errors, e)
	j.clearLease()
	j.Status = StatusPending
	j.VisibleAt = &visibleAt
	j.Touch(now)
}

// MarkFailed records e and marks the job failed. The idempotency key is dropped
// so a later submission of the same work is not blocked by a dead job.
func (j *Job) MarkFailed(e Error, now time.Time) {
	j.Errors = append(j.Errors, e)
	j.clearLease()
	j.Status = StatusFailed
	j.FailedAt = &now
	j.CompletedAt = nil
	j.IdempotencyKey = ""
	j.Touch(now)
}

// Release returns a processing job to pending without recording an error.
func (j *Job) Release(now time.Time) {
	if j.Status != StatusProcessing {
		return
	}
	j.Status = StatusPending
	j.clearLease()
	j.Touch(now)
}

func (j *Job) clearLease() {
	j.LeaseToken = lease.Token{}
	j.VisibleAt = nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
