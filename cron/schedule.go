package cron

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

// MisfirePolicy decides what happens to occurrences that were missed.
type MisfirePolicy string

const (
	// MisfireIgnore skips missed occurrences.
	MisfireIgnore MisfirePolicy = "ignore"
	// MisfireExecuteNow collapses missed occurrences into one run at the horizon.
	MisfireExecuteNow MisfirePolicy = "execute_now"
	// MisfireCatchUp runs every missed occurrence up to MaxCatchUp.
	MisfireCatchUp MisfirePolicy = "catch_up"
)

// Valid reports whether p is a known policy.
func (p MisfirePolicy) Valid() bool {
	switch p {
	case MisfireIgnore, MisfireExecuteNow, MisfireCatchUp:
		return true
	default:
		return false
	}
}

// DefaultMisfireThreshold is how late an occurrence may be processed and
// still run under its own timestamp.
const DefaultMisfireThreshold = time.Minute

// parser accepts five fields, an optional leading seconds field and
// descriptors such as "@hourly" or "@every 30s".
var parser = cronlib.NewParser(
	cronlib.SecondOptional | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseExpression parses a cron expression.
func ParseExpression(expr string) (cronlib.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", atomizer.ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// Schedule is a recurring job template.
type Schedule struct {
	atomizer.Entity

	ID            id.ID         `json:"id"`
	JobKey        job.Key       `json:"job_key"`
	Queue         queue.Key     `json:"queue"`
	Type          string        `json:"type"`
	Payload       string        `json:"payload"`
	Expression    string        `json:"expression"`
	TimeZone      string        `json:"time_zone"`
	MisfirePolicy MisfirePolicy `json:"misfire_policy"`
	MaxCatchUp    int           `json:"max_catch_up"`
	Enabled       bool          `json:"enabled"`
	MaxAttempts   int           `json:"max_attempts"`
	NextRunAt     time.Time     `json:"next_run_at"`
	LastEnqueueAt *time.Time    `json:"last_enqueue_at,omitempty"`
	LeaseToken    lease.Token   `json:"-"`
	VisibleAt     *time.Time    `json:"visible_at,omitempty"`
}

// New builds an enabled schedule whose first run is the first occurrence
// after now.
func New(jobKey job.Key, payloadType, payload, expr string, now time.Time, opts ...Option) (*Schedule, error) {
	if jobKey.IsZero() {
		return nil, fmt.Errorf("%w: empty job key", atomizer.ErrInvalidJobKey)
	}
	if payloadType == "" {
		return nil, atomizer.ErrMissingPayloadType
	}
	o := NewOptions(opts...)
	if err := o.Validate(); err != nil {
		return nil, err
	}

	s := &Schedule{
		Entity:        atomizer.NewEntity(now),
		ID:            id.NewScheduleID(),
		JobKey:        jobKey,
		Queue:         o.Queue,
		Type:          payloadType,
		Payload:       payload,
		Expression:    expr,
		TimeZone:      o.TimeZone,
		MisfirePolicy: o.MisfirePolicy,
		MaxCatchUp:    o.MaxCatchUp,
		Enabled:       o.Enabled,
		MaxAttempts:   o.MaxAttempts,
	}
	if o.Type != "" {
		s.Type = o.Type
	}
	next, err := s.NextAfter(now)
	if err != nil {
		return nil, err
	}
	s.NextRunAt = next
	return s, nil
}

// Clone returns a deep copy.
func (s *Schedule) Clone() *Schedule {
	cp := *s
	cp.LastEnqueueAt = cloneTime(s.LastEnqueueAt)
	cp.VisibleAt = cloneTime(s.VisibleAt)
	return &cp
}

// Location loads the schedule's time zone. Empty means UTC.
func (s *Schedule) Location() (*time.Location, error) {
	if s.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: time zone %q: %w", atomizer.ErrInvalidSchedule, s.TimeZone, err)
	}
	return loc, nil
}

// NextAfter returns the first occurrence strictly after t, in UTC.
func (s *Schedule) NextAfter(t time.Time) (time.Time, error) {
	next, err := s.iterator()
	if err != nil {
		return time.Time{}, err
	}
	return next(t), nil
}

// iterator returns a function yielding the first occurrence strictly
// after its argument. A zero result means the expression never fires again.
func (s *Schedule) iterator() (func(time.Time) time.Time, error) {
	sched, err := ParseExpression(s.Expression)
	if err != nil {
		return nil, err
	}
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}
	return func(t time.Time) time.Time {
		next := sched.Next(t.In(loc))
		if next.IsZero() {
			return next
		}
		return next.UTC()
	}, nil
}

// IsDue reports whether the schedule may be leased at now.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextRunAt.IsZero() || s.NextRunAt.After(now) {
		return false
	}
	return s.VisibleAt == nil || !s.VisibleAt.After(now)
}

// Occurrences returns the occurrences to materialize when the schedule is
// processed at now with the given horizon, ordered ascending.
//
// Occurrences in (now, horizon] have not happened yet and are emitted as
// they are. Occurrences at or before now are late and handled per the
// schedule's policy:
//   - MisfireCatchUp emits them oldest first, up to MaxCatchUp in total.
//   - MisfireExecuteNow emits a single late occurrence that lies within
//     threshold of now as it is. Anything more is collapsed into one
//     occurrence at now.
//   - MisfireIgnore emits only the latest late occurrence, and only when it
//     lies within threshold of now.
func (s *Schedule) Occurrences(now, horizon time.Time, threshold time.Duration) ([]time.Time, error) {
	if !s.Enabled || s.NextRunAt.IsZero() || s.NextRunAt.After(horizon) {
		return nil, nil
	}
	next, err := s.iterator()
	if err != nil {
		return nil, err
	}

	horizon = horizon.UTC()
	now = now.UTC()
	if now.After(horizon) {
		now = horizon
	}
	cutoff := now.Add(-threshold)

	if s.MisfirePolicy == MisfireCatchUp {
		if s.MaxCatchUp < 1 {
			return nil, fmt.Errorf("%w: max catch-up must be at least 1, got %d", atomizer.ErrInvalidSchedule, s.MaxCatchUp)
		}
		return s.collect(next, s.NextRunAt, horizon, s.MaxCatchUp), nil
	}

	var out []time.Time
	switch s.MisfirePolicy {
	case MisfireExecuteNow:
		late := s.collect(next, s.NextRunAt, now, 2)
		switch {
		case len(late) == 1 && !late[0].Before(cutoff):
			out = late
		case len(late) > 0:
			out = []time.Time{now}
		}
	default:
		start := s.NextRunAt
		if recent := next(cutoff.Add(-time.Nanosecond)); recent.After(start) {
			start = recent
		}
		if late := s.collect(next, start, now, 0); len(late) > 0 {
			out = late[len(late)-1:]
		}
	}

	upcoming := s.NextRunAt
	if !upcoming.After(now) {
		upcoming = next(now)
	}
	return append(out, s.collect(next, upcoming, horizon, 0)...), nil
}

// Advance moves NextRunAt past horizon. When occurrences were emitted,
// LastEnqueueAt becomes horizon.
func (s *Schedule) Advance(horizon time.Time, emitted bool, now time.Time) error {
	next, err := s.NextAfter(horizon)
	if err != nil {
		return err
	}
	s.NextRunAt = next
	if emitted {
		h := horizon.UTC()
		s.LastEnqueueAt = &h
	}
	s.Touch(now)
	return nil
}

// MarkLeased holds the schedule under token until now+visibility.
func (s *Schedule) MarkLeased(token lease.Token, now time.Time, visibility time.Duration) {
	until := now.Add(visibility)
	s.LeaseToken = token
	s.VisibleAt = &until
	s.Touch(now)
}

// ReleaseLease clears the lease and visibility.
func (s *Schedule) ReleaseLease(now time.Time) {
	s.LeaseToken = lease.Token{}
	s.VisibleAt = nil
	s.Touch(now)
}

// Disable excludes the schedule from due queries.
func (s *Schedule) Disable(now time.Time) {
	s.Enabled = false
	s.ReleaseLease(now)
}

// Redefine copies the definition of def (payload, expression, policy and
// targeting) onto s, keeping its identity and run history. NextRunAt is
// recomputed when the expression or time zone changed, or when s had no
// next run.
func (s *Schedule) Redefine(def *Schedule, now time.Time) error {
	recompute := s.Expression != def.Expression || s.TimeZone != def.TimeZone || s.NextRunAt.IsZero()

	s.Queue = def.Queue
	s.Type = def.Type
	s.Payload = def.Payload
	s.Expression = def.Expression
	s.TimeZone = def.TimeZone
	s.MisfirePolicy = def.MisfirePolicy
	s.MaxCatchUp = def.MaxCatchUp
	s.Enabled = def.Enabled
	s.MaxAttempts = def.MaxAttempts
	s.Touch(now)

	if recompute {
		next, err := s.NextAfter(now)
		if err != nil {
			return err
		}
		s.NextRunAt = next
	}
	return nil
}

// IdempotencyKey returns the key of the job spawned for occurrence.
func IdempotencyKey(jobKey job.Key, occurrence time.Time) string {
	return jobKey.String() + queue.Separator + occurrence.UTC().Format(time.RFC3339Nano)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
