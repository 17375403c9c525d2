package memory

import (
	"context"
	"sort"
	"time"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/lease"
)

// UpsertSchedule stores a copy of sched keyed by its job key. Replacing an
// existing schedule keeps its ID and creation time.
func (s *Store) UpsertSchedule(_ context.Context, sched *cron.Schedule) (id.ID, error) {
	unlock := s.lock()
	defer unlock()

	cp := sched.Clone()
	if existing, ok := s.schedules[sched.JobKey.String()]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	}
	if cp.ID.IsNil() {
		cp.ID = id.NewScheduleID()
	}
	s.schedules[sched.JobKey.String()] = cp
	return cp.ID, nil
}

// GetSchedule retrieves a copy of a schedule by job key.
func (s *Store) GetSchedule(_ context.Context, key job.Key) (*cron.Schedule, error) {
	unlock := s.lock()
	defer unlock()

	sched, ok := s.schedules[key.String()]
	if !ok {
		return nil, atomizer.ErrScheduleNotFound
	}
	return sched.Clone(), nil
}

// ListSchedules returns every schedule ordered by job key.
func (s *Store) ListSchedules(_ context.Context) ([]*cron.Schedule, error) {
	unlock := s.lock()
	defer unlock()

	result := make([]*cron.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		result = append(result, sched.Clone())
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].JobKey.String() < result[k].JobKey.String()
	})
	return result, nil
}

// DeleteSchedule removes a schedule by job key.
func (s *Store) DeleteSchedule(_ context.Context, key job.Key) error {
	unlock := s.lock()
	defer unlock()

	if _, ok := s.schedules[key.String()]; !ok {
		return atomizer.ErrScheduleNotFound
	}
	delete(s.schedules, key.String())
	return nil
}

// GetDueSchedules returns copies of the schedules due at now, earliest
// first.
func (s *Store) GetDueSchedules(_ context.Context, now time.Time) ([]*cron.Schedule, error) {
	unlock := s.lock()
	defer unlock()

	due := s.due(now)
	result := make([]*cron.Schedule, len(due))
	for i, sched := range due {
		result[i] = sched.Clone()
	}
	return result, nil
}

// LeaseDueSchedules claims up to batchSize due schedules under token.
func (s *Store) LeaseDueSchedules(_ context.Context, now time.Time, batchSize int, visibility time.Duration, token lease.Token) ([]*cron.Schedule, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	if token.IsZero() {
		return nil, atomizer.ErrInvalidLeaseToken
	}

	unlock := s.lock()
	defer unlock()

	due := s.due(now)
	if len(due) > batchSize {
		due = due[:batchSize]
	}
	result := make([]*cron.Schedule, len(due))
	for i, sched := range due {
		sched.MarkLeased(token, now, visibility)
		result[i] = sched.Clone()
	}
	return result, nil
}

// ReleaseLeasedSchedules clears every lease held under token.
func (s *Store) ReleaseLeasedSchedules(_ context.Context, token lease.Token) (int, error) {
	unlock := s.lock()
	defer unlock()

	now := s.clock.Now()
	released := 0
	for _, sched := range s.schedules {
		if sched.LeaseToken != token {
			continue
		}
		sched.ReleaseLease(now)
		released++
	}
	return released, nil
}

// due returns the stored schedules due at now. Callers hold the store
// lock.
func (s *Store) due(now time.Time) []*cron.Schedule {
	var due []*cron.Schedule
	for _, sched := range s.schedules {
		if sched.IsDue(now) {
			due = append(due, sched)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		return due[i].NextRunAt.Before(due[k].NextRunAt)
	})
	return due
}
