package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

// InsertJob persists a copy of j. A non-terminal job holding the same
// idempotency key rejects the insert.
func (s *Store) InsertJob(_ context.Context, j *job.Job) (id.ID, error) {
	unlock := s.lock()
	defer unlock()

	if j.ID.IsNil() {
		j.ID = id.NewJobID()
	}
	key := j.ID.String()
	if _, exists := s.jobs[key]; exists {
		return id.Nil, atomizer.ErrJobAlreadyExists
	}
	if j.IdempotencyKey != "" {
		if holder, ok := s.idempotency[j.IdempotencyKey]; ok {
			if existing, live := s.jobs[holder]; live && !existing.Status.IsTerminal() {
				return id.Nil, fmt.Errorf("%w: %q", atomizer.ErrDuplicateIdempotencyKey, j.IdempotencyKey)
			}
		}
	}

	cp := j.Clone()
	s.jobs[key] = cp
	s.order = append(s.order, key)
	s.index(cp)
	s.evict()
	return cp.ID, nil
}

// UpdateJob replaces the stored job with a copy of j.
func (s *Store) UpdateJob(_ context.Context, j *job.Job) error {
	unlock := s.lock()
	defer unlock()

	key := j.ID.String()
	old, ok := s.jobs[key]
	if !ok {
		return atomizer.ErrJobNotFound
	}
	s.unindex(old)
	cp := j.Clone()
	s.jobs[key] = cp
	s.index(cp)
	return nil
}

// GetJob retrieves a copy of a job by ID.
func (s *Store) GetJob(_ context.Context, jobID id.ID) (*job.Job, error) {
	unlock := s.lock()
	defer unlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, atomizer.ErrJobNotFound
	}
	return j.Clone(), nil
}

// ListJobs returns jobs in insertion order.
func (s *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	unlock := s.lock()
	defer unlock()

	result := make([]*job.Job, 0, len(s.order))
	for _, key := range s.order {
		j := s.jobs[key]
		if !opts.Queue.IsZero() && j.Queue != opts.Queue {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		result = append(result, j.Clone())
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// LeaseBatch claims up to batchSize due jobs of queue q, oldest scheduled
// first. Jobs scheduled at the same instant are taken in id order.
func (s *Store) LeaseBatch(_ context.Context, q queue.Key, batchSize int, now time.Time, visibility time.Duration, token lease.Token) ([]*job.Job, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	if token.IsZero() {
		return nil, atomizer.ErrInvalidLeaseToken
	}

	unlock := s.lock()
	defer unlock()

	candidates := make([]*job.Job, 0, batchSize)
	for key := range s.byQueue[q] {
		if j := s.jobs[key]; j.IsDue(now) {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(i, k int) bool {
		if !candidates[i].ScheduledAt.Equal(candidates[k].ScheduledAt) {
			return candidates[i].ScheduledAt.Before(candidates[k].ScheduledAt)
		}
		return candidates[i].ID.String() < candidates[k].ID.String()
	})
	if len(candidates) > batchSize {
		candidates = candidates[:batchSize]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		s.unindex(j)
		j.MarkProcessing(token, now, visibility)
		s.index(j)
		result[i] = j.Clone()
	}
	return result, nil
}

// ReleaseLeased returns every job processing under token to pending.
func (s *Store) ReleaseLeased(_ context.Context, token lease.Token) (int, error) {
	unlock := s.lock()
	defer unlock()

	held := s.byToken[token.String()]
	now := s.clock.Now()
	released := 0
	for key := range held {
		j := s.jobs[key]
		if j.Status != job.StatusProcessing {
			continue
		}
		j.Release(now)
		released++
	}
	delete(s.byToken, token.String())
	return released, nil
}

// index registers j in the secondary indexes. Callers hold the store lock.
func (s *Store) index(j *job.Job) {
	key := j.ID.String()
	set, ok := s.byQueue[j.Queue]
	if !ok {
		set = make(map[string]struct{})
		s.byQueue[j.Queue] = set
	}
	set[key] = struct{}{}
	if !j.LeaseToken.IsZero() {
		addToSet(s.byToken, j.LeaseToken.String(), key)
	}
	if j.IdempotencyKey != "" && !j.Status.IsTerminal() {
		s.idempotency[j.IdempotencyKey] = key
	}
}

// unindex removes j from the secondary indexes. Callers hold the store
// lock.
func (s *Store) unindex(j *job.Job) {
	key := j.ID.String()
	if set, ok := s.byQueue[j.Queue]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(s.byQueue, j.Queue)
		}
	}
	if !j.LeaseToken.IsZero() {
		removeFromSet(s.byToken, j.LeaseToken.String(), key)
	}
	if j.IdempotencyKey != "" && s.idempotency[j.IdempotencyKey] == key {
		delete(s.idempotency, j.IdempotencyKey)
	}
}

// evict drops the oldest inserted jobs while the store is over capacity.
// Callers hold the store lock.
func (s *Store) evict() {
	if s.maxJobs <= 0 {
		return
	}
	for len(s.order) > s.maxJobs {
		key := s.order[0]
		s.order = s.order[1:]
		if j, ok := s.jobs[key]; ok {
			s.unindex(j)
			delete(s.jobs, key)
		}
	}
}
