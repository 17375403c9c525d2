package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/clock"
	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/job"
)

// JobInserter persists spawned jobs. job.Store satisfies it.
type JobInserter interface {
	InsertJob(ctx context.Context, j *job.Job) (id.ID, error)
}

// TypeResolver reports whether a payload type can be handled.
// job.Registry satisfies it.
type TypeResolver interface {
	Has(tag string) bool
}

// Emitter emits schedule lifecycle events.
// ext.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, s *Schedule, j *job.Job)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// WithProcessorClock sets the time source.
func WithProcessorClock(c clock.Clock) ProcessorOption {
	return func(p *Processor) { p.clock = c }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) ProcessorOption {
	return func(p *Processor) { p.emitter = e }
}

// WithMisfireThreshold sets how late a single late occurrence may be and
// still run under its own timestamp.
func WithMisfireThreshold(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.threshold = d }
}

// Processor expands a schedule's occurrences into jobs and advances it.
type Processor struct {
	jobs      JobInserter
	schedules Store
	types     TypeResolver
	emitter   Emitter
	clock     clock.Clock
	logger    *slog.Logger
	threshold time.Duration
}

// NewProcessor creates a Processor.
func NewProcessor(jobs JobInserter, schedules Store, types TypeResolver, opts ...ProcessorOption) *Processor {
	p := &Processor{
		jobs:      jobs,
		schedules: schedules,
		types:     types,
		clock:     clock.System{},
		logger:    slog.Default(),
		threshold: DefaultMisfireThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process inserts one job per occurrence of s up to horizon, then advances
// s, clears its lease and persists it. Failures are logged; Process
// returns the number of jobs inserted.
//
// LastEnqueueAt moves to horizon whenever occurrences were computed, even
// if every insert failed, so failed occurrences are not retried.
func (p *Processor) Process(ctx context.Context, s *Schedule, horizon time.Time) int {
	log := p.logger.With(slog.String("job_key", s.JobKey.String()))

	if !p.types.Has(s.Type) {
		log.Warn("schedule payload type is not registered, disabling schedule",
			slog.String("type", s.Type),
		)
		p.disable(ctx, s, log)
		return 0
	}

	now := p.clock.Now()
	occurrences, err := s.Occurrences(now, horizon, p.threshold)
	if err != nil {
		log.Warn("schedule cannot be evaluated, disabling schedule",
			slog.String("expression", s.Expression),
			slog.String("error", err.Error()),
		)
		p.disable(ctx, s, log)
		return 0
	}

	inserted := 0
	for _, occ := range occurrences {
		j := job.New(s.Queue, s.Type, s.Payload, occ, s.MaxAttempts, now)
		j.IdempotencyKey = IdempotencyKey(s.JobKey, occ)
		j.ScheduleJobKey = s.JobKey

		if _, err := p.jobs.InsertJob(ctx, j); err != nil {
			if errors.Is(err, atomizer.ErrDuplicateIdempotencyKey) {
				log.Debug("occurrence already materialized",
					slog.Time("occurrence", occ),
				)
				continue
			}
			log.Error("failed to insert scheduled job",
				slog.Time("occurrence", occ),
				slog.String("error", err.Error()),
			)
			continue
		}
		inserted++
		if p.emitter != nil {
			p.emitter.EmitScheduleFired(ctx, s, j)
		}
	}

	if err := s.Advance(horizon, len(occurrences) > 0, now); err != nil {
		log.Error("failed to advance schedule", slog.String("error", err.Error()))
	}
	s.ReleaseLease(now)
	if _, err := p.schedules.UpsertSchedule(ctx, s); err != nil {
		log.Error("failed to persist schedule", slog.String("error", err.Error()))
	}

	if len(occurrences) > 0 {
		log.Info("schedule processed",
			slog.Int("occurrences", len(occurrences)),
			slog.Int("inserted", inserted),
			slog.Time("next_run_at", s.NextRunAt),
		)
	}
	return inserted
}

func (p *Processor) disable(ctx context.Context, s *Schedule, log *slog.Logger) {
	s.Disable(p.clock.Now())
	if _, err := p.schedules.UpsertSchedule(ctx, s); err != nil {
		log.Error("failed to persist disabled schedule", slog.String("error", err.Error()))
	}
}
