package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/cron"
	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

const scheduleColumns = `
	id, job_key, queue, type, payload, expression, time_zone,
	misfire_policy, max_catch_up, enabled, max_attempts, next_run_at,
	last_enqueue_at, lease_token, visible_at, created_at, updated_at`

const dueCondition = `
	enabled AND next_run_at <= $1 AND (visible_at IS NULL OR visible_at <= $1)`

// UpsertSchedule inserts sched or replaces the schedule with the same job
// key. The stored ID and creation time survive a replace.
func (s *Store) UpsertSchedule(ctx context.Context, sched *cron.Schedule) (id.ID, error) {
	if sched.ID.IsNil() {
		sched.ID = id.NewScheduleID()
	}

	var stored string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO atomizer_schedules (`+scheduleColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17
		)
		ON CONFLICT (job_key) DO UPDATE SET
			queue = EXCLUDED.queue,
			type = EXCLUDED.type,
			payload = EXCLUDED.payload,
			expression = EXCLUDED.expression,
			time_zone = EXCLUDED.time_zone,
			misfire_policy = EXCLUDED.misfire_policy,
			max_catch_up = EXCLUDED.max_catch_up,
			enabled = EXCLUDED.enabled,
			max_attempts = EXCLUDED.max_attempts,
			next_run_at = EXCLUDED.next_run_at,
			last_enqueue_at = EXCLUDED.last_enqueue_at,
			lease_token = EXCLUDED.lease_token,
			visible_at = EXCLUDED.visible_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		scheduleArgs(sched)...,
	).Scan(&stored)
	if err != nil {
		return id.Nil, fmt.Errorf("atomizer/postgres: upsert schedule: %w", err)
	}

	storedID, err := id.ParseScheduleID(stored)
	if err != nil {
		return id.Nil, fmt.Errorf("atomizer/postgres: parse schedule id: %w", err)
	}
	return storedID, nil
}

// GetSchedule retrieves a schedule by job key.
func (s *Store) GetSchedule(ctx context.Context, key job.Key) (*cron.Schedule, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM atomizer_schedules WHERE job_key = $1`, key.String())
	sched, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, atomizer.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("atomizer/postgres: get schedule: %w", err)
	}
	return sched, nil
}

// ListSchedules returns every schedule ordered by job key.
func (s *Store) ListSchedules(ctx context.Context) ([]*cron.Schedule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM atomizer_schedules ORDER BY job_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("atomizer/postgres: list schedules: %w", err)
	}
	return collectSchedules(rows)
}

// DeleteSchedule removes a schedule by job key.
func (s *Store) DeleteSchedule(ctx context.Context, key job.Key) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM atomizer_schedules WHERE job_key = $1`, key.String())
	if err != nil {
		return fmt.Errorf("atomizer/postgres: delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return atomizer.ErrScheduleNotFound
	}
	return nil
}

// GetDueSchedules returns the schedules due at now, earliest first.
func (s *Store) GetDueSchedules(ctx context.Context, now time.Time) ([]*cron.Schedule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+scheduleColumns+` FROM atomizer_schedules
		WHERE `+dueCondition+`
		ORDER BY next_run_at ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("atomizer/postgres: get due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// LeaseDueSchedules claims up to batchSize due schedules under token.
// Rows locked by a concurrent lease are skipped.
func (s *Store) LeaseDueSchedules(ctx context.Context, now time.Time, batchSize int, visibility time.Duration, token lease.Token) ([]*cron.Schedule, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	if token.IsZero() {
		return nil, atomizer.ErrInvalidLeaseToken
	}

	rows, err := s.pool.Query(ctx, `
		WITH leased AS (
			UPDATE atomizer_schedules
			SET lease_token = $3, visible_at = $4, updated_at = $1
			WHERE id IN (
				SELECT id FROM atomizer_schedules
				WHERE `+dueCondition+`
				ORDER BY next_run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING `+scheduleColumns+`
		)
		SELECT * FROM leased ORDER BY next_run_at ASC`,
		now.UTC(), batchSize, token.String(), now.Add(visibility).UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("atomizer/postgres: lease due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ReleaseLeasedSchedules clears every schedule lease held under token.
func (s *Store) ReleaseLeasedSchedules(ctx context.Context, token lease.Token) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE atomizer_schedules
		SET lease_token = NULL, visible_at = NULL, updated_at = NOW()
		WHERE lease_token = $1`,
		token.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("atomizer/postgres: release leased schedules: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scheduleArgs(sched *cron.Schedule) []any {
	return []any{
		sched.ID.String(), sched.JobKey.String(), sched.Queue.String(), sched.Type, sched.Payload,
		sched.Expression, sched.TimeZone, string(sched.MisfirePolicy), sched.MaxCatchUp,
		sched.Enabled, sched.MaxAttempts, sched.NextRunAt.UTC(), sched.LastEnqueueAt,
		tokenValue(sched.LeaseToken), sched.VisibleAt, sched.CreatedAt, sched.UpdatedAt,
	}
}

func scanSchedule(row pgx.Row) (*cron.Schedule, error) {
	var (
		sched    cron.Schedule
		idStr    string
		keyStr   string
		queueStr string
		policy   string
		token    *string
	)
	err := row.Scan(
		&idStr, &keyStr, &queueStr, &sched.Type, &sched.Payload, &sched.Expression, &sched.TimeZone,
		&policy, &sched.MaxCatchUp, &sched.Enabled, &sched.MaxAttempts, &sched.NextRunAt,
		&sched.LastEnqueueAt, &token, &sched.VisibleAt, &sched.CreatedAt, &sched.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sched.ID, err = id.ParseScheduleID(idStr); err != nil {
		return nil, fmt.Errorf("atomizer/postgres: parse schedule id %q: %w", idStr, err)
	}
	if sched.JobKey, err = job.NewKey(keyStr); err != nil {
		return nil, fmt.Errorf("atomizer/postgres: schedule %s: %w", idStr, err)
	}
	if sched.Queue, err = queue.NewKey(queueStr); err != nil {
		return nil, fmt.Errorf("atomizer/postgres: schedule %s: %w", idStr, err)
	}
	if sched.LeaseToken, err = parseTokenValue(token); err != nil {
		return nil, err
	}
	sched.MisfirePolicy = cron.MisfirePolicy(policy)
	return &sched, nil
}

func collectSchedules(rows pgx.Rows) ([]*cron.Schedule, error) {
	defer rows.Close()
	var result []*cron.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("atomizer/postgres: scan schedule row: %w", err)
		}
		result = append(result, sched)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("atomizer/postgres: iterate schedule rows: %w", err)
	}
	return result, nil
}
