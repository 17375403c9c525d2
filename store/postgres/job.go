package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mnbuhl/atomizer"
	"github.com/mnbuhl/atomizer/id"
	"github.com/mnbuhl/atomizer/job"
	"github.com/mnbuhl/atomizer/lease"
	"github.com/mnbuhl/atomizer/queue"
)

const jobColumns = `
	id, queue, type, payload, scheduled_at, visible_at, status,
	attempts, max_attempts, completed_at, failed_at,
	lease_token, idempotency_key, schedule_job_key, created_at, updated_at`

const idempotencyIndex = "idx_atomizer_jobs_idempotency"

// InsertJob persists a new job.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) (id.ID, error) {
	if j.ID.IsNil() {
		j.ID = id.NewJobID()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO atomizer_jobs (`+jobColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)`,
		jobArgs(j)...,
	)
	if err != nil {
		if isDuplicateKey(err) {
			if constraintName(err) == idempotencyIndex {
				return id.Nil, fmt.Errorf("%w: %q", atomizer.ErrDuplicateIdempotencyKey, j.IdempotencyKey)
			}
			return id.Nil, atomizer.ErrJobAlreadyExists
		}
		return id.Nil, fmt.Errorf("atomizer/postgres: insert job: %w", err)
	}
	return j.ID, nil
}

// UpdateJob persists changes to an existing job and appends its error
// records not yet stored.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE atomizer_jobs SET
				queue = $2, type = $3, payload = $4, scheduled_at = $5,
				visible_at = $6, status = $7, attempts = $8, max_attempts = $9,
				completed_at = $10, failed_at = $11, lease_token = $12,
				idempotency_key = $13, schedule_job_key = $14, updated_at = $16
			WHERE id = $1`,
			jobArgs(j)...,
		)
		if err != nil {
			return fmt.Errorf("atomizer/postgres: update job: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return atomizer.ErrJobNotFound
		}

		for _, e := range j.Errors {
			_, err := tx.Exec(ctx, `
				INSERT INTO atomizer_job_errors (
					id, job_id, message, stack_trace, exception_type,
					attempt, runtime_identity, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO NOTHING`,
				e.ID.String(), j.ID.String(), e.Message, e.StackTrace, e.ExceptionType,
				e.Attempt, e.RuntimeIdentity, e.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("atomizer/postgres: insert job error: %w", err)
			}
		}
		return nil
	})
}

// GetJob retrieves a job and its error records by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM atomizer_jobs WHERE id = $1`, jobID.String())

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, atomizer.ErrJobNotFound
		}
		return nil, fmt.Errorf("atomizer/postgres: get job: %w", err)
	}
	if err := s.loadErrors(ctx, []*job.Job{j}); err != nil {
		return nil, err
	}
	return j, nil
}

// ListJobs returns jobs ordered by creation time.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM atomizer_jobs WHERE TRUE`
	var args []any
	argIdx := 1

	if !opts.Queue.IsZero() {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue.String())
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}

	query += " ORDER BY created_at ASC, id ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("atomizer/postgres: list jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadErrors(ctx, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// LeaseBatch atomically claims up to batchSize due jobs of queue q. Rows
// locked by a concurrent lease are skipped.
func (s *Store) LeaseBatch(ctx context.Context, q queue.Key, batchSize int, now time.Time, visibility time.Duration, token lease.Token) ([]*job.Job, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	if token.IsZero() {
		return nil, atomizer.ErrInvalidLeaseToken
	}

	rows, err := s.pool.Query(ctx, `
		WITH leased AS (
			UPDATE atomizer_jobs
			SET status = 'processing', lease_token = $4, visible_at = $5, updated_at = $3
			WHERE id IN (
				SELECT id FROM atomizer_jobs
				WHERE queue = $1
				  AND (
					(status = 'pending' AND scheduled_at <= $3 AND (visible_at IS NULL OR visible_at <= $3))
					OR (status = 'processing' AND visible_at <= $3)
				  )
				ORDER BY scheduled_at ASC, id ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING `+jobColumns+`
		)
		SELECT * FROM leased ORDER BY scheduled_at ASC, id ASC`,
		q.String(), batchSize, now.UTC(), token.String(), now.Add(visibility).UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("atomizer/postgres: lease batch: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	if err := s.loadErrors(ctx, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ReleaseLeased returns every job processing under token to pending.
func (s *Store) ReleaseLeased(ctx context.Context, token lease.Token) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE atomizer_jobs
		SET status = 'pending', lease_token = NULL, visible_at = NULL, updated_at = NOW()
		WHERE lease_token = $1 AND status = 'processing'`,
		token.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("atomizer/postgres: release leased jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// loadErrors fills the Errors of jobs in one query.
func (s *Store) loadErrors(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	byID := make(map[string]*job.Job, len(jobs))
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID.String()
		byID[ids[i]] = j
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, message, stack_trace, exception_type, attempt, runtime_identity, created_at
		FROM atomizer_job_errors
		WHERE job_id = ANY($1)
		ORDER BY attempt ASC, created_at ASC`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("atomizer/postgres: load job errors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e            job.Error
			errID, jobID string
		)
		if err := rows.Scan(&errID, &jobID, &e.Message, &e.StackTrace, &e.ExceptionType,
			&e.Attempt, &e.RuntimeIdentity, &e.CreatedAt); err != nil {
			return fmt.Errorf("atomizer/postgres: scan job error: %w", err)
		}
		if e.ID, err = id.Parse(errID); err != nil {
			return fmt.Errorf("atomizer/postgres: parse job error id: %w", err)
		}
		j := byID[jobID]
		e.JobID = j.ID
		j.Errors = append(j.Errors, e)
	}
	return rows.Err()
}

func jobArgs(j *job.Job) []any {
	var scheduleKey *string
	if !j.ScheduleJobKey.IsZero() {
		scheduleKey = nilIfEmpty(j.ScheduleJobKey.String())
	}
	return []any{
		j.ID.String(), j.Queue.String(), j.Type, j.Payload, j.ScheduledAt.UTC(), j.VisibleAt, string(j.Status),
		j.Attempts, j.MaxAttempts, j.CompletedAt, j.FailedAt,
		tokenValue(j.LeaseToken), nilIfEmpty(j.IdempotencyKey), scheduleKey, j.CreatedAt, j.UpdatedAt,
	}
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j           job.Job
		idStr       string
		queueStr    string
		statusStr   string
		token       *string
		idemKey     *string
		scheduleKey *string
	)
	err := row.Scan(
		&idStr, &queueStr, &j.Type, &j.Payload, &j.ScheduledAt, &j.VisibleAt, &statusStr,
		&j.Attempts, &j.MaxAttempts, &j.CompletedAt, &j.FailedAt,
		&token, &idemKey, &scheduleKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if j.ID, err = id.ParseJobID(idStr); err != nil {
		return nil, fmt.Errorf("atomizer/postgres: parse job id %q: %w", idStr, err)
	}
	if j.Queue, err = queue.NewKey(queueStr); err != nil {
		return nil, fmt.Errorf("atomizer/postgres: job %s: %w", idStr, err)
	}
	if j.LeaseToken, err = parseTokenValue(token); err != nil {
		return nil, err
	}
	if scheduleKey != nil {
		if j.ScheduleJobKey, err = job.NewKey(*scheduleKey); err != nil {
			return nil, fmt.Errorf("atomizer/postgres: job %s: %w", idStr, err)
		}
	}
	if idemKey != nil {
		j.IdempotencyKey = *idemKey
	}
	j.Status = job.Status(statusStr)
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	defer rows.Close()
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("atomizer/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("atomizer/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
