package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, job_type, payload, status, priority, attempts, max_attempts, scheduled_at, started_at, completed_at, error_message, created_at`

func scanJob(row rowScanner, i *Job) error {
	return row.Scan(
		&i.ID,
		&i.JobType,
		&i.Payload,
		&i.Status,
		&i.Priority,
		&i.Attempts,
		&i.MaxAttempts,
		&i.ScheduledAt,
		&i.StartedAt,
		&i.CompletedAt,
		&i.ErrorMessage,
		&i.CreatedAt,
	)
}

const enqueueJob = `-- name: EnqueueJob :one
INSERT INTO jobs (job_type, payload, priority, max_attempts, scheduled_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + jobColumns

type EnqueueJobParams struct {
	JobType     string          `json:"job_type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int32           `json:"priority"`
	MaxAttempts int32           `json:"max_attempts"`
	ScheduledAt time.Time       `json:"scheduled_at"`
}

func (q *Queries) EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error) {
	row := q.db.QueryRowContext(ctx, enqueueJob,
		arg.JobType,
		arg.Payload,
		arg.Priority,
		arg.MaxAttempts,
		arg.ScheduledAt,
	)
	var i Job
	err := scanJob(row, &i)
	return i, err
}

// DequeueJob locks the next due pending job. Must run inside a transaction.
const dequeueJob = `-- name: DequeueJob :one
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'pending' AND scheduled_at <= NOW()
ORDER BY priority DESC, scheduled_at
LIMIT 1
FOR UPDATE SKIP LOCKED
`

func (q *Queries) DequeueJob(ctx context.Context) (Job, error) {
	row := q.db.QueryRowContext(ctx, dequeueJob)
	var i Job
	err := scanJob(row, &i)
	return i, err
}

const updateJobStarted = `-- name: UpdateJobStarted :exec
UPDATE jobs
SET status = 'running', started_at = NOW(), attempts = attempts + 1
WHERE id = $1
`

func (q *Queries) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobStarted, id)
	return err
}

const updateJobCompleted = `-- name: UpdateJobCompleted :exec
UPDATE jobs
SET status = 'completed', completed_at = NOW(), error_message = NULL
WHERE id = $1
`

func (q *Queries) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobCompleted, id)
	return err
}

// Failed jobs below max_attempts go back to pending with an exponential
// backoff of 30s * 2^attempts. Permanent failures exhaust the attempts.
const updateJobFailed = `-- name: UpdateJobFailed :exec
UPDATE jobs
SET status = CASE WHEN $3::boolean OR attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
    attempts = CASE WHEN $3::boolean THEN max_attempts ELSE attempts END,
    scheduled_at = CASE WHEN $3::boolean OR attempts >= max_attempts THEN scheduled_at
                        ELSE NOW() + (INTERVAL '30 seconds' * POWER(2, attempts)) END,
    error_message = $2,
    started_at = NULL
WHERE id = $1
`

type UpdateJobFailedParams struct {
	ID           uuid.UUID      `json:"id"`
	ErrorMessage sql.NullString `json:"error_message"`
	Permanent    bool           `json:"permanent"`
}

func (q *Queries) UpdateJobFailed(ctx context.Context, arg UpdateJobFailedParams) error {
	_, err := q.db.ExecContext(ctx, updateJobFailed, arg.ID, arg.ErrorMessage, arg.Permanent)
	return err
}

const recoverStaleJobs = `-- name: RecoverStaleJobs :execrows
UPDATE jobs
SET status = 'pending', started_at = NULL
WHERE status = 'running' AND started_at < NOW() - ($1::float8 * INTERVAL '1 second')
`

func (q *Queries) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	result, err := q.db.ExecContext(ctx, recoverStaleJobs, thresholdSeconds)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
