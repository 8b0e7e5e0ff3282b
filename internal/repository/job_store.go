package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStore is the Postgres-backed job queue.
type JobStore struct {
	db      *sql.DB
	queries *Queries
}

// NewJobStore creates a JobStore backed by db.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db, queries: New(db)}
}

// Enqueue inserts a pending job.
func (s *JobStore) Enqueue(ctx context.Context, arg EnqueueJobParams) (Job, error) {
	return s.queries.EnqueueJob(ctx, arg)
}

// Dequeue claims the next due job and marks it running. It returns
// sql.ErrNoRows when no job is due.
func (s *JobStore) Dequeue(ctx context.Context) (Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	job, err := qtx.DequeueJob(ctx)
	if err != nil {
		return Job{}, err
	}
	if err := qtx.UpdateJobStarted(ctx, job.ID); err != nil {
		return Job{}, fmt.Errorf("mark job started: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Job{}, fmt.Errorf("commit dequeue: %w", err)
	}

	job.Attempts++
	job.Status = "running"
	return job, nil
}

// Complete marks a job completed.
func (s *JobStore) Complete(ctx context.Context, id uuid.UUID) error {
	return s.queries.UpdateJobCompleted(ctx, id)
}

// Fail records a failed attempt. Permanent failures are never retried.
func (s *JobStore) Fail(ctx context.Context, id uuid.UUID, message string, permanent bool) error {
	return s.queries.UpdateJobFailed(ctx, UpdateJobFailedParams{
		ID:           id,
		ErrorMessage: sql.NullString{String: message, Valid: message != ""},
		Permanent:    permanent,
	})
}

// RecoverStale resets jobs running longer than threshold to pending.
func (s *JobStore) RecoverStale(ctx context.Context, threshold time.Duration) (int64, error) {
	return s.queries.RecoverStaleJobs(ctx, threshold.Seconds())
}
