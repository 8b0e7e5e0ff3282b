package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/snapshot/internal/repository"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeCleanupRemote = "cleanup_remote_objects"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// CleanupRemotePayload is the payload for remote cleanup jobs.
type CleanupRemotePayload struct {
	Keys []string `json:"keys"`
}

// JobEnqueuer inserts jobs into the queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error)
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob is a generic helper for enqueuing jobs with custom options.
func EnqueueJob(
	ctx context.Context,
	queue JobEnqueuer,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&params)
	}

	job, err := queue.Enqueue(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueCleanupRemote enqueues a job that removes the remote objects of keys.
func EnqueueCleanupRemote(
	ctx context.Context,
	queue JobEnqueuer,
	keys []string,
	opts ...EnqueueOption,
) (repository.Job, error) {
	return EnqueueJob(ctx, queue, JobTypeCleanupRemote, CleanupRemotePayload{Keys: keys}, opts...)
}

// CleanupScheduler hands remote keys the ingestion pipeline could not remove
// to the job queue.
type CleanupScheduler struct {
	queue JobEnqueuer
	opts  []EnqueueOption
}

// NewCleanupScheduler creates a CleanupScheduler. The first retry runs after
// a short delay so a transient remote failure has time to clear.
func NewCleanupScheduler(queue JobEnqueuer, opts ...EnqueueOption) *CleanupScheduler {
	defaults := []EnqueueOption{WithDelay(30 * time.Second), WithMaxAttempts(5), WithPriority(PriorityLow)}
	return &CleanupScheduler{queue: queue, opts: append(defaults, opts...)}
}

// ScheduleCleanup enqueues one cleanup job for keys.
func (s *CleanupScheduler) ScheduleCleanup(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := EnqueueCleanupRemote(ctx, s.queue, keys, s.opts...)
	return err
}
