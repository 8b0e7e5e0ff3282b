package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/snapshot/internal/metrics"
	"github.com/DukeRupert/snapshot/internal/repository"
	"github.com/google/uuid"
)

// JobStore is the queue the worker consumes.
type JobStore interface {
	// Dequeue claims the next due job and marks it running.
	// Returns sql.ErrNoRows if no job is due.
	Dequeue(ctx context.Context) (repository.Job, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, message string, permanent bool) error
	RecoverStale(ctx context.Context, threshold time.Duration) (int64, error)
}

// Worker manages background job processing with concurrent workers.
type Worker struct {
	store    JobStore
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	// Synchronization
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(store JobStore, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		store:    store,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the worker.
// The handler's Type() must be unique. Call this before Start().
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("Overwriting existing handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
	w.logger.Debug("Registered job handler", "job_type", jobType)
}

// Start begins processing jobs with the configured number of concurrent workers.
// It also recovers any stale jobs from previous worker crashes.
func (w *Worker) Start(ctx context.Context) {
	count, err := w.store.RecoverStale(ctx, w.config.StaleJobThreshold)
	if err != nil {
		w.logger.Error("Failed to recover stale jobs", "error", err)
	} else if count > 0 {
		w.logger.Warn("Recovered stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}

	w.logger.Info("Worker started", "concurrency", w.config.Concurrency)
}

// Stop signals all workers to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopCh) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timeout exceeded, some jobs may still be running")
	}
}

// runWorker polls for jobs until stopCh is closed or ctx is done.
func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	logger.Debug("Worker started")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Debug("Worker stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processNextJob(ctx, logger); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					continue
				}
				logger.Error("Failed to process job", "error", err)
			}
		}
	}
}

// processNextJob dequeues and executes a single job.
// Returns sql.ErrNoRows if no jobs are available.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) error {
	job, err := w.store.Dequeue(ctx)
	if err != nil {
		return err
	}

	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	logger.Info("Processing job")

	start := time.Now()
	if err := w.executeJob(ctx, job); err != nil {
		logger.Error("Job failed", "error", err)
		w.markJobFailed(ctx, job, err, time.Since(start))
		return fmt.Errorf("execute job: %w", err)
	}

	logger.Info("Job completed")
	metrics.ObserveJob(job.JobType, metrics.JobOutcomeCompleted, time.Since(start))
	if err := w.store.Complete(ctx, job.ID); err != nil {
		return fmt.Errorf("update job completed: %w", err)
	}

	return nil
}

// executeJob runs the appropriate handler for the job with a timeout context.
func (w *Worker) executeJob(ctx context.Context, job repository.Job) error {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		return NewPermanentError(fmt.Errorf("no handler registered for job type: %s", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, job.Payload)
}

// markJobFailed records a failed attempt.
// Permanent errors and exhausted attempts end the job as 'failed'; anything
// else is rescheduled with exponential backoff.
func (w *Worker) markJobFailed(ctx context.Context, job repository.Job, jobErr error, elapsed time.Duration) {
	permanent := IsPermanent(jobErr)
	if permanent {
		w.logger.Warn("Job failed with permanent error, will not retry", "job_id", job.ID, "error", jobErr)
	}

	outcome := metrics.JobOutcomeRetried
	if permanent || job.Attempts >= job.MaxAttempts {
		outcome = metrics.JobOutcomeFailed
	}
	metrics.ObserveJob(job.JobType, outcome, elapsed)

	if err := w.store.Fail(ctx, job.ID, jobErr.Error(), permanent); err != nil {
		w.logger.Error("Failed to mark job as failed", "job_id", job.ID, "error", err)
	}
}
