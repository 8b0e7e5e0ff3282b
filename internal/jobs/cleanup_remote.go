package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/snapshot/internal/storage"
	"github.com/DukeRupert/snapshot/internal/worker"
)

// CleanupRemoteHandler removes remote objects left behind by a failed
// ingestion batch.
type CleanupRemoteHandler struct {
	gateway storage.Gateway
	logger  *slog.Logger
}

// NewCleanupRemoteHandler creates a new handler for remote cleanup jobs.
func NewCleanupRemoteHandler(gateway storage.Gateway, logger *slog.Logger) *CleanupRemoteHandler {
	return &CleanupRemoteHandler{
		gateway: gateway,
		logger:  logger,
	}
}

// Type returns the job type identifier.
func (h *CleanupRemoteHandler) Type() string {
	return worker.JobTypeCleanupRemote
}

// Handle deletes every key of the payload. All keys are attempted; the job
// fails, and is retried as a whole, if any of them is not cleanly removed.
// It is not retried when every failure has a permanent cause, checked per
// folder for gateway deletes (see storage.IsPermanent).
func (h *CleanupRemoteHandler) Handle(ctx context.Context, payload []byte) error {
	p, err := worker.DecodePayload[worker.CleanupRemotePayload](payload)
	if err != nil {
		return err
	}
	if len(p.Keys) == 0 {
		return worker.NewPermanentError(errors.New("cleanup job has no keys"))
	}

	h.logger.Info("Cleaning up remote objects", "keys", len(p.Keys))

	var errs []error
	retryable := false
	for _, key := range p.Keys {
		if err := h.gateway.Delete(ctx, key); err != nil {
			h.logger.Warn("Remote cleanup failed", "key", key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			if !storage.IsPermanent(err) {
				retryable = true
			}
		}
	}
	if len(errs) > 0 {
		err := fmt.Errorf("cleanup of %d/%d keys failed: %w", len(errs), len(p.Keys), errors.Join(errs...))
		if !retryable {
			return worker.NewPermanentError(err)
		}
		return err
	}

	h.logger.Info("Remote objects cleaned up", "keys", len(p.Keys))
	return nil
}
