package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/DukeRupert/snapshot/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Gateway stores and removes image variants on a remote content host.
//
// A logical key names one ingested image; each folder classification holds
// at most one object for it.
type Gateway interface {
	// Upload stores data under {prefix}/{folder}/{key}, replacing any object
	// already there, and returns a stable URL for it. Re-uploading the same
	// key, folder and codec overwrites instead of duplicating.
	Upload(ctx context.Context, data []byte, key string, folder domain.Folder, codec domain.Codec) (string, error)

	// Delete removes the objects of key in every folder classification.
	// All deletions are attempted; unless every one of them reports success
	// the call fails with a domain.EDELETE error, even if some objects were
	// removed.
	Delete(ctx context.Context, key string) error
}

// =============================================================================
// ObjectGateway Implementation
// =============================================================================

// ObjectGateway implements Gateway on top of a Storage backend.
type ObjectGateway struct {
	storage Storage
	prefix  string
	maxSize int64
	logger  *slog.Logger
}

// NewObjectGateway creates a Gateway that writes variants to storage.
func NewObjectGateway(storage Storage, cfg GatewayConfig, logger *slog.Logger) *ObjectGateway {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	maxSize := cfg.MaxObjectSize
	if maxSize <= 0 {
		maxSize = domain.MaxImageSize
	}
	return &ObjectGateway{
		storage: storage,
		prefix:  prefix,
		maxSize: maxSize,
		logger:  logger,
	}
}

// Upload implements Gateway.
func (g *ObjectGateway) Upload(ctx context.Context, data []byte, key string, folder domain.Folder, codec domain.Codec) (url string, err error) {
	defer func() { metrics.GatewayCall("upload", err) }()

	if err := validateLogicalKey(key); err != nil {
		return "", &StorageError{Op: "Upload", Key: key, Err: err}
	}

	objectKey := ObjectKey(g.prefix, folder, key)
	if err := g.storage.Put(ctx, objectKey, bytes.NewReader(data), PutOptions{
		ContentType: codec.ContentType(),
		MaxSize:     g.maxSize,
		Public:      true,
	}); err != nil {
		g.logger.Error("Error uploading variant", "key", key, "folder", folder, "error", err)
		return "", err
	}

	url, err = g.storage.URL(ctx, objectKey)
	if err != nil {
		return "", err
	}

	g.logger.Debug("uploaded variant", "key", key, "folder", folder, "codec", codec, "size", len(data))
	return url, nil
}

// Delete implements Gateway.
func (g *ObjectGateway) Delete(ctx context.Context, key string) (err error) {
	defer func() { metrics.GatewayCall("delete", err) }()

	return deleteAllFolders(ctx, key, g.logger, func(ctx context.Context, folder domain.Folder) error {
		return g.storage.Delete(ctx, ObjectKey(g.prefix, folder, key))
	})
}

// =============================================================================
// Shared Delete Semantics
// =============================================================================

// DeleteError lists the folders of one key whose objects could not be
// removed. Each failure is prefixed with its folder.
type DeleteError struct {
	Key      string
	Failures []error
}

func (e *DeleteError) Error() string {
	return errors.Join(e.Failures...).Error()
}

func (e *DeleteError) Unwrap() []error {
	return e.Failures
}

// deleteAllFolders runs remove for every folder classification concurrently
// and waits for all of them. A single failure fails the whole call.
func deleteAllFolders(ctx context.Context, key string, logger *slog.Logger, remove func(context.Context, domain.Folder) error) error {
	const op = "gateway.delete"

	if err := validateLogicalKey(key); err != nil {
		return domain.DeleteInconsistency(&StorageError{Op: "Delete", Key: key, Err: err}, op, key)
	}

	results := make([]error, len(domain.Folders))

	// A plain group: no sibling is cancelled when one fails.
	var g errgroup.Group
	for i, folder := range domain.Folders {
		g.Go(func() error {
			if err := remove(ctx, folder); err != nil {
				results[i] = fmt.Errorf("%s: %w", folder, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var failures []error
	for _, err := range results {
		if err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		err := &DeleteError{Key: key, Failures: failures}
		logger.Error("Error deleting remote objects", "key", key, "error", err)
		metrics.DeleteInconsistencies.Inc()
		return domain.DeleteInconsistency(err, op, key)
	}

	logger.Debug("deleted remote objects", "key", key, "folders", len(domain.Folders))
	return nil
}
