// Package service contains business logic for the snapshot application.
//
// This file implements the image service: batch ingestion, deletion and
// lookup of image assets.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/DukeRupert/snapshot/internal/media"
	"github.com/DukeRupert/snapshot/internal/storage"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ImageService defines the interface for image-related operations.
type ImageService interface {
	// Create ingests a batch of uploaded files. Every file is rendered into
	// the fixed variant set, hashed, and uploaded; all records are then
	// persisted in one call. The batch is all-or-nothing: on any failure no
	// record is persisted, remote objects already written are removed, and
	// the first failure is returned.
	// Returns domain.EINVALID, ERENDER, EHASH, EUPLOAD or an internal error.
	Create(ctx context.Context, params domain.CreateImagesParams) ([]domain.ImageAsset, error)

	// Delete removes an asset's remote objects and then its record.
	// Returns a confirmation message naming the asset.
	// Returns domain.ENOTFOUND if the asset doesn't exist.
	// Returns domain.EDELETE if any remote deletion was not ok; the record
	// is kept in that case.
	Delete(ctx context.Context, id uuid.UUID) (string, error)

	// GetByID retrieves a live asset.
	// Returns domain.ENOTFOUND if the asset doesn't exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ImageAsset, error)

	// List retrieves live assets, newest first.
	List(ctx context.Context, page domain.Page) ([]domain.ImageAsset, error)

	// ListByOwner retrieves the live assets of one owner.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, page domain.Page) ([]domain.ImageAsset, error)

	// ListPublic retrieves live assets flagged public.
	ListPublic(ctx context.Context, page domain.Page) ([]domain.ImageAsset, error)
}

// ImageStore persists image metadata.
type ImageStore interface {
	// SaveAll persists every asset atomically and returns them with their
	// generated fields populated.
	SaveAll(ctx context.Context, assets []domain.ImageAsset) ([]domain.ImageAsset, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.ImageAsset, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page domain.Page) ([]domain.ImageAsset, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, page domain.Page) ([]domain.ImageAsset, error)
	ListPublic(ctx context.Context, page domain.Page) ([]domain.ImageAsset, error)
}

// CleanupScheduler retries remote deletions that could not be completed
// inline.
type CleanupScheduler interface {
	ScheduleCleanup(ctx context.Context, keys []string) error
}

// Config bounds the work of the ingestion pipeline.
type Config struct {
	// IngestConcurrency caps the files of one batch processed at once.
	// 0 means no cap.
	IngestConcurrency int

	// RenderTimeout bounds rendering and hashing of one file.
	// Expiry fails the file with domain.ERENDER. 0 disables it.
	RenderTimeout time.Duration

	// UploadTimeout bounds one variant upload.
	// Expiry fails the file with domain.EUPLOAD. 0 disables it.
	UploadTimeout time.Duration

	// CleanupTimeout bounds the compensating deletes of a failed batch.
	CleanupTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		IngestConcurrency: 4,
		RenderTimeout:     30 * time.Second,
		UploadTimeout:     30 * time.Second,
		CleanupTimeout:    time.Minute,
	}
}

// =============================================================================
// Implementation
// =============================================================================

// imageService implements the ImageService interface.
type imageService struct {
	store    ImageStore
	gateway  storage.Gateway
	renderer media.Renderer
	hasher   media.Hasher
	cleanup  CleanupScheduler
	config   Config
	logger   *slog.Logger

	// newSuffix returns the random part of a remote key.
	newSuffix func() string
}

// NewImageService creates a new ImageService. cleanup may be nil, in which
// case keys whose compensation failed are only logged.
func NewImageService(
	store ImageStore,
	gateway storage.Gateway,
	renderer media.Renderer,
	hasher media.Hasher,
	cleanup CleanupScheduler,
	config Config,
	logger *slog.Logger,
) ImageService {
	return &imageService{
		store:     store,
		gateway:   gateway,
		renderer:  renderer,
		hasher:    hasher,
		cleanup:   cleanup,
		config:    config,
		logger:    logger,
		newSuffix: randomSuffix,
	}
}

// =============================================================================
// Delete
// =============================================================================

// Delete removes an asset's remote objects and then its record.
func (s *imageService) Delete(ctx context.Context, id uuid.UUID) (string, error) {
	const op = "image.delete"

	asset, err := s.store.FindByID(ctx, id)
	if err != nil {
		return "", err
	}

	if err := s.gateway.Delete(ctx, asset.RemoteKey); err != nil {
		// Remote and local state both still "exist"; keep the row.
		s.logger.Error("remote deletion not ok, keeping record",
			"image_id", id,
			"key", asset.RemoteKey,
			"error", err,
		)
		if domain.IsCode(err, domain.EDELETE) {
			return "", err
		}
		return "", domain.DeleteInconsistency(err, op, asset.RemoteKey)
	}

	if err := s.store.DeleteByID(ctx, id); err != nil {
		return "", err
	}

	s.logger.Info("image deleted", "image_id", id, "key", asset.RemoteKey)
	return fmt.Sprintf("Image %q deleted", asset.Name), nil
}

// =============================================================================
// Queries
// =============================================================================

// GetByID retrieves a live asset.
func (s *imageService) GetByID(ctx context.Context, id uuid.UUID) (*domain.ImageAsset, error) {
	return s.store.FindByID(ctx, id)
}

// List retrieves live assets, newest first.
func (s *imageService) List(ctx context.Context, page domain.Page) ([]domain.ImageAsset, error) {
	return s.store.List(ctx, page.Normalize())
}

// ListByOwner retrieves the live assets of one owner.
func (s *imageService) ListByOwner(ctx context.Context, ownerID uuid.UUID, page domain.Page) ([]domain.ImageAsset, error) {
	if ownerID == uuid.Nil {
		return nil, domain.Invalid("image.list_by_owner", "Owner ID is required")
	}
	return s.store.ListByOwner(ctx, ownerID, page.Normalize())
}

// ListPublic retrieves live assets flagged public.
func (s *imageService) ListPublic(ctx context.Context, page domain.Page) ([]domain.ImageAsset, error) {
	return s.store.ListPublic(ctx, page.Normalize())
}
