package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Store persists image metadata in Postgres.
type Store struct {
	db      *sql.DB
	queries *Queries
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, queries: New(db)}
}

// SaveAll inserts every asset in one transaction. Either all rows are
// committed or none are.
func (s *Store) SaveAll(ctx context.Context, assets []domain.ImageAsset) ([]domain.ImageAsset, error) {
	const op = "store.save_all"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	saved := make([]domain.ImageAsset, 0, len(assets))
	for _, a := range assets {
		row, err := qtx.CreateImageAsset(ctx, CreateImageAssetParams{
			Name:         a.Name,
			RemoteKey:    a.RemoteKey,
			ThumbnailUrl: a.ThumbnailURL,
			HdUrl:        a.HDURL,
			Blurhash:     a.Blurhash,
			IsPublic:     a.IsPublic,
			OwnerID:      a.OwnerID,
		})
		if err != nil {
			if isUniqueViolation(err) {
				return nil, domain.Conflict(op, fmt.Sprintf("remote key %q already exists", a.RemoteKey))
			}
			return nil, domain.Internal(err, op, "failed to insert image")
		}
		saved = append(saved, toDomain(row))
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.Internal(err, op, "failed to commit images")
	}
	return saved, nil
}

// FindByID returns a live asset.
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*domain.ImageAsset, error) {
	const op = "store.find_by_id"

	row, err := s.queries.GetImageAssetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "image", id.String())
		}
		return nil, domain.Internal(err, op, "failed to get image")
	}
	a := toDomain(row)
	return &a, nil
}

// DeleteByID soft-deletes a live asset.
func (s *Store) DeleteByID(ctx context.Context, id uuid.UUID) error {
	const op = "store.delete_by_id"

	n, err := s.queries.SoftDeleteImageAsset(ctx, id)
	if err != nil {
		return domain.Internal(err, op, "failed to delete image")
	}
	if n == 0 {
		return domain.NotFound(op, "image", id.String())
	}
	return nil
}

// List returns live assets, newest first.
func (s *Store) List(ctx context.Context, page domain.Page) ([]domain.ImageAsset, error) {
	page = page.Normalize()
	rows, err := s.queries.ListImageAssets(ctx, ListImageAssetsParams{
		Limit:  int32(page.Limit),
		Offset: int32(page.Offset),
	})
	if err != nil {
		return nil, domain.Internal(err, "store.list", "failed to list images")
	}
	return toDomainList(rows), nil
}

// ListByOwner returns the live assets of one owner, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID uuid.UUID, page domain.Page) ([]domain.ImageAsset, error) {
	page = page.Normalize()
	rows, err := s.queries.ListImageAssetsByOwner(ctx, ListImageAssetsByOwnerParams{
		OwnerID: ownerID,
		Limit:   int32(page.Limit),
		Offset:  int32(page.Offset),
	})
	if err != nil {
		return nil, domain.Internal(err, "store.list_by_owner", "failed to list images")
	}
	return toDomainList(rows), nil
}

// ListPublic returns live public assets, newest first.
func (s *Store) ListPublic(ctx context.Context, page domain.Page) ([]domain.ImageAsset, error) {
	page = page.Normalize()
	rows, err := s.queries.ListPublicImageAssets(ctx, ListPublicImageAssetsParams{
		Limit:  int32(page.Limit),
		Offset: int32(page.Offset),
	})
	if err != nil {
		return nil, domain.Internal(err, "store.list_public", "failed to list images")
	}
	return toDomainList(rows), nil
}

// =============================================================================
// Helper Functions
// =============================================================================

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func toDomain(row ImageAsset) domain.ImageAsset {
	a := domain.ImageAsset{
		ID:           row.ID,
		Name:         row.Name,
		RemoteKey:    row.RemoteKey,
		ThumbnailURL: row.ThumbnailUrl,
		HDURL:        row.HdUrl,
		Blurhash:     row.Blurhash,
		IsPublic:     row.IsPublic,
		OwnerID:      row.OwnerID,
		CreatedAt:    row.CreatedAt,
	}
	if row.DeletedAt.Valid {
		t := row.DeletedAt.Time
		a.DeletedAt = &t
	}
	return a
}

func toDomainList(rows []ImageAsset) []domain.ImageAsset {
	out := make([]domain.ImageAsset, len(rows))
	for i, r := range rows {
		out[i] = toDomain(r)
	}
	return out
}
