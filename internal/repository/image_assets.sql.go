package repository

import (
	"context"

	"github.com/google/uuid"
)

const createImageAsset = `-- name: CreateImageAsset :one
INSERT INTO image_assets (name, remote_key, thumbnail_url, hd_url, blurhash, is_public, owner_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, name, remote_key, thumbnail_url, hd_url, blurhash, is_public, owner_id, created_at, deleted_at
`

type CreateImageAssetParams struct {
	Name         string    `json:"name"`
	RemoteKey    string    `json:"remote_key"`
	ThumbnailUrl string    `json:"thumbnail_url"`
	HdUrl        string    `json:"hd_url"`
	Blurhash     string    `json:"blurhash"`
	IsPublic     bool      `json:"is_public"`
	OwnerID      uuid.UUID `json:"owner_id"`
}

func (q *Queries) CreateImageAsset(ctx context.Context, arg CreateImageAssetParams) (ImageAsset, error) {
	row := q.db.QueryRowContext(ctx, createImageAsset,
		arg.Name,
		arg.RemoteKey,
		arg.ThumbnailUrl,
		arg.HdUrl,
		arg.Blurhash,
		arg.IsPublic,
		arg.OwnerID,
	)
	var i ImageAsset
	err := scanImageAsset(row, &i)
	return i, err
}

const getImageAssetByID = `-- name: GetImageAssetByID :one
SELECT id, name, remote_key, thumbnail_url, hd_url, blurhash, is_public, owner_id, created_at, deleted_at
FROM image_assets
WHERE id = $1 AND deleted_at IS NULL
`

func (q *Queries) GetImageAssetByID(ctx context.Context, id uuid.UUID) (ImageAsset, error) {
	row := q.db.QueryRowContext(ctx, getImageAssetByID, id)
	var i ImageAsset
	err := scanImageAsset(row, &i)
	return i, err
}

const softDeleteImageAsset = `-- name: SoftDeleteImageAsset :execrows
UPDATE image_assets
SET deleted_at = NOW()
WHERE id = $1 AND deleted_at IS NULL
`

func (q *Queries) SoftDeleteImageAsset(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.ExecContext(ctx, softDeleteImageAsset, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listImageAssets = `-- name: ListImageAssets :many
SELECT id, name, remote_key, thumbnail_url, hd_url, blurhash, is_public, owner_id, created_at, deleted_at
FROM image_assets
WHERE deleted_at IS NULL
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2
`

type ListImageAssetsParams struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

func (q *Queries) ListImageAssets(ctx context.Context, arg ListImageAssetsParams) ([]ImageAsset, error) {
	return q.listImageAssets(ctx, listImageAssets, arg.Limit, arg.Offset)
}

const listImageAssetsByOwner = `-- name: ListImageAssetsByOwner :many
SELECT id, name, remote_key, thumbnail_url, hd_url, blurhash, is_public, owner_id, created_at, deleted_at
FROM image_assets
WHERE owner_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3
`

type ListImageAssetsByOwnerParams struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Limit   int32     `json:"limit"`
	Offset  int32     `json:"offset"`
}

func (q *Queries) ListImageAssetsByOwner(ctx context.Context, arg ListImageAssetsByOwnerParams) ([]ImageAsset, error) {
	return q.listImageAssets(ctx, listImageAssetsByOwner, arg.OwnerID, arg.Limit, arg.Offset)
}

const listPublicImageAssets = `-- name: ListPublicImageAssets :many
SELECT id, name, remote_key, thumbnail_url, hd_url, blurhash, is_public, owner_id, created_at, deleted_at
FROM image_assets
WHERE is_public = TRUE AND deleted_at IS NULL
ORDER BY created_at DESC, id
LIMIT $1 OFFSET $2
`

type ListPublicImageAssetsParams struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

func (q *Queries) ListPublicImageAssets(ctx context.Context, arg ListPublicImageAssetsParams) ([]ImageAsset, error) {
	return q.listImageAssets(ctx, listPublicImageAssets, arg.Limit, arg.Offset)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImageAsset(row rowScanner, i *ImageAsset) error {
	return row.Scan(
		&i.ID,
		&i.Name,
		&i.RemoteKey,
		&i.ThumbnailUrl,
		&i.HdUrl,
		&i.Blurhash,
		&i.IsPublic,
		&i.OwnerID,
		&i.CreatedAt,
		&i.DeletedAt,
	)
}

func (q *Queries) listImageAssets(ctx context.Context, query string, args ...interface{}) ([]ImageAsset, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ImageAsset{}
	for rows.Next() {
		var i ImageAsset
		if err := scanImageAsset(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
