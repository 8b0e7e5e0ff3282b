// Package storage provides the remote object layer of the ingestion pipeline.
//
// It has two levels:
//   - Storage: a plain object store (Put/Delete/URL) with a local
//     filesystem backend for development and an S3-compatible backend (R2,
//     MinIO, AWS) for production.
//   - Gateway: the pipeline-facing API that stores image variants under
//     "<prefix>/<folder>/<logical key>" and removes every folder of a key
//     with fail-closed semantics. ObjectGateway adapts any Storage; the
//     CloudinaryGateway talks to Cloudinary directly.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/DukeRupert/snapshot/internal/domain"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the interface for object storage operations.
//
// Implementations:
// - LocalStorage: Stores files on the local filesystem
// - R2Storage: Stores files in an S3-compatible bucket
//
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key with the given options,
	// replacing any object already stored there.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Delete removes the object at the specified key.
	// This operation is idempotent - no error is returned if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// URL returns the permanent URL of the object at the specified key.
	URL(ctx context.Context, key string) (string, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType specifies the MIME type of the object.
	ContentType string

	// MaxSize specifies the maximum allowed size in bytes; larger bodies
	// fail with ErrTooLarge and nothing is stored. A value of 0 means no limit.
	MaxSize int64

	// Public determines if the object should be publicly readable.
	Public bool
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where files are stored.
	// Example: "./storage"
	BasePath string

	// BaseURL is the public URL prefix for accessing files.
	// Example: "http://localhost:8080/files"
	BaseURL string
}

// R2Config holds configuration for S3-compatible storage.
type R2Config struct {
	// AccountID is the Cloudflare account ID. Used to build the R2 endpoint
	// when Endpoint is empty.
	AccountID string

	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// Endpoint overrides the R2 endpoint (MinIO, AWS, tests).
	Endpoint string

	// PublicURL is the public URL for the bucket (if using a custom domain).
	// Example: "https://cdn.snapshot.dev"
	PublicURL string

	// Region is required by the AWS SDK. Default: "auto"
	Region string
}

// CloudinaryConfig holds the credentials of a Cloudinary account.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

// GatewayConfig is the immutable configuration shared by every gateway call.
type GatewayConfig struct {
	// Prefix is the root folder all variants live under. Default: "snapshot"
	Prefix string

	// MaxObjectSize caps the size of one stored variant.
	// Default: domain.MaxImageSize
	MaxObjectSize int64
}

// DefaultPrefix is the root folder used when GatewayConfig.Prefix is empty.
const DefaultPrefix = "snapshot"

// =============================================================================
// Provider Constants
// =============================================================================

const (
	ProviderLocal      = "local"
	ProviderR2         = "r2"
	ProviderCloudinary = "cloudinary"
)

// =============================================================================
// Key Helpers
// =============================================================================

// FolderPath returns the remote folder of a classification.
// Format: {prefix}/{folder}
func FolderPath(prefix string, folder domain.Folder) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return path.Join(strings.Trim(prefix, "/"), string(folder))
}

// ObjectKey returns the object key of one variant of a logical key.
// Format: {prefix}/{folder}/{logicalKey}
//
// Example: "snapshot/thumbnails/sunset_4f1c2a9b7e30"
func ObjectKey(prefix string, folder domain.Folder, logicalKey string) string {
	return FolderPath(prefix, folder) + "/" + logicalKey
}

// validateLogicalKey rejects keys that would escape their folder.
func validateLogicalKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
