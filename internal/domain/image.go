// Package domain contains core business types and interfaces.
//
// This file defines the ImageAsset domain type and the fixed variant set
// every ingested image is rendered into.
package domain

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Variant Classes
// =============================================================================

// VariantClass identifies one of the fixed-purpose renditions of an image.
type VariantClass string

const (
	// VariantThumbnail favors bandwidth: lower quality, smaller geometry.
	VariantThumbnail VariantClass = "thumbnail"

	// VariantHD favors fidelity at near-lossless settings.
	VariantHD VariantClass = "hd"
)

// String returns the string representation of the class.
func (c VariantClass) String() string {
	return string(c)
}

// IsValid returns true if the class is a recognized value.
func (c VariantClass) IsValid() bool {
	switch c {
	case VariantThumbnail, VariantHD:
		return true
	}
	return false
}

// Folder is the remote folder classification a variant is stored under.
type Folder string

const (
	FolderThumbnails Folder = "thumbnails"
	FolderHD         Folder = "hd"
)

// Folders lists every folder classification a logical remote key can occupy.
// Remote deletion must attempt all of them.
var Folders = []Folder{FolderThumbnails, FolderHD}

// Codec is the target encoding of a rendered variant.
type Codec string

const (
	CodecWebP Codec = "webp"
	CodecPNG  Codec = "png"
	CodecJPEG Codec = "jpeg"
)

// IsValid returns true if the codec is supported by the renderer.
func (c Codec) IsValid() bool {
	switch c {
	case CodecWebP, CodecPNG, CodecJPEG:
		return true
	}
	return false
}

// ContentType returns the MIME type of objects encoded with the codec.
func (c Codec) ContentType() string {
	switch c {
	case CodecWebP:
		return "image/webp"
	case CodecPNG:
		return "image/png"
	case CodecJPEG:
		return "image/jpeg"
	}
	return "application/octet-stream"
}

// Variant describes how one variant class is rendered and where it is stored.
type Variant struct {
	Class   VariantClass
	Folder  Folder
	Codec   Codec
	Quality int
	Wide    Size // target when the source is landscape
	Tall    Size // target when the source is portrait or square
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Thumbnail and HD are the only variants the pipeline produces.
var (
	Thumbnail = Variant{
		Class:   VariantThumbnail,
		Folder:  FolderThumbnails,
		Codec:   CodecWebP,
		Quality: 50,
		Wide:    Size{Width: 1280, Height: 720},
		Tall:    Size{Width: 720, Height: 1080},
	}

	HD = Variant{
		Class:   VariantHD,
		Folder:  FolderHD,
		Codec:   CodecWebP,
		Quality: 90,
		Wide:    Size{Width: 2560, Height: 1440},
		Tall:    Size{Width: 1440, Height: 2160},
	}
)

// Variants is the fixed variant set, in rendering order.
var Variants = []Variant{Thumbnail, HD}

// VariantFor returns the variant definition of a class.
func VariantFor(class VariantClass) (Variant, bool) {
	for _, v := range Variants {
		if v.Class == class {
			return v, true
		}
	}
	return Variant{}, false
}

// =============================================================================
// Image Constants
// =============================================================================

// SupportedImageTypes maps accepted upload MIME types to their human-readable names.
var SupportedImageTypes = map[string]string{
	"image/jpeg": "JPEG",
	"image/jpg":  "JPEG",
	"image/png":  "PNG",
	"image/gif":  "GIF",
	"image/webp": "WebP",
}

const (
	// MaxImageSize is the maximum allowed size for uploaded images (20MB).
	MaxImageSize = 20 * 1024 * 1024

	// MaxFilesPerBatch is the maximum number of files accepted in one create call.
	MaxFilesPerBatch = 20

	// MaxNameLength bounds the stored display name.
	MaxNameLength = 100

	// PlaceholderGridSize is the side of the square the source is reduced to
	// before the placeholder hash is computed.
	PlaceholderGridSize = 32

	// PlaceholderComponentsX and PlaceholderComponentsY fix the hash length.
	PlaceholderComponentsX = 4
	PlaceholderComponentsY = 3
)

// =============================================================================
// ImageAsset Domain Type
// =============================================================================

// ImageAsset is the persisted metadata of one ingested image.
//
// RemoteKey is generated once per source file and never changes; both
// variants are stored under it, one per folder classification.
type ImageAsset struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	RemoteKey    string     `json:"remoteKey"`
	ThumbnailURL string     `json:"url"`
	HDURL        string     `json:"downloadUrl"`
	Blurhash     string     `json:"blurhash"`
	IsPublic     bool       `json:"isPublic"`
	OwnerID      uuid.UUID  `json:"ownerId"`
	CreatedAt    time.Time  `json:"createdAt"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

// IsDeleted returns true if the asset has been soft-deleted.
func (a *ImageAsset) IsDeleted() bool {
	return a.DeletedAt != nil
}

// =============================================================================
// Service Parameters
// =============================================================================

// UploadFile is one raw file of an ingestion batch.
type UploadFile struct {
	Filename string // Declared original filename
	Data     []byte // Complete file contents
}

// CreateImagesParams contains the inputs of a batch create.
type CreateImagesParams struct {
	OwnerID uuid.UUID
	Files   []UploadFile
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100

	// MaxPageOffset is the largest offset the store accepts (a Postgres int4).
	MaxPageOffset = math.MaxInt32
)

// Normalize applies defaults and bounds to the page.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Offset > MaxPageOffset {
		p.Offset = MaxPageOffset
	}
	return p
}

// =============================================================================
// Validation Helpers
// =============================================================================

// IsValidImageContentType checks if the content type is accepted for ingestion.
func IsValidImageContentType(contentType string) bool {
	baseType := strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	_, ok := SupportedImageTypes[baseType]
	return ok
}

// ValidateImageSize checks if the file size is within limits.
func ValidateImageSize(size int64) error {
	if size > MaxImageSize {
		return Errorf(ETOOLARGE, "image.validate", "Image size %d bytes exceeds maximum of %d bytes (%.1fMB)", size, MaxImageSize, float64(MaxImageSize)/(1024*1024))
	}
	if size == 0 {
		return Invalid("image.validate", "Image file is empty")
	}
	return nil
}

// ValidateUploadFile rejects files that must never reach the pipeline.
func ValidateUploadFile(f UploadFile) error {
	if err := ValidateImageSize(int64(len(f.Data))); err != nil {
		return err
	}
	contentType := http.DetectContentType(f.Data)
	if !IsValidImageContentType(contentType) {
		return Invalid("image.validate", "File "+f.Filename+" is not an image")
	}
	return nil
}
