package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/DukeRupert/snapshot/internal/metrics"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// destroyOK is the only destroy result Cloudinary reports for a removed asset.
const destroyOK = "ok"

// cloudinaryUploader is the part of the Cloudinary upload API the gateway uses.
type cloudinaryUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// CloudinaryGateway implements Gateway on Cloudinary. The logical key is the
// asset's public ID and the folder classification its folder.
type CloudinaryGateway struct {
	upload cloudinaryUploader
	prefix string
	logger *slog.Logger
}

// NewCloudinaryGateway creates a Gateway for the configured Cloudinary account.
// The credentials are bound once to the client and never reconfigured.
func NewCloudinaryGateway(cfg CloudinaryConfig, gwCfg GatewayConfig, logger *slog.Logger) (*CloudinaryGateway, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("create cloudinary client: %w", err)
	}

	logger.Info("initialized cloudinary gateway", "cloud_name", cfg.CloudName, "prefix", gwCfg.Prefix)

	return newCloudinaryGateway(&cld.Upload, gwCfg, logger), nil
}

func newCloudinaryGateway(upload cloudinaryUploader, cfg GatewayConfig, logger *slog.Logger) *CloudinaryGateway {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CloudinaryGateway{
		upload: upload,
		prefix: prefix,
		logger: logger,
	}
}

// Upload implements Gateway.
func (g *CloudinaryGateway) Upload(ctx context.Context, data []byte, key string, folder domain.Folder, codec domain.Codec) (url string, err error) {
	defer func() { metrics.GatewayCall("upload", err) }()

	if err := validateLogicalKey(key); err != nil {
		return "", &StorageError{Op: "Upload", Key: key, Err: err}
	}

	result, err := g.upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     key,
		Folder:       FolderPath(g.prefix, folder),
		Format:       string(codec),
		Overwrite:    api.Bool(true),
		ResourceType: "image",
	})
	if err != nil {
		g.logger.Error("Error uploading to Cloudinary", "key", key, "folder", folder, "error", err)
		return "", &StorageError{Op: "Upload", Key: key, Err: err}
	}
	if result == nil || result.Error.Message != "" || result.SecureURL == "" {
		msg := "Unknown error"
		if result != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		g.logger.Error("Error uploading to Cloudinary", "key", key, "folder", folder, "error", msg)
		return "", &StorageError{Op: "Upload", Key: key, Err: fmt.Errorf("%w: %s", ErrNotOK, msg)}
	}

	return result.SecureURL, nil
}

// Delete implements Gateway. Both destroy calls must report "ok".
func (g *CloudinaryGateway) Delete(ctx context.Context, key string) (err error) {
	defer func() { metrics.GatewayCall("delete", err) }()

	return deleteAllFolders(ctx, key, g.logger, func(ctx context.Context, folder domain.Folder) error {
		publicID := ObjectKey(g.prefix, folder, key)
		result, err := g.upload.Destroy(ctx, uploader.DestroyParams{
			PublicID:     publicID,
			ResourceType: "image",
		})
		if err != nil {
			return &StorageError{Op: "Delete", Key: publicID, Err: err}
		}
		if result == nil || result.Result != destroyOK {
			status := "no result"
			if result != nil {
				status = result.Result
			}
			g.logger.Error("Error deleting from Cloudinary", "public_id", publicID, "result", status)
			return &StorageError{Op: "Delete", Key: publicID, Err: fmt.Errorf("%w: %s", ErrNotOK, status)}
		}
		return nil
	})
}
