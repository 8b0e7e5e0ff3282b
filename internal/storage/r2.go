package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// =============================================================================
// R2Storage Implementation
// =============================================================================

// R2Storage implements the Storage interface on an S3-compatible bucket.
// Cloudflare R2 is the default target; Endpoint points it anywhere else.
type R2Storage struct {
	client     *s3.Client
	bucketName string
	endpoint   string
	publicURL  string
	logger     *slog.Logger
}

// NewR2Storage creates a new R2Storage instance.
//
// The R2 endpoint URL is constructed from the account ID unless
// cfg.Endpoint is set.
func NewR2Storage(cfg R2Config, logger *slog.Logger) (*R2Storage, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.AccountID == "" {
			return nil, fmt.Errorf("account ID or endpoint is required")
		}
		// Format: https://{account_id}.r2.cloudflarestorage.com
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"", // session token not needed
	)

	awsCfg := aws.Config{
		Region:      region,
		Credentials: creds,
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	logger.Info("initialized R2 storage",
		"bucket", cfg.BucketName,
		"endpoint", endpoint,
		"public_url", cfg.PublicURL,
	)

	return &R2Storage{
		client:     client,
		bucketName: cfg.BucketName,
		endpoint:   endpoint,
		publicURL:  strings.TrimSuffix(cfg.PublicURL, "/"),
		logger:     logger,
	}, nil
}

// Put stores data at the specified key, replacing any existing object.
//
// The body is buffered so the request carries an exact Content-Length and
// MaxSize is enforced before anything is sent.
func (s *R2Storage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	if err := s.validateKey(key); err != nil {
		return &StorageError{Op: "Put", Key: key, Err: err}
	}

	body, err := readAllLimited(data, opts.MaxSize)
	if err != nil {
		return &StorageError{Op: "Put", Key: key, Err: err}
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.Public {
		input.ACL = types.ObjectCannedACLPublicRead
	}

	result, err := s.client.PutObject(ctx, input)
	if err != nil {
		return &StorageError{Op: "Put", Key: key, Err: s.wrapS3Error(err)}
	}

	s.logger.Debug("stored object",
		"key", key,
		"bytes", len(body),
		"etag", aws.ToString(result.ETag),
		"content_type", opts.ContentType,
	)

	return nil
}

// readAllLimited reads data fully, failing with ErrTooLarge past max bytes.
// max <= 0 means unlimited.
func readAllLimited(data io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(data)
	}
	body, err := io.ReadAll(io.LimitReader(data, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > max {
		return nil, ErrTooLarge
	}
	return body, nil
}

// Delete removes the object at the specified key.
func (s *R2Storage) Delete(ctx context.Context, key string) error {
	if err := s.validateKey(key); err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: err}
	}

	// Idempotent - S3 doesn't error if the key doesn't exist
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return &StorageError{Op: "Delete", Key: key, Err: s.wrapS3Error(err)}
	}

	s.logger.Debug("deleted object from R2", "key", key)

	return nil
}

// URL returns the permanent URL of the object: the public URL when
// configured, the path-style endpoint URL otherwise.
func (s *R2Storage) URL(ctx context.Context, key string) (string, error) {
	if err := s.validateKey(key); err != nil {
		return "", &StorageError{Op: "URL", Key: key, Err: err}
	}

	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s", s.publicURL, key), nil
	}
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucketName, key), nil
}

// validateKey rejects empty keys and keys with path traversal attempts.
func (s *R2Storage) validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}

// s3ErrorCodes maps S3 API error codes to storage sentinels.
var s3ErrorCodes = map[string]error{
	"NotFound":              ErrNotFound,
	"NoSuchKey":             ErrNotFound,
	"AccessDenied":          ErrAccessDenied,
	"Forbidden":             ErrAccessDenied,
	"InvalidAccessKeyId":    ErrAccessDenied,
	"SignatureDoesNotMatch": ErrAccessDenied,
	"EntityTooLarge":        ErrTooLarge,
}

// s3StatusCodes maps bare HTTP statuses (responses without an XML body
// carry no error code) to storage sentinels.
var s3StatusCodes = map[int]error{
	http.StatusNotFound:  ErrNotFound,
	http.StatusForbidden: ErrAccessDenied,
}

// wrapS3Error converts S3 SDK errors to storage sentinels where possible,
// keeping the SDK error in the chain.
func (s *R2Storage) wrapS3Error(err error) error {
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel, ok := s3ErrorCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}

	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		if sentinel, ok := s3StatusCodes[respErr.HTTPStatusCode()]; ok {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}

	return fmt.Errorf("object storage request failed: %w", err)
}
