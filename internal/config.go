package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Storage Configuration
	StorageProvider string // "local", "r2" or "cloudinary"
	StoragePrefix   string // Root folder of every variant

	// Local Storage (development)
	LocalStoragePath string // Base directory for local file storage
	LocalStorageURL  string // Base URL for accessing local files

	// R2 / S3-compatible storage
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL
	S3Endpoint        string // Overrides the R2 endpoint (MinIO, AWS)

	// Cloudinary
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	// Ingestion pipeline
	IngestConcurrency int
	RenderTimeout     time.Duration
	UploadTimeout     time.Duration

	// Upload rate limiting, per client IP
	UploadRateLimit  int
	UploadRateWindow time.Duration

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint is unprotected.
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		StoragePrefix:    getEnv("STORAGE_PREFIX", "snapshot"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),

		CloudinaryCloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),

		IngestConcurrency: getEnvInt("INGEST_CONCURRENCY", 4),
		RenderTimeout:     getEnvDuration("RENDER_TIMEOUT", 30*time.Second),
		UploadTimeout:     getEnvDuration("UPLOAD_TIMEOUT", 30*time.Second),

		UploadRateLimit:  getEnvInt("UPLOAD_RATE_LIMIT", 30),
		UploadRateWindow: getEnvDuration("UPLOAD_RATE_WINDOW", time.Minute),

		// Worker defaults
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 1),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 10*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 2*time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.validateStorage(); err != nil {
		return nil, err
	}

	if cfg.IngestConcurrency < 0 {
		return nil, fmt.Errorf("INGEST_CONCURRENCY must not be negative, got: %d", cfg.IngestConcurrency)
	}
	if cfg.UploadRateLimit < 1 {
		return nil, fmt.Errorf("UPLOAD_RATE_LIMIT must be at least 1, got: %d", cfg.UploadRateLimit)
	}
	if cfg.UploadRateWindow <= 0 {
		return nil, fmt.Errorf("UPLOAD_RATE_WINDOW must be positive, got: %s", cfg.UploadRateWindow)
	}

	return cfg, nil
}

// validateStorage checks the credentials of the selected provider.
func (c *Config) validateStorage() error {
	required := func(pairs ...string) error {
		for i := 0; i < len(pairs); i += 2 {
			if pairs[i+1] == "" {
				return fmt.Errorf("%s is required when STORAGE_PROVIDER is '%s'", pairs[i], c.StorageProvider)
			}
		}
		return nil
	}

	switch c.StorageProvider {
	case "local":
		return nil
	case "r2":
		if c.S3Endpoint == "" {
			if err := required("R2_ACCOUNT_ID", c.R2AccountID); err != nil {
				return err
			}
		}
		return required(
			"R2_ACCESS_KEY_ID", c.R2AccessKeyID,
			"R2_SECRET_ACCESS_KEY", c.R2SecretAccessKey,
			"R2_BUCKET_NAME", c.R2BucketName,
		)
	case "cloudinary":
		return required(
			"CLOUDINARY_CLOUD_NAME", c.CloudinaryCloudName,
			"CLOUDINARY_API_KEY", c.CloudinaryAPIKey,
			"CLOUDINARY_API_SECRET", c.CloudinaryAPISecret,
		)
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be 'local', 'r2' or 'cloudinary', got: %s", c.StorageProvider)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
