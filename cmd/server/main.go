package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/snapshot/internal"
	"github.com/DukeRupert/snapshot/internal/handler"
	"github.com/DukeRupert/snapshot/internal/jobs"
	"github.com/DukeRupert/snapshot/internal/media"
	"github.com/DukeRupert/snapshot/internal/metrics"
	"github.com/DukeRupert/snapshot/internal/middleware"
	"github.com/DukeRupert/snapshot/internal/repository"
	"github.com/DukeRupert/snapshot/internal/service"
	"github.com/DukeRupert/snapshot/internal/storage"
	"github.com/DukeRupert/snapshot/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// ==========================================================================
	// Storage and background jobs
	// ==========================================================================

	gateway, localRoot, err := newGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	jobStore := repository.NewJobStore(db)

	var bgWorker *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		bgWorker, err = worker.New(jobStore, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		bgWorker.Register(jobs.NewCleanupRemoteHandler(gateway, logger))
		bgWorker.Start(ctx)
	}

	// ==========================================================================
	// Services and handlers
	// ==========================================================================

	serviceCfg := service.DefaultConfig()
	serviceCfg.IngestConcurrency = cfg.IngestConcurrency
	serviceCfg.RenderTimeout = cfg.RenderTimeout
	serviceCfg.UploadTimeout = cfg.UploadTimeout

	imageService := service.NewImageService(
		repository.NewStore(db),
		gateway,
		media.NewRenderer(),
		media.NewHasher(),
		worker.NewCleanupScheduler(jobStore),
		serviceCfg,
		logger,
	)
	imageHandler := handler.NewImageHandler(imageService, logger)

	uploadLimiter := middleware.NewRateLimiter(cfg.UploadRateLimit, cfg.UploadRateWindow, logger)
	defer uploadLimiter.Stop()

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			logger.Error("Health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics
	metricsAuth := middleware.NewBasicAuth("metrics", cfg.MetricsUsername, cfg.MetricsPassword)
	if !metricsAuth.Enabled() {
		logger.Warn("Metrics endpoint is unprotected; set METRICS_USERNAME and METRICS_PASSWORD")
	}
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Locally stored variants
	if localRoot != "" {
		mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(http.Dir(localRoot))))
	}

	imageHandler.RegisterRoutes(mux, uploadLimiter.Limit)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	stack := middleware.Stack(
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		metrics.Middleware,
		middleware.NewSecurityHeadersMiddleware(cfg.Env != "development").Handler,
	)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           stack(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "storage", cfg.StorageProvider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if bgWorker != nil {
		bgWorker.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newGateway builds the remote object gateway for the configured provider.
// For local storage it also returns the directory served under /files/.
func newGateway(cfg *internal.Config, logger *slog.Logger) (storage.Gateway, string, error) {
	gwCfg := storage.GatewayConfig{Prefix: cfg.StoragePrefix}

	switch cfg.StorageProvider {
	case storage.ProviderLocal:
		local, err := storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return storage.NewObjectGateway(local, gwCfg, logger), local.BasePath(), nil

	case storage.ProviderR2:
		r2, err := storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			Endpoint:        cfg.S3Endpoint,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return storage.NewObjectGateway(r2, gwCfg, logger), "", nil

	case storage.ProviderCloudinary:
		gw, err := storage.NewCloudinaryGateway(storage.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
		}, gwCfg, logger)
		if err != nil {
			return nil, "", err
		}
		return gw, "", nil

	default:
		return nil, "", fmt.Errorf("unknown storage provider: %s", cfg.StorageProvider)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
