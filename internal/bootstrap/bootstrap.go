// Package bootstrap provides dependency initialization for the video review API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maauso/videoreview-api/internal/config"
	"github.com/maauso/videoreview-api/internal/keytree"
	"github.com/maauso/videoreview-api/internal/metrics"
	"github.com/maauso/videoreview-api/internal/retrieval"
	"github.com/maauso/videoreview-api/internal/server"
	"github.com/maauso/videoreview-api/internal/staging"
	"github.com/maauso/videoreview-api/internal/storage"
	"github.com/maauso/videoreview-api/internal/upload"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Store    storage.ObjectStore
	Staging  *staging.Store
	Uploads  *upload.Service
	Tree     *keytree.Builder
	Files    *retrieval.Service
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Handler  http.Handler
}

// NewDependencies creates and initializes all dependencies for the application.
// The upload workers are not started; Serve starts and stops them.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := NewStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	stagingOpts := []staging.Option{staging.WithMaxBytes(cfg.MaxUploadBytes)}
	if cfg.UserDir != "" {
		stagingOpts = append(stagingOpts, staging.WithUserDir(cfg.UserDir))
	}
	stage, err := staging.New(cfg.UploadDir, stagingOpts...)
	if err != nil {
		return nil, fmt.Errorf("create staging store: %w", err)
	}
	logger.Info("staging configured",
		slog.String("upload_dir", stage.Dir()),
		slog.String("user_dir", stage.UserDir()),
		slog.Int64("max_bytes", stage.MaxBytes()),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	uploads := upload.NewService(
		upload.NewMemoryRepository(),
		upload.NewGateway(store, logger),
		logger,
		upload.WithWorkers(cfg.UploadWorkers),
		upload.WithQueueSize(cfg.UploadQueueSize),
		upload.WithUploadTimeout(cfg.UploadTimeout()),
		upload.WithMetrics(m),
	)

	tree := keytree.NewBuilder(store)
	files := retrieval.NewService(store)

	prefix := server.NormalizePrefix(cfg.APIPrefix)
	handlers := server.NewHandlers(stage, uploads, tree, files, logger,
		server.WithMetrics(m),
		server.WithAPIPrefix(prefix),
	)
	router := server.NewRouter(handlers, logger, server.Config{
		APIPrefix:      prefix,
		StaticDir:      cfg.StaticDir,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	})

	return &Dependencies{
		Store:    store,
		Staging:  stage,
		Uploads:  uploads,
		Tree:     tree,
		Files:    files,
		Metrics:  m,
		Registry: registry,
		Handler:  router,
	}, nil
}

// NewStore creates the object store selected by cfg.StoreBackend.
func NewStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ObjectStore, error) {
	switch cfg.StoreBackend {
	case config.BackendS3:
		s3Store, err := storage.NewS3Store(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PageSize:        cfg.S3PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil

	case config.BackendMinio:
		minioStore, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			PageSize:  int(cfg.S3PageSize),
		})
		if err != nil {
			return nil, fmt.Errorf("create MinIO storage: %w", err)
		}
		if err := minioStore.CheckBucket(ctx); err != nil {
			return nil, fmt.Errorf("check MinIO bucket: %w", err)
		}
		logger.Info("MinIO storage configured",
			slog.String("endpoint", cfg.MinioEndpoint),
			slog.String("bucket", cfg.MinioBucket),
		)
		return minioStore, nil

	case config.BackendMemory:
		logger.Warn("in-memory storage configured, objects are lost on restart")
		return storage.NewMemoryStore(int(cfg.S3PageSize)), nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStoreBackend, cfg.StoreBackend)
	}
}

// Serve runs the HTTP server and the upload workers until ctx is done or
// the listener fails. On shutdown it stops accepting requests first, then
// drains queued uploads.
func (d *Dependencies) Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           d.Handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		// Bodies can reach MAX_UPLOAD_BYTES, so reads and writes are not time-limited.
	}

	d.Uploads.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("draining upload queue...")
	d.Uploads.Stop()

	if serveErr == nil {
		logger.Info("server stopped gracefully")
	}
	return serveErr
}
