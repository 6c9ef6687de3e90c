// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Supported object store backends.
const (
	BackendS3     = "s3"
	BackendMinio  = "minio"
	BackendMemory = "memory"
)

// Static errors for configuration validation.
var (
	// ErrS3BucketRequired is returned when the s3 backend has no S3_BUCKET.
	ErrS3BucketRequired = errors.New("config: S3_BUCKET is required for the s3 backend")
	// ErrS3RegionRequired is returned when the s3 backend has no S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required for the s3 backend")
	// ErrMinioConfigIncomplete is returned when a MinIO setting is missing.
	ErrMinioConfigIncomplete = errors.New("config: MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY and MINIO_BUCKET are required for the minio backend")
	// ErrUnknownStoreBackend is returned for an unsupported STORE_BACKEND.
	ErrUnknownStoreBackend = errors.New("config: unknown STORE_BACKEND")
	// ErrInvalidWorkers is returned when worker or queue settings are not positive.
	ErrInvalidWorkers = errors.New("config: UPLOAD_WORKERS and UPLOAD_QUEUE_SIZE must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	APIPrefix      string   `env:"API_PREFIX" json:"api_prefix,omitempty"`
	StaticDir      string   `env:"STATIC_DIR" json:"static_dir,omitempty"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Staging settings
	UploadDir      string `env:"UPLOAD_DIR, default=/tmp/videoreview/uploads" json:"upload_dir"`
	UserDir        string `env:"USER_DIR" json:"user_dir,omitempty"` // Defaults to {UploadDir}/users
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES, default=524288000" json:"max_upload_bytes"`

	// Object store settings
	StoreBackend string `env:"STORE_BACKEND, default=s3" json:"store_backend"` // "s3", "minio" or "memory"

	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3PageSize         int32  `env:"S3_PAGE_SIZE, default=1000" json:"s3_page_size"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	MinioEndpoint  string `env:"MINIO_ENDPOINT" json:"minio_endpoint,omitempty"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY" json:"-"` // Masked in JSON
	MinioSecretKey string `env:"MINIO_SECRET_KEY" json:"-"` // Masked in JSON
	MinioBucket    string `env:"MINIO_BUCKET" json:"minio_bucket,omitempty"`

	// Upload pipeline settings
	UploadWorkers    int `env:"UPLOAD_WORKERS, default=2" json:"upload_workers"`
	UploadQueueSize  int `env:"UPLOAD_QUEUE_SIZE, default=64" json:"upload_queue_size"`
	UploadTimeoutSec int `env:"UPLOAD_TIMEOUT_SEC, default=0" json:"upload_timeout_sec"` // 0 disables the timeout

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// Load reads configuration from the process environment and validates it.
func Load() (*Config, error) {
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom reads configuration through lookuper and validates it.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend and the pipeline are configured.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendS3:
		if c.S3Bucket == "" {
			return ErrS3BucketRequired
		}
		if c.S3Region == "" {
			return ErrS3RegionRequired
		}
	case BackendMinio:
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" || c.MinioBucket == "" {
			return ErrMinioConfigIncomplete
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreBackend, c.StoreBackend)
	}

	if c.UploadWorkers < 1 || c.UploadQueueSize < 1 {
		return ErrInvalidWorkers
	}
	return nil
}

// UploadTimeout returns the per-upload timeout, zero meaning none.
func (c *Config) UploadTimeout() time.Duration {
	if c.UploadTimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.UploadTimeoutSec) * time.Second
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, APIPrefix: %s, UploadDir: %s, MaxUploadBytes: %d, StoreBackend: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, MinioEndpoint: %s, MinioBucket: %s, MinioAccessKey: %s, UploadWorkers: %d, UploadQueueSize: %d, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.APIPrefix,
		c.UploadDir,
		c.MaxUploadBytes,
		c.StoreBackend,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		c.MinioEndpoint,
		c.MinioBucket,
		mask(c.MinioAccessKey),
		c.UploadWorkers,
		c.UploadQueueSize,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
