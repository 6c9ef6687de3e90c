package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Compile-time check that MinioStore implements ObjectStore.
var _ ObjectStore = (*MinioStore)(nil)

// ErrInvalidEndpoint is returned when the MinIO endpoint cannot be parsed.
var ErrInvalidEndpoint = errors.New("storage: invalid endpoint")

const defaultMinioPageSize = 1000

// MinioConfig holds the configuration for a MinIO (or other S3-compatible) store.
type MinioConfig struct {
	// Endpoint accepts "host:port" or a full "http(s)://host:port" URL.
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	PageSize  int
}

// MinioStore implements ObjectStore using minio-go.
type MinioStore struct {
	client   *minio.Client
	bucket   string
	pageSize int
}

// NewMinioStore creates a MinioStore. It does not contact the server;
// use CheckBucket to verify connectivity at startup.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	endpoint, secure, err := normaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultMinioPageSize
	}

	return &MinioStore{client: client, bucket: cfg.Bucket, pageSize: pageSize}, nil
}

// CheckBucket verifies that the configured bucket exists.
func (s *MinioStore) CheckBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !exists {
		return fmt.Errorf("%w: bucket %s does not exist", ErrUnavailable, s.bucket)
	}
	return nil
}

// PutObject uploads body to key.
func (s *MinioStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classifyMinioError("put object", err)
	}
	return nil
}

// ListObjects returns up to pageSize keys following continuationToken.
// The continuation token is the last key of the previous page, used as StartAfter.
func (s *MinioStore) ListObjects(ctx context.Context, continuationToken string) (Page, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Recursive:  true,
		StartAfter: continuationToken,
		MaxKeys:    s.pageSize,
	})

	page := Page{Keys: make([]string, 0, s.pageSize)}
	for obj := range objects {
		if obj.Err != nil {
			return Page{}, classifyMinioError("list objects", obj.Err)
		}
		page.Keys = append(page.Keys, obj.Key)
		if len(page.Keys) == s.pageSize {
			// More objects may follow; the caller asks again from here.
			page.NextToken = obj.Key
			break
		}
	}
	return page, nil
}

// GetObject opens key for reading. The object is stat'ed first so a
// missing key is reported before the caller starts streaming.
func (s *MinioStore) GetObject(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioError("get object", err)
	}

	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, classifyMinioError("stat object", err)
	}

	return &Object{
		Key:         key,
		Body:        obj,
		ContentType: info.ContentType,
		Size:        info.Size,
	}, nil
}

func classifyMinioError(op string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// normaliseEndpoint accepts either "minio:9000" or "http://minio:9000" /
// "https://minio:9000" and returns the host part plus the TLS flag.
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("%w: empty endpoint", ErrInvalidEndpoint)
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("%w: endpoint must not contain a path", ErrInvalidEndpoint)
		}
		return u.Host, u.Scheme == "https", nil
	}

	// No scheme provided, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}
