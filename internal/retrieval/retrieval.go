// Package retrieval resolves stored keys to downloadable byte streams.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/maauso/videoreview-api/internal/storage"
)

// Static errors for retrieval operations.
var (
	// ErrMissingParameter is returned when no key is supplied.
	ErrMissingParameter = errors.New("retrieval: key is required")
	// ErrNotFound is returned when the key does not exist in the store.
	ErrNotFound = errors.New("retrieval: file not found")
	// ErrStoreUnavailable is returned for transport-level store failures.
	ErrStoreUnavailable = errors.New("retrieval: store unavailable")
)

const defaultContentType = "application/octet-stream"

// File is an object opened for download.
// The caller is responsible for closing Body.
type File struct {
	// Key is the object key that was requested.
	Key string
	// Name is the suggested download filename (the last key segment).
	Name string
	// ContentType is the stored content type, or application/octet-stream.
	ContentType string
	// Size is the payload length, or -1 when unknown.
	Size int64
	// Body streams the payload.
	Body io.ReadCloser
}

// Service fetches objects for download.
type Service struct {
	store storage.ObjectStore
}

// NewService creates a retrieval Service over store.
func NewService(store storage.ObjectStore) *Service {
	return &Service{store: store}
}

// Download opens key for streaming. Existence is checked by the store
// before a File is returned, so no partial stream is ever handed out for
// a missing key.
func (s *Service) Download(ctx context.Context, key string) (*File, error) {
	if FileName(key) == "" {
		return nil, ErrMissingParameter
	}

	obj, err := s.store.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	return &File{
		Key:         key,
		Name:        FileName(key),
		ContentType: contentType,
		Size:        obj.Size,
		Body:        obj.Body,
	}, nil
}

// FileName returns the last non-empty "/"-separated segment of key, or ""
// when key has none.
func FileName(key string) string {
	key = strings.TrimRight(key, "/")
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
