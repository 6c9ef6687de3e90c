// Package storage provides the object store port used by the upload pipeline,
// the key tree builder and the retrieval service, together with S3, MinIO and
// in-memory implementations.
package storage

import (
	"context"
	"errors"
	"io"
)

// Static errors for object store operations.
var (
	// ErrNotFound is returned when the requested key does not exist in the store.
	ErrNotFound = errors.New("storage: object not found")
	// ErrUnavailable is returned for transport, credential or permission failures.
	ErrUnavailable = errors.New("storage: store unavailable")
	// ErrPaginationLoop is returned when a store hands back a continuation token it already returned.
	ErrPaginationLoop = errors.New("storage: continuation token repeated")
)

// Page is a single page of a key listing.
type Page struct {
	// Keys are the object keys in this page.
	Keys []string
	// NextToken is the continuation token for the next page.
	// An empty token means this was the last page.
	NextToken string
}

// Object is a stored object opened for reading.
// The caller is responsible for closing Body.
type Object struct {
	Key         string
	Body        io.ReadCloser
	ContentType string
	// Size is the payload length in bytes, or -1 when unknown.
	Size int64
}

// ObjectStore defines the interface for the remote object store.
// Implementations map their "no such key" condition to ErrNotFound and
// every other failure to an error wrapping ErrUnavailable.
type ObjectStore interface {
	// PutObject stores the full payload under key with the given content type.
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// ListObjects returns one page of keys. An empty continuationToken
	// requests the first page.
	ListObjects(ctx context.Context, continuationToken string) (Page, error)

	// GetObject opens the object stored under key.
	// Implementations must report a missing key before any payload is returned.
	GetObject(ctx context.Context, key string) (*Object, error)
}
