package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
)

// Compile-time check that MemoryStore implements ObjectStore.
var _ ObjectStore = (*MemoryStore)(nil)

const defaultMemoryPageSize = 1000

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore is an in-memory implementation of ObjectStore.
// It uses a map with RWMutex for thread-safe access.
// Suitable for development and testing; use S3 or MinIO in production.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string]memoryObject
	pageSize int
}

// NewMemoryStore creates an empty in-memory store. A pageSize <= 0 uses the default.
func NewMemoryStore(pageSize int) *MemoryStore {
	if pageSize <= 0 {
		pageSize = defaultMemoryPageSize
	}
	return &MemoryStore{
		objects:  make(map[string]memoryObject),
		pageSize: pageSize,
	}
}

// PutObject stores a copy of body under key, replacing any previous object.
func (s *MemoryStore) PutObject(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	default:
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: data, contentType: contentType}
	return nil
}

// ListObjects returns keys in lexical order. The continuation token is the
// decimal offset of the next page.
func (s *MemoryStore) ListObjects(_ context.Context, continuationToken string) (Page, error) {
	offset := 0
	if continuationToken != "" {
		n, err := strconv.Atoi(continuationToken)
		if err != nil || n < 0 {
			return Page{}, fmt.Errorf("%w: invalid continuation token %q", ErrUnavailable, continuationToken)
		}
		offset = n
	}

	keys := s.Keys()
	if offset > len(keys) {
		offset = len(keys)
	}
	end := offset + s.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	page := Page{Keys: keys[offset:end]}
	if end < len(keys) {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetObject returns a reader over a copy of the stored payload.
func (s *MemoryStore) GetObject(_ context.Context, key string) (*Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get object %s: %w", key, ErrNotFound)
	}

	return &Object{
		Key:         key,
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
	}, nil
}

// Keys returns all stored keys in lexical order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
