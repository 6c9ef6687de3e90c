package upload

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrUploadNotFound is returned when an upload cannot be found by ID.
var ErrUploadNotFound = errors.New("upload: not found")

// Repository persists upload status records.
type Repository interface {
	// Save inserts or replaces an upload.
	Save(ctx context.Context, u *Upload) error

	// FindByID returns ErrUploadNotFound if the upload does not exist.
	FindByID(ctx context.Context, id string) (*Upload, error)

	// List returns all uploads, newest first.
	List(ctx context.Context) ([]*Upload, error)
}

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps records in a map guarded by an RWMutex.
// Records do not survive a restart.
type MemoryRepository struct {
	mu      sync.RWMutex
	uploads map[string]*Upload
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		uploads: make(map[string]*Upload),
	}
}

// Save stores a clone so later changes by the caller are not visible.
func (r *MemoryRepository) Save(ctx context.Context, u *Upload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[u.ID] = u.Clone()
	return nil
}

// FindByID returns a clone of the stored record.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.uploads[id]
	if !ok {
		return nil, ErrUploadNotFound
	}
	return u.Clone(), nil
}

// List returns clones ordered by CreatedAt descending, then by ID.
func (r *MemoryRepository) List(_ context.Context) ([]*Upload, error) {
	r.mu.RLock()
	result := make([]*Upload, 0, len(r.uploads))
	for _, u := range r.uploads {
		result = append(result, u.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}
