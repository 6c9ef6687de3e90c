package retrieval

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/videoreview-api/internal/storage"
)

// mockStore implements storage.ObjectStore for testing.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, body, size, contentType)
	return args.Error(0)
}

func (m *mockStore) ListObjects(ctx context.Context, token string) (storage.Page, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(storage.Page), args.Error(1)
}

func (m *mockStore) GetObject(ctx context.Context, key string) (*storage.Object, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Object), args.Error(1)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"alice/videoReview-1.mp4", "videoReview-1.mp4"},
		{"a/b/c/d.mkv", "d.mkv"},
		{"top.mov", "top.mov"},
		{"dir/", "dir"},
		{"alice/clips//", "clips"},
		{"/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.key))
		})
	}
}

func TestDownload_Success(t *testing.T) {
	store := storage.NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, store.PutObject(ctx, "alice/clip.mp4", strings.NewReader("video"), 5, "video/mp4"))

	svc := NewService(store)
	file, err := svc.Download(ctx, "alice/clip.mp4")
	require.NoError(t, err)
	defer func() { _ = file.Body.Close() }()

	assert.Equal(t, "alice/clip.mp4", file.Key)
	assert.Equal(t, "clip.mp4", file.Name)
	assert.Equal(t, "video/mp4", file.ContentType)
	assert.Equal(t, int64(5), file.Size)

	data, err := io.ReadAll(file.Body)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))
}

func TestDownload_DefaultContentType(t *testing.T) {
	store := storage.NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, store.PutObject(ctx, "bob/c.mov", strings.NewReader("x"), 1, ""))

	file, err := NewService(store).Download(ctx, "bob/c.mov")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", file.ContentType)
}

func TestDownload_MissingParameter(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store)

	for _, key := range []string{"", "/", "//"} {
		_, err := svc.Download(context.Background(), key)
		assert.ErrorIs(t, err, ErrMissingParameter, "key %q", key)
	}
	store.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything)
}

func TestDownload_NotFound(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(0))

	file, err := svc.Download(context.Background(), "missing/key")
	assert.Nil(t, file)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestDownload_StoreUnavailable(t *testing.T) {
	store := &mockStore{}
	cause := errors.New("dial tcp: connection refused")
	store.On("GetObject", mock.Anything, "alice/a.mp4").
		Return(nil, errors.Join(storage.ErrUnavailable, cause))

	_, err := NewService(store).Download(context.Background(), "alice/a.mp4")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	store.AssertExpectations(t)
}
