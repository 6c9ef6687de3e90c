package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func isUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		endpoint string
		secure   bool
		wantErr  bool
	}{
		{"host and port", "minio:9000", "minio:9000", false, false},
		{"http url", "http://minio:9000", "minio:9000", false, false},
		{"https url", "https://s3.example.com", "s3.example.com", true, false},
		{"trailing slash", "http://minio:9000/", "minio:9000", false, false},
		{"surrounding spaces", "  minio:9000 ", "minio:9000", false, false},
		{"empty", "", "", false, true},
		{"path not allowed", "http://minio:9000/bucket", "", false, true},
		{"missing host", "http://", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, secure, err := normaliseEndpoint(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidEndpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.endpoint, endpoint)
			assert.Equal(t, tt.secure, secure)
		})
	}
}

func TestNewMinioStore(t *testing.T) {
	t.Run("bucket required", func(t *testing.T) {
		_, err := NewMinioStore(MinioConfig{Endpoint: "minio:9000"})
		assert.ErrorIs(t, err, ErrBucketRequired)
	})

	t.Run("invalid endpoint", func(t *testing.T) {
		_, err := NewMinioStore(MinioConfig{Bucket: "videos"})
		assert.ErrorIs(t, err, ErrInvalidEndpoint)
	})

	t.Run("default page size", func(t *testing.T) {
		store, err := NewMinioStore(MinioConfig{
			Endpoint:  "http://localhost:9000",
			AccessKey: "minio",
			SecretKey: "minio123",
			Bucket:    "videos",
		})
		require.NoError(t, err)
		assert.Equal(t, defaultMinioPageSize, store.pageSize)
		assert.Equal(t, "videos", store.bucket)
	})
}

func TestClassifyMinioError(t *testing.T) {
	err := classifyMinioError("get object", errors.New("dial tcp: connection refused"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
}
