package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/maauso/videoreview-api/internal/storage"
)

// ErrRemoteUploadFailed is returned when the object store rejects or cannot
// receive a file. The local copy is kept.
var ErrRemoteUploadFailed = errors.New("upload: remote upload failed")

// Uploader pushes a local file to the object store.
type Uploader interface {
	Upload(ctx context.Context, localPath, userName, fileName, contentType string) (string, error)
}

// Compile-time check that Gateway implements Uploader.
var _ Uploader = (*Gateway)(nil)

// Gateway copies relocated files into the object store and removes the
// local copy on success.
type Gateway struct {
	store  storage.ObjectStore
	logger *slog.Logger
}

// NewGateway creates a Gateway over store.
func NewGateway(store storage.ObjectStore, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: store, logger: logger}
}

// Upload stores the file at localPath under {userName}/{fileName} and
// returns the key. The whole file is read into memory and sent with one
// PutObject call. A failed local cleanup is logged and does not fail the
// upload.
func (g *Gateway) Upload(ctx context.Context, localPath, userName, fileName, contentType string) (string, error) {
	key := Key(userName, fileName)

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrRemoteUploadFailed, localPath, err)
	}

	start := time.Now()
	if err := g.store.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("%w: put %s: %w", ErrRemoteUploadFailed, key, err)
	}

	g.logger.Info("object stored",
		slog.String("key", key),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	)

	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		g.logger.Warn("failed to remove local copy",
			slog.String("path", localPath),
			slog.String("error", err.Error()),
		)
	}

	return key, nil
}
