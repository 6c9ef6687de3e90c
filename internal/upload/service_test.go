package upload

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/videoreview-api/internal/metrics"
	"github.com/maauso/videoreview-api/internal/storage"
)

// mockUploader implements Uploader for testing.
type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, localPath, userName, fileName, contentType string) (string, error) {
	args := m.Called(ctx, localPath, userName, fileName, contentType)
	return args.String(0), args.Error(1)
}

// blockingUploader waits on release before returning.
type blockingUploader struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingUploader) Upload(ctx context.Context, _, userName, fileName, _ string) (string, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
		return Key(userName, fileName), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func input(name string) SubmitInput {
	return SubmitInput{
		UserName:    "alice",
		FileName:    name,
		LocalPath:   "/tmp/users/alice/" + name,
		ContentType: "video/mp4",
		Size:        10,
	}
}

func waitForStatus(t *testing.T, svc *Service, id string, want Status) *Upload {
	t.Helper()
	var last *Upload
	require.Eventually(t, func() bool {
		u, err := svc.Get(context.Background(), id)
		if err != nil {
			return false
		}
		last = u
		return u.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &mockUploader{}, nil)

	assert.Equal(t, defaultWorkers, svc.workers)
	assert.Equal(t, defaultQueueSize, svc.queueSize)
	assert.Zero(t, svc.timeout)
	assert.Equal(t, defaultQueueSize, cap(svc.queue))
	assert.NotNil(t, svc.logger)
}

func TestNewService_Options(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(NewMemoryRepository(), &mockUploader{}, discardLogger(),
		WithWorkers(4),
		WithQueueSize(8),
		WithUploadTimeout(time.Minute),
		WithMetrics(m),
	)

	assert.Equal(t, 4, svc.workers)
	assert.Equal(t, 8, cap(svc.queue))
	assert.Equal(t, time.Minute, svc.timeout)
	assert.Same(t, m, svc.metrics)

	ignored := NewService(NewMemoryRepository(), &mockUploader{}, discardLogger(),
		WithWorkers(0), WithQueueSize(-1), WithUploadTimeout(-time.Second))
	assert.Equal(t, defaultWorkers, ignored.workers)
	assert.Equal(t, defaultQueueSize, ignored.queueSize)
	assert.Zero(t, ignored.timeout)
}

func TestService_Submit_Completes(t *testing.T) {
	uploader := &mockUploader{}
	uploader.On("Upload", mock.Anything, "/tmp/users/alice/a.mp4", "alice", "a.mp4", "video/mp4").
		Return("alice/a.mp4", nil).Once()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := NewService(NewMemoryRepository(), uploader, discardLogger(), WithMetrics(m))
	svc.Start(context.Background())
	defer svc.Stop()

	u, err := svc.Submit(context.Background(), input("a.mp4"))
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, u.Status)
	assert.Equal(t, "alice/a.mp4", u.Key)
	assert.Equal(t, int64(10), u.Size)

	done := waitForStatus(t, svc, u.ID, StatusCompleted)
	assert.Empty(t, done.Error)
	assert.False(t, done.StartedAt.IsZero())
	assert.False(t, done.CompletedAt.IsZero())

	uploader.AssertExpectations(t)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RemoteTotal.WithLabelValues(metrics.ResultSuccess)), 0)
}

func TestService_Submit_UploadFailureMarksFailed(t *testing.T) {
	uploader := &mockUploader{}
	cause := errors.New("access denied")
	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", cause)

	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(NewMemoryRepository(), uploader, discardLogger(), WithMetrics(m))
	svc.Start(context.Background())
	defer svc.Stop()

	u, err := svc.Submit(context.Background(), input("a.mp4"))
	require.NoError(t, err)

	failed := waitForStatus(t, svc, u.ID, StatusFailed)
	assert.Equal(t, "access denied", failed.Error)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RemoteTotal.WithLabelValues(metrics.ResultFailure)), 0)
}

func TestService_Submit_InvalidInput(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &mockUploader{}, discardLogger())

	for _, in := range []SubmitInput{
		{FileName: "a.mp4", LocalPath: "/p"},
		{UserName: "alice", LocalPath: "/p"},
		{UserName: "alice", FileName: "a.mp4"},
	} {
		_, err := svc.Submit(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestService_Submit_AfterStop(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &mockUploader{}, discardLogger())
	svc.Start(context.Background())
	svc.Stop()
	svc.Stop()

	_, err := svc.Submit(context.Background(), input("a.mp4"))
	assert.ErrorIs(t, err, ErrServiceStopped)
}

func TestService_Submit_BlocksWhenQueueFull(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &mockUploader{}, discardLogger(), WithQueueSize(1))
	// Workers are not started, so the queue never drains.

	_, err := svc.Submit(context.Background(), input("a.mp4"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.Submit(ctx, input("b.mp4"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	statuses := map[string]Status{}
	for _, u := range list {
		statuses[u.FileName] = u.Status
	}
	assert.Equal(t, StatusQueued, statuses["a.mp4"])
	assert.Equal(t, StatusFailed, statuses["b.mp4"])
}

func TestService_Stop_DrainsQueue(t *testing.T) {
	uploader := &blockingUploader{release: make(chan struct{})}
	svc := NewService(NewMemoryRepository(), uploader, discardLogger(), WithWorkers(1), WithQueueSize(4))
	svc.Start(context.Background())

	var ids []string
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		u, err := svc.Submit(context.Background(), input(name))
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	close(uploader.release)
	svc.Stop()

	for _, id := range ids {
		u, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, u.Status)
	}
	assert.Equal(t, int32(3), uploader.calls.Load())
}

func TestService_UploadSurvivesCallerCancellation(t *testing.T) {
	uploader := &blockingUploader{release: make(chan struct{})}
	svc := NewService(NewMemoryRepository(), uploader, discardLogger())

	startCtx, cancelStart := context.WithCancel(context.Background())
	svc.Start(startCtx)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	u, err := svc.Submit(reqCtx, input("a.mp4"))
	require.NoError(t, err)

	waitForStatus(t, svc, u.ID, StatusUploading)
	cancelReq()
	cancelStart()
	close(uploader.release)

	waitForStatus(t, svc, u.ID, StatusCompleted)
	svc.Stop()
}

func TestService_UploadTimeout(t *testing.T) {
	uploader := &blockingUploader{release: make(chan struct{})}
	svc := NewService(NewMemoryRepository(), uploader, discardLogger(), WithUploadTimeout(20*time.Millisecond))
	svc.Start(context.Background())
	defer svc.Stop()

	u, err := svc.Submit(context.Background(), input("a.mp4"))
	require.NoError(t, err)

	failed := waitForStatus(t, svc, u.ID, StatusFailed)
	assert.Contains(t, failed.Error, context.DeadlineExceeded.Error())
}

func TestService_GetAndList(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &mockUploader{}, discardLogger())

	_, err := svc.Get(context.Background(), "upl-missing")
	assert.ErrorIs(t, err, ErrUploadNotFound)

	u, err := svc.Submit(context.Background(), input("a.mp4"))
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_WithGateway_EndToEnd(t *testing.T) {
	store := storage.NewMemoryStore(0)
	svc := NewService(NewMemoryRepository(), NewGateway(store, discardLogger()), discardLogger())
	svc.Start(context.Background())
	defer svc.Stop()

	local := writeLocal(t, "videoReview-1-abcd1234.mp4", "payload")
	u, err := svc.Submit(context.Background(), SubmitInput{
		UserName:    "alice",
		FileName:    "videoReview-1-abcd1234.mp4",
		LocalPath:   local,
		ContentType: "video/mp4",
		Size:        7,
	})
	require.NoError(t, err)

	waitForStatus(t, svc, u.ID, StatusCompleted)
	assert.Equal(t, []string{"alice/videoReview-1-abcd1234.mp4"}, store.Keys())
	assert.NoFileExists(t, local)
}

func TestService_WithGateway_FailureKeepsLocalFile(t *testing.T) {
	svc := NewService(NewMemoryRepository(), NewGateway(failingStore{}, discardLogger()), discardLogger())
	svc.Start(context.Background())
	defer svc.Stop()

	local := writeLocal(t, "a.mp4", "payload")
	u, err := svc.Submit(context.Background(), SubmitInput{
		UserName: "alice", FileName: "a.mp4", LocalPath: local, ContentType: "video/mp4",
	})
	require.NoError(t, err)

	failed := waitForStatus(t, svc, u.ID, StatusFailed)
	assert.Contains(t, failed.Error, ErrRemoteUploadFailed.Error())
	assert.FileExists(t, local)
}
