package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/videoreview-api/internal/metrics"
)

// Service errors.
var (
	// ErrServiceStopped is returned by Submit after Stop.
	ErrServiceStopped = errors.New("upload: service stopped")
	// ErrInvalidInput is returned when a submission lacks a required field.
	ErrInvalidInput = errors.New("upload: invalid input")
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 64
)

// SubmitInput describes a relocated file waiting to be pushed.
type SubmitInput struct {
	UserName    string
	FileName    string
	LocalPath   string
	ContentType string
	Size        int64
}

func (in SubmitInput) validate() error {
	switch {
	case in.UserName == "":
		return fmt.Errorf("%w: user name is required", ErrInvalidInput)
	case in.FileName == "":
		return fmt.Errorf("%w: file name is required", ErrInvalidInput)
	case in.LocalPath == "":
		return fmt.Errorf("%w: local path is required", ErrInvalidInput)
	}
	return nil
}

// Service runs remote uploads on a fixed pool of background workers.
type Service struct {
	repo     Repository
	uploader Uploader
	logger   *slog.Logger
	metrics  *metrics.Metrics

	workers   int
	queueSize int
	timeout   time.Duration

	queue chan string
	done  chan struct{}

	// mu guards stopped and the send side of queue.
	mu      sync.RWMutex
	stopped bool

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a Service.
type Option func(*Service)

// WithWorkers sets the number of concurrent uploads. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize sets how many uploads may wait for a worker. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithUploadTimeout bounds each remote upload. Zero means no timeout.
func WithUploadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service. Call Start before submitting.
func NewService(repo Repository, uploader Uploader, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:      repo,
		uploader:  uploader,
		logger:    logger,
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = make(chan string, s.queueSize)
	return s
}

// Start launches the workers. Uploads run on a context detached from ctx's
// cancellation, so in-flight pushes finish even when ctx is cancelled.
// Workers exit when Stop drains the queue.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		base := context.WithoutCancel(ctx)
		s.logger.Info("upload workers starting",
			slog.Int("workers", s.workers),
			slog.Int("queue_size", s.queueSize),
		)
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.worker(base, i)
		}
	})
}

// Stop rejects new submissions, waits for queued uploads to finish and
// returns. It is safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.stopped = true
		close(s.queue)
		s.mu.Unlock()

		s.wg.Wait()
		s.logger.Info("upload workers stopped")
	})
}

// Submit records a QUEUED upload and hands it to the workers. It blocks
// while the queue is full, until ctx is done or the service stops.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Upload, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return nil, ErrServiceStopped
	}

	u := New(in.UserName, in.FileName)
	u.LocalPath = in.LocalPath
	u.ContentType = in.ContentType
	u.Size = in.Size

	if err := s.repo.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	select {
	case s.queue <- u.ID:
		s.metrics.SetQueueDepth(len(s.queue))
		s.logger.Info("upload queued",
			slog.String("upload_id", u.ID),
			slog.String("key", u.Key),
			slog.Int64("size", u.Size),
		)
		return u.Clone(), nil
	case <-s.done:
		s.abandon(u, ErrServiceStopped)
		return nil, ErrServiceStopped
	case <-ctx.Done():
		s.abandon(u, ctx.Err())
		return nil, ctx.Err()
	}
}

// abandon marks a record that never reached the queue as failed.
func (s *Service) abandon(u *Upload, cause error) {
	if err := u.Fail(cause.Error()); err != nil {
		return
	}
	if err := s.repo.Save(context.Background(), u); err != nil {
		s.logger.Error("failed to save upload",
			slog.String("upload_id", u.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns a snapshot of the upload, or ErrUploadNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Upload, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all uploads, newest first.
func (s *Service) List(ctx context.Context) ([]*Upload, error) {
	return s.repo.List(ctx)
}

func (s *Service) worker(ctx context.Context, n int) {
	defer s.wg.Done()
	for uploadID := range s.queue {
		s.metrics.SetQueueDepth(len(s.queue))
		s.process(ctx, uploadID)
	}
	s.logger.Debug("upload worker exiting", slog.Int("worker", n))
}

func (s *Service) process(ctx context.Context, uploadID string) {
	logger := s.logger.With(slog.String("upload_id", uploadID))

	u, err := s.repo.FindByID(ctx, uploadID)
	if err != nil {
		logger.Error("queued upload vanished", slog.String("error", err.Error()))
		return
	}
	if err := u.Start(); err != nil {
		logger.Error("cannot start upload",
			slog.String("status", string(u.GetStatus())),
			slog.String("error", err.Error()),
		)
		return
	}
	s.save(ctx, logger, u)

	uploadCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	key, err := s.uploader.Upload(uploadCtx, u.LocalPath, u.UserName, u.FileName, u.ContentType)
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.RecordRemoteUpload(metrics.ResultFailure, elapsed)
		logger.Error("RemoteUploadFailed",
			slog.String("key", u.Key),
			slog.String("local_path", u.LocalPath),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		_ = u.Fail(err.Error())
		s.save(ctx, logger, u)
		return
	}

	s.metrics.RecordRemoteUpload(metrics.ResultSuccess, elapsed)
	_ = u.Complete(key)
	s.save(ctx, logger, u)
	logger.Info("upload completed",
		slog.String("key", key),
		slog.Duration("duration", elapsed),
	)
}

func (s *Service) save(ctx context.Context, logger *slog.Logger, u *Upload) {
	if err := s.repo.Save(ctx, u); err != nil {
		logger.Error("failed to save upload",
			slog.String("status", string(u.GetStatus())),
			slog.String("error", err.Error()),
		)
	}
}
