// Package upload pushes staged videos to the object store in the background
// and tracks every push with a status record.
package upload

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/videoreview-api/internal/upload/id"
)

// Status represents the current state of an Upload.
type Status string

const (
	// StatusQueued indicates the upload is waiting for a worker.
	StatusQueued Status = "QUEUED"
	// StatusUploading indicates a worker is pushing the file.
	StatusUploading Status = "UPLOADING"
	// StatusCompleted indicates the object was stored and the local copy removed.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the push failed. The local copy is kept.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("upload: invalid state transition")

var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusUploading, StatusFailed},
	StatusUploading: {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Upload is the status record of one background push.
type Upload struct {
	mu sync.RWMutex

	// ID is the unique identifier for this upload.
	ID string
	// UserName owns the upload and is the first key segment.
	UserName string
	// FileName is the generated staged filename.
	FileName string
	// Key is the destination object key, {UserName}/{FileName}.
	Key string
	// LocalPath is the relocated file on local disk.
	LocalPath string
	// ContentType is the client-declared media type.
	ContentType string
	// Size is the payload length in bytes.
	Size int64
	// Status is the current state.
	Status Status
	// Error holds the failure message when Status is FAILED.
	Error string
	// CreatedAt is when the record was created.
	CreatedAt time.Time
	// UpdatedAt is when the record was last changed.
	UpdatedAt time.Time
	// StartedAt is when a worker picked the upload.
	StartedAt time.Time
	// CompletedAt is when the upload reached a terminal state.
	CompletedAt time.Time
}

// New creates a QUEUED record with a generated ID.
func New(userName, fileName string) *Upload {
	return NewWithID(id.Generate(), userName, fileName)
}

// NewWithID creates a QUEUED record with the given ID.
func NewWithID(uploadID, userName, fileName string) *Upload {
	now := time.Now()
	return &Upload{
		ID:        uploadID,
		UserName:  userName,
		FileName:  fileName,
		Key:       Key(userName, fileName),
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key returns the object key for a user's file.
func Key(userName, fileName string) string {
	return userName + "/" + fileName
}

// TransitionTo changes the status, or returns ErrInvalidTransition.
func (u *Upload) TransitionTo(status Status) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.transitionLocked(status)
}

func (u *Upload) transitionLocked(status Status) error {
	if !canTransition(u.Status, status) {
		return ErrInvalidTransition
	}

	u.Status = status
	u.UpdatedAt = time.Now()

	switch status {
	case StatusUploading:
		u.StartedAt = u.UpdatedAt
	case StatusCompleted, StatusFailed:
		u.CompletedAt = u.UpdatedAt
	}
	return nil
}

// Start moves a QUEUED upload to UPLOADING.
func (u *Upload) Start() error {
	return u.TransitionTo(StatusUploading)
}

// Complete marks the upload as stored under key.
func (u *Upload) Complete(key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	u.Key = key
	return nil
}

// Fail marks the upload as failed with errMsg.
func (u *Upload) Fail(errMsg string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.transitionLocked(StatusFailed); err != nil {
		return err
	}
	u.Error = errMsg
	return nil
}

// GetStatus returns the current status (thread-safe).
func (u *Upload) GetStatus() Status {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.Status
}

// IsTerminal returns true if the upload is COMPLETED or FAILED.
func (u *Upload) IsTerminal() bool {
	s := u.GetStatus()
	return s == StatusCompleted || s == StatusFailed
}

// Clone creates a copy of the record for safe reads.
func (u *Upload) Clone() *Upload {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return &Upload{
		ID:          u.ID,
		UserName:    u.UserName,
		FileName:    u.FileName,
		Key:         u.Key,
		LocalPath:   u.LocalPath,
		ContentType: u.ContentType,
		Size:        u.Size,
		Status:      u.Status,
		Error:       u.Error,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		StartedAt:   u.StartedAt,
		CompletedAt: u.CompletedAt,
	}
}
