// Package staging persists incoming video uploads to a local scratch
// directory and relocates them into per-user directories before they are
// forwarded to the object store.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Static errors for staging operations.
var (
	// ErrInvalidFileType is returned when the original filename has an extension outside the accepted set.
	ErrInvalidFileType = errors.New("staging: only MP4, MOV, WMV, AVI, MKV or WebM files are accepted")
	// ErrPayloadTooLarge is returned when the upload exceeds the configured maximum size.
	ErrPayloadTooLarge = errors.New("staging: payload too large")
	// ErrRelocationFailed is returned when a staged file cannot be moved into the user directory.
	ErrRelocationFailed = errors.New("staging: relocation failed")
	// ErrInvalidUserName is returned when the user name cannot be used as a single path segment.
	ErrInvalidUserName = errors.New("staging: invalid user name")
)

// DefaultMaxBytes is the default upload size limit (500 MiB).
const DefaultMaxBytes int64 = 500 * 1024 * 1024

// MaxUserNameBytes bounds the encoded length of a user directory name.
const MaxUserNameBytes = 128

var acceptedExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".wmv":  {},
	".avi":  {},
	".mkv":  {},
	".webm": {},
}

// AcceptedExtension reports whether name carries one of the accepted video
// extensions. Matching is case-insensitive and looks at the extension only.
func AcceptedExtension(name string) bool {
	_, ok := acceptedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Upload describes an incoming file before it touches the disk.
type Upload struct {
	// FieldName is the form field the file arrived in; it prefixes the staged filename.
	FieldName string
	// OriginalName is the client-supplied filename.
	OriginalName string
	// ContentType is the client-declared content type.
	ContentType string
	// Body is the file payload.
	Body io.Reader
}

// StagedFile is an upload persisted on local disk.
type StagedFile struct {
	// Path is the current location of the file.
	Path string
	// FileName is the generated filename, preserved across relocation.
	FileName string
	// Size is the number of bytes written.
	Size int64
	// ContentType is the client-declared content type.
	ContentType string
}

// Store stages uploads under a scratch directory and relocates them into
// per-user directories.
type Store struct {
	dir      string
	userDir  string
	maxBytes int64
	now      func() time.Time
	suffix   func() string
}

// Option is a function that configures a Store.
type Option func(*Store)

// WithMaxBytes sets the maximum accepted payload size.
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithUserDir sets the root of the per-user directories.
func WithUserDir(dir string) Option {
	return func(s *Store) {
		if dir != "" {
			s.userDir = dir
		}
	}
}

// WithClock overrides the time source used to name staged files.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithSuffix overrides the random suffix appended to staged filenames.
func WithSuffix(suffix func() string) Option {
	return func(s *Store) {
		s.suffix = suffix
	}
}

// New creates a Store rooted at dir.
// If dir is empty, a directory under os.TempDir() is used.
// The scratch and user directories are created if they don't exist.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "videoreview", "uploads")
	}

	s := &Store{
		dir:      dir,
		userDir:  filepath.Join(dir, "users"),
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
		suffix:   randomSuffix,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	if err := os.MkdirAll(s.userDir, 0750); err != nil {
		return nil, fmt.Errorf("create user directory: %w", err)
	}

	return s, nil
}

// Dir returns the scratch directory path.
func (s *Store) Dir() string {
	return s.dir
}

// UserDir returns the root of the per-user directories.
func (s *Store) UserDir() string {
	return s.userDir
}

// MaxBytes returns the maximum accepted payload size.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Stage validates the upload extension and writes the payload into the
// scratch directory. Payloads larger than MaxBytes are rejected as soon as
// the limit is crossed and the partial file is removed.
func (s *Store) Stage(ctx context.Context, up Upload) (*StagedFile, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if !AcceptedExtension(up.OriginalName) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFileType, up.OriginalName)
	}

	fileName := s.fileName(up)
	path := filepath.Join(s.dir, fileName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640) // #nosec G304 - name is generated
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(up.Body, s.maxBytes+1))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("write staged file: %w", err)
	}
	if n > s.maxBytes {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, s.maxBytes)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close staged file: %w", err)
	}

	return &StagedFile{
		Path:        path,
		FileName:    fileName,
		Size:        n,
		ContentType: up.ContentType,
	}, nil
}

// Relocate moves a staged file into the directory of userName, keeping its
// generated filename. The move is a rename; when it fails the staged file
// is left where it was and ErrRelocationFailed is returned.
func (s *Store) Relocate(ctx context.Context, staged *StagedFile, userName string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := ValidateUserName(userName); err != nil {
		return "", err
	}

	dir := filepath.Join(s.userDir, userName)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("%w: create user directory: %w", ErrRelocationFailed, err)
	}

	finalPath := filepath.Join(dir, staged.FileName)
	if err := os.Rename(staged.Path, finalPath); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRelocationFailed, err)
	}

	staged.Path = finalPath
	return finalPath, nil
}

// Remove deletes the given local files.
// It continues even if some files fail to delete,
// returning the first error encountered.
func (s *Store) Remove(ctx context.Context, paths ...string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// ValidateUserName checks that name is usable as a single path segment.
func ValidateUserName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidUserName)
	case len(name) > MaxUserNameBytes:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidUserName, MaxUserNameBytes)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidUserName, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidUserName, name)
	}
	return nil
}

// fileName builds {field}-{unixMillis}-{suffix}{ext}.
func (s *Store) fileName(up Upload) string {
	field := up.FieldName
	if field == "" || strings.ContainsAny(field, `/\`) {
		field = "file"
	}
	return fmt.Sprintf("%s-%d-%s%s", field, s.now().UnixMilli(), s.suffix(), filepath.Ext(up.OriginalName))
}

// randomSuffix returns 8 hex characters of a random UUID.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
