package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maauso/slideshow/internal/apperr"
)

// ErrS3NotConfigured is returned when S3 operations are attempted
// without proper configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// LocalStorage implements the Storage interface using local disk.
// Workspaces live under a configurable root directory. It does not support
// S3 operations unless wrapped with S3Storage.
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates a new LocalStorage instance.
// The tempDir parameter is the root under which workspaces are created.
// If tempDir is empty, <os.TempDir()>/slideshow is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "slideshow")
	}

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &LocalStorage{tempDir: tempDir}, nil
}

// TempDir returns the workspace root.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// WorkspacePath returns the workspace directory of a job without creating it.
func (s *LocalStorage) WorkspacePath(jobID string) (string, error) {
	if jobID == "" || jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return "", fmt.Errorf("workspace name %q: %w", jobID, apperr.ErrInvalidInput)
	}
	return filepath.Join(s.tempDir, jobID), nil
}

// CreateWorkspace creates <tempDir>/<jobID>.
func (s *LocalStorage) CreateWorkspace(ctx context.Context, jobID string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dir, err := s.WorkspacePath(jobID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// RemoveWorkspace removes <tempDir>/<jobID> recursively. It runs even when
// ctx is already cancelled, since cleanup follows cancellation.
func (s *LocalStorage) RemoveWorkspace(_ context.Context, jobID string) error {
	dir, err := s.WorkspacePath(jobID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", dir, err)
	}
	return nil
}

// Promote moves src to dst. A rename is tried first; across filesystems the
// file is copied next to dst and renamed into place, so dst never holds a
// partial file.
func (s *LocalStorage) Promote(ctx context.Context, src, dst string) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", src, err)
	}

	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return 0, fmt.Errorf("create output directory: %w", err)
		}
	}

	if err := os.Rename(src, dst); err == nil {
		return info.Size(), nil
	}

	n, err := copyInto(src, dst)
	if err != nil {
		return 0, err
	}
	_ = os.Remove(src)
	return n, nil
}

// copyInto copies src to a temporary file beside dst, then renames it.
func copyInto(src, dst string) (int64, error) {
	in, err := os.Open(src) // #nosec G304 - src is a file inside our own workspace
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+"_*")
	if err != nil {
		return 0, fmt.Errorf("create temp output: %w", err)
	}
	tmp := out.Name()

	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("copy output: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("move output into place: %w", err)
	}
	return n, nil
}

// UploadToS3 is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) UploadToS3(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

// Verify interface implementation at compile time.
var _ Storage = (*LocalStorage)(nil)
