// Package storage manages job-scoped scratch workspaces on local disk,
// moves finished renders into place, and optionally publishes them to S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for render workspaces and final delivery.
type Storage interface {
	// CreateWorkspace creates the private scratch directory of a job and
	// returns its path.
	CreateWorkspace(ctx context.Context, jobID string) (dir string, err error)

	// RemoveWorkspace deletes a job workspace and everything in it.
	// Removing a workspace that does not exist is not an error.
	RemoveWorkspace(ctx context.Context, jobID string) error

	// Promote moves a finished file to its final destination, creating
	// parent directories, and returns the size of the moved file.
	Promote(ctx context.Context, src, dst string) (size int64, err error)

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
