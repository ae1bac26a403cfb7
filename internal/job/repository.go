package job

import (
	"context"
	"fmt"

	"github.com/maauso/slideshow/internal/apperr"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = fmt.Errorf("render job %w", apperr.ErrNotFound)

// Repository defines the interface for job persistence.
type Repository interface {
	// Save persists a job to the storage.
	// If the job already exists, it should be updated.
	Save(ctx context.Context, job *Job) error

	// FindByID retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns all jobs, oldest first.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a job from storage.
	// Returns ErrJobNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}
