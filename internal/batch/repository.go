package batch

import (
	"context"
	"errors"
)

// ErrBatchNotFound is returned when a batch cannot be found by ID.
var ErrBatchNotFound = errors.New("batch: not found")

// Repository defines the interface for batch snapshot persistence.
type Repository interface {
	// Save stores a snapshot of the job, replacing any previous one.
	Save(ctx context.Context, job *Job) error

	// FindByID retrieves a job snapshot by its unique identifier.
	// Returns ErrBatchNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns all job snapshots.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a job.
	// Returns ErrBatchNotFound if the job does not exist.
	Delete(ctx context.Context, id string) error
}
