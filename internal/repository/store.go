package repository

import (
	"context"
	"time"

	"github.com/kirychukyurii/domain-search/internal/model"
)

// JobStore defines durable persistence of job snapshots.
//
// Every snapshot carries an opaque version. Save succeeds only when the stored
// version still equals expectedVersion; 0 means the job must not exist yet.
// A lost race returns model.ErrVersionConflict.
//
// Ownership of a running job is a lease with an owner and an expiry. Only the
// lease holder runs batches; other instances may still save snapshots.
type JobStore interface {
	// Load returns the stored snapshot and its version
	Load(ctx context.Context, jobID string) (*model.Job, int64, error)

	// Save writes the snapshot if the stored version matches and returns the new version
	Save(ctx context.Context, job *model.Job, expectedVersion int64) (int64, error)

	// ListActive returns the IDs of jobs not yet in a terminal state
	ListActive(ctx context.Context) ([]string, error)

	// Claim takes the ownership lease of a job for owner, or extends it when
	// owner already holds it. A live lease of another owner fails with
	// model.ErrLeaseHeld.
	Claim(ctx context.Context, jobID, owner string, ttl time.Duration) error

	// Renew extends owner's lease; model.ErrLeaseLost when it is gone
	Renew(ctx context.Context, jobID, owner string, ttl time.Duration) error

	// Release drops owner's lease so another instance can take the job at once
	Release(ctx context.Context, jobID, owner string) error

	// Close releases the underlying connection
	Close() error
}
