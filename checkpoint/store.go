package checkpoint

import (
	"context"

	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/tx"
)

// ListOpts filters checkpoint enumeration.
type ListOpts struct {
	// Status filters by scheduling status. Empty means all.
	Status flow.Status
	// ErrorState filters by health. Empty means all.
	ErrorState flow.ErrorState
	// Limit is the maximum number of checkpoints to return. Zero means
	// no limit.
	Limit int
	// Offset is the number of checkpoints to skip.
	Offset int
}

// Store defines the persistence contract for checkpoints. Every
// operation takes the caller's transaction handle; writes only become
// visible when that handle commits. A nil handle on a read means a
// one-shot read outside any transaction. Backends report infrastructure
// failures wrapped with corda.ErrStorageUnavailable and undecodable rows
// with corda.ErrDeserialization — both abort the enclosing transaction.
type Store interface {
	// PutCheckpoint inserts or replaces the checkpoint for cp.RunID.
	PutCheckpoint(ctx context.Context, t tx.Tx, cp *Checkpoint) error

	// GetCheckpoint retrieves the checkpoint for a run.
	// Returns corda.ErrRunNotFound when the run has none.
	GetCheckpoint(ctx context.Context, t tx.Tx, runID id.RunID) (*Checkpoint, error)

	// RemoveCheckpoint deletes the checkpoint for a run.
	// Returns corda.ErrRunNotFound when the run has none.
	RemoveCheckpoint(ctx context.Context, t tx.Tx, runID id.RunID) error

	// ListCheckpoints enumerates checkpoints matching opts, ordered by
	// RunID ascending for deterministic recovery scans.
	ListCheckpoints(ctx context.Context, t tx.Tx, opts ListOpts) ([]*Checkpoint, error)

	// CountCheckpoints returns the number of live checkpoints.
	CountCheckpoints(ctx context.Context, t tx.Tx) (int64, error)
}
