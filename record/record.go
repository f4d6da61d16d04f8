// Package record implements the append-only record store: a keyed map
// where the first writer of a key wins and nothing is ever overwritten
// or deleted. Records written by a flow transition commit atomically
// with the checkpoint, and observers (Track, AwaitKey) see them in
// commit order, never before the owning transaction is durable.
package record

import (
	"context"
	"time"

	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/tx"
)

// Record is one immutable entry in the append-only store. Key is unique
// for the lifetime of the store; Payload is opaque to everything but the
// flow that wrote it.
type Record struct {
	ID        id.RecordID `json:"id"`
	Key       string      `json:"key"`
	Payload   []byte      `json:"payload,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Clone returns a deep copy so cached and published records cannot be
// mutated by callers.
func (r *Record) Clone() *Record {
	cp := *r
	if r.Payload != nil {
		cp.Payload = make([]byte, len(r.Payload))
		copy(cp.Payload, r.Payload)
	}
	return &cp
}

// KV is the backend persistence contract the Store fronts. Writes are
// staged on the caller's transaction handle; a nil handle on reads means
// a one-shot committed read. Backends signal infrastructure failure with
// corda.ErrStorageUnavailable and undecodable rows with
// corda.ErrDeserialization.
type KV interface {
	// PutRecord stages an insert. Returns false when the key is already
	// present — committed, or staged earlier on the same handle. A false
	// return is first-writer-wins resolution, not an error.
	PutRecord(ctx context.Context, t tx.Tx, r *Record) (bool, error)

	// GetRecord retrieves a record by key. Within a transaction it sees
	// that transaction's own staged inserts. Returns
	// corda.ErrRecordNotFound when the key is absent.
	GetRecord(ctx context.Context, t tx.Tx, key string) (*Record, error)

	// ListRecords returns all committed records, key ascending.
	ListRecords(ctx context.Context, t tx.Tx) ([]*Record, error)
}
