// Package tx defines the explicit transaction handle threaded through
// every store operation. There is no ambient transaction: callers begin
// a transaction on their store, pass the handle to each operation, and
// commit or roll back themselves. Nothing written through a handle is
// visible to other readers until Commit returns nil.
package tx

import "context"

// Tx is a single transaction against a store backend. Handles are not
// safe for concurrent use. A handle is single-use: after Commit or
// Rollback every method returns corda.ErrTxDone. Passing a handle to a
// store other than the one that created it fails with corda.ErrForeignTx.
type Tx interface {
	// Commit makes all writes performed through this handle durable and
	// visible. OnCommit callbacks run synchronously inside Commit, after
	// durability and before it returns, in registration order.
	Commit(ctx context.Context) error

	// Rollback discards all writes performed through this handle.
	// Registered OnCommit callbacks never run.
	Rollback(ctx context.Context) error

	// OnCommit registers fn to run when this transaction commits.
	// Publication of committed records rides on this: the record feed
	// assigns sequence numbers inside these callbacks, so subscribers
	// observe inserts in commit order.
	OnCommit(fn func())
}

// Provider begins transactions. Every store backend implements it.
type Provider interface {
	Begin(ctx context.Context) (Tx, error)
}

// With runs fn inside a fresh transaction: it begins one, calls fn, and
// commits if fn returned nil, rolling back otherwise. The fn error wins
// over any rollback error.
func With(ctx context.Context, p Provider, fn func(ctx context.Context, t Tx) error) error {
	t, err := p.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(ctx, t); err != nil {
		_ = t.Rollback(ctx) //nolint:errcheck // the fn error is the one that matters
		return err
	}

	return t.Commit(ctx)
}
