// Package ext defines the extension system for Corda.
// Extensions are notified of lifecycle events (run started, suspended,
// errored, record added, etc.) and can react to them — audit trails,
// metrics, alerting.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"

	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// RunStarted is called after a new run's initial checkpoint commits.
type RunStarted interface {
	OnRunStarted(ctx context.Context, st flow.State) error
}

// RunSuspended is called after a run parks on a wait key. The state
// carries the key and the optional wake deadline.
type RunSuspended interface {
	OnRunSuspended(ctx context.Context, st flow.State) error
}

// RunResumed is called when a parked run receives the event that woke
// it, after the resume transition commits.
type RunResumed interface {
	OnRunResumed(ctx context.Context, st flow.State, ev flow.Event) error
}

// RunCompleted is called after a run finishes and its checkpoint is
// removed. The state is the last one before removal.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, st flow.State) error
}

// RunErrored is called when a run halts in the errored state. Recovery
// from here is never automatic; see the hospital package.
type RunErrored interface {
	OnRunErrored(ctx context.Context, st flow.State, runErr error) error
}

// RunRemoved is called after a run is removed for any reason other than
// completion (administrative removal, hospital discard).
type RunRemoved interface {
	OnRunRemoved(ctx context.Context, runID id.RunID, reason string) error
}

// ──────────────────────────────────────────────────
// Record and signal hooks
// ──────────────────────────────────────────────────

// RecordAdded is called after a record insert commits. First writers
// only: a duplicate-key no-op add never fires it.
type RecordAdded interface {
	OnRecordAdded(ctx context.Context, rec *record.Record) error
}

// SignalPublished is called after a signal is durably published,
// before delivery to parked runs.
type SignalPublished interface {
	OnSignalPublished(ctx context.Context, sig *signal.Signal) error
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called once when the node stops, after the scheduler has
// drained and before the store closes.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
