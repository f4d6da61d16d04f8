// Package ext defines the extension system for Corda.
//
// Extensions are notified of lifecycle events and can react to them —
// writing audit trails, recording metrics, emitting alerts, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnRunCompleted(ctx context.Context, st flow.State) error {
//	    log.Printf("run %s completed after %d suspensions", st.RunID, st.SuspendCount)
//	    return nil
//	}
//
// # Run Lifecycle Hooks
//
//   - [RunStarted] — a new run's initial checkpoint committed
//   - [RunSuspended] — run parked on a wait key
//   - [RunResumed] — parked run received the event that woke it
//   - [RunCompleted] — run finished and its checkpoint was removed
//   - [RunErrored] — run halted in the errored state
//   - [RunRemoved] — run was removed without completing
//
// # Record and Signal Hooks
//
//   - [RecordAdded] — a record insert committed (first writer only)
//   - [SignalPublished] — a signal was durably published
//
// # Other Hooks
//
//   - [Shutdown] — the node is shutting down gracefully
//
// Hooks fire only for durable facts: every emission happens after the
// transaction that produced the event has committed.
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
