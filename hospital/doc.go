// Package hospital provides triage for errored runs. When a transition
// fails terminally — a step error, a poisoned checkpoint, or storage
// retries exhausted — the scheduler marks the run errored and halts it.
// Nothing automatic happens after that: an errored run sits in the
// hospital until an operator retries or discards it.
//
// # Retry
//
// [Service.Retry] is the only path from errored back to clean. It
// clears the run's accumulated errors in one transaction, preserving
// the suspend count, and then resumes the run by replaying its
// persisted checkpoint through a retry event:
//
//	svc := eng.Hospital()
//
//	// Inspect what went wrong.
//	sick, _ := svc.ListErrored(ctx, 50, 0)
//
//	// Send one back into rotation.
//	if err := svc.Retry(ctx, sick[0].RunID); err != nil { ... }
//
// Retrying a run that is not errored fails with corda.ErrNotErrored.
//
// # Discard
//
// [Service.Discard] gives up on an errored run: the checkpoint is
// removed, the scheduler drops the run, and diagnostic history is
// discarded. Healthy runs are removed through the engine instead.
//
// # Stats
//
// [Service.Stats] counts live runs by health, for dashboards and
// alerting on errored-run buildup.
package hospital
