package flow

import (
	"time"

	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
)

// Result is what a flow's transition function returns: a continuation
// decision plus any records to append. The records commit in the same
// transaction as the checkpoint write — a run never observes its own
// records without the state that produced them, and vice versa.
type Result struct {
	Decision Decision
	Records  []record.Record
}

// TransitionResult is the machine-level output of a transition: the new
// state, the decision, and the ordered actions the executor must commit
// atomically. It is produced by BuildResult (and the failure/removal
// builders below), never by flow code directly.
type TransitionResult struct {
	NewState State
	Decision Decision
	Actions  []Action
}

// BuildResult derives the full transition result from a prior state, the
// flow's Result, the re-serialized flow data, and the event that drove
// the transition. It is the single place where decisions turn into state
// field updates and persistence actions:
//
//   - continue: status running, park fields cleared, checkpoint persisted
//   - suspend:  status suspended, WaitKey/WakeAt set, SuspendCount bumped
//   - abort:    error state set to errored with the decision's error
//   - remove:   checkpoint removed instead of persisted
//
// Records get IDs and timestamps here if the flow left them unset. An
// event carrying a SignalID gains an ack action so the signal is consumed
// exactly when the transition commits.
func BuildResult(prev State, res Result, data []byte, ev Event) TransitionResult {
	next := prev.Clone()
	next.Data = data

	switch res.Decision.Kind {
	case DecisionContinue:
		next.Status = StatusRunning
		next.WaitKey = ""
		next.WakeAt = nil
	case DecisionSuspend:
		next.Status = StatusSuspended
		next.WaitKey = res.Decision.WaitKey
		next.WakeAt = res.Decision.WakeAt
		next.SuspendCount++
	case DecisionAbort:
		next.ErrorState = ErrorStateErrored
		if res.Decision.Err != nil {
			next.Errors = append(next.Errors, *res.Decision.Err)
		}
	case DecisionRemove:
		// No state fields to update; the checkpoint goes away.
	}

	actions := make([]Action, 0, len(res.Records)+2)
	if res.Decision.Kind == DecisionRemove {
		actions = append(actions, RemoveCheckpoint(prev.RunID))
	} else {
		actions = append(actions, PersistCheckpoint(&next))
	}

	now := time.Now().UTC()
	for i := range res.Records {
		r := res.Records[i]
		if r.ID.IsNil() {
			r.ID = id.NewRecordID()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		actions = append(actions, AddRecord(&r))
	}

	if !ev.SignalID.IsNil() {
		actions = append(actions, AckSignal(ev.SignalID))
	}

	return TransitionResult{NewState: next, Decision: res.Decision, Actions: actions}
}

// BuildFailure builds the transition that marks a run errored after its
// real transition could not complete (step error, poisoned checkpoint,
// or storage retries exhausted). Routing it through the executor chain
// lets every interceptor observe the clean→errored edge.
func BuildFailure(prev State, ferr FlowError) TransitionResult {
	next := prev.Clone()
	next.ErrorState = ErrorStateErrored
	next.Errors = append(next.Errors, ferr)

	d := Decision{Kind: DecisionAbort, Err: &ferr}
	return TransitionResult{
		NewState: next,
		Decision: d,
		Actions:  []Action{PersistCheckpoint(&next)},
	}
}

// BuildRemoval builds the transition for an administrative removal, so
// interceptors observe the Remove decision and discard run history.
func BuildRemoval(prev State, reason string) TransitionResult {
	d := Decision{Kind: DecisionRemove, Reason: reason}
	return TransitionResult{
		NewState: prev.Clone(),
		Decision: d,
		Actions:  []Action{RemoveCheckpoint(prev.RunID)},
	}
}
