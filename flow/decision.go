package flow

import "time"

// DecisionKind enumerates the continuation decisions a transition can end
// with.
type DecisionKind string

const (
	// DecisionContinue keeps the run active: the scheduler feeds it the
	// next mailbox event, or lets it idle without a worker.
	DecisionContinue DecisionKind = "continue"
	// DecisionSuspend parks the run on WaitKey until a signal arrives or
	// the optional WakeAt deadline passes.
	DecisionSuspend DecisionKind = "suspend"
	// DecisionAbort halts the run with its checkpoint intact and marked
	// errored. Recovery is never automatic; see the hospital package.
	DecisionAbort DecisionKind = "abort"
	// DecisionRemove deletes the run's checkpoint and forgets the run,
	// discarding its diagnostic history.
	DecisionRemove DecisionKind = "remove"
)

// Remove reasons.
const (
	// RemoveCompleted marks a run that finished its work.
	RemoveCompleted = "completed"
	// RemoveKilled marks a run removed administratively.
	RemoveKilled = "killed"
)

// Decision is the continuation choice produced by a transition function.
// Exactly one of the constructors below should build it.
type Decision struct {
	Kind    DecisionKind `json:"kind"`
	WaitKey string       `json:"wait_key,omitempty"`
	WakeAt  *time.Time   `json:"wake_at,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Err     *FlowError   `json:"err,omitempty"`
}

// Continue keeps the run active.
func Continue() Decision {
	return Decision{Kind: DecisionContinue}
}

// Suspend parks the run on key with no wake deadline.
func Suspend(key string) Decision {
	return Decision{Kind: DecisionSuspend, WaitKey: key}
}

// SuspendUntil parks the run on key and wakes it at the given time if no
// signal arrived first.
func SuspendUntil(key string, at time.Time) Decision {
	wake := at.UTC()
	return Decision{Kind: DecisionSuspend, WaitKey: key, WakeAt: &wake}
}

// Complete removes the run as successfully finished.
func Complete() Decision {
	return Decision{Kind: DecisionRemove, Reason: RemoveCompleted}
}

// Remove removes the run for the given reason.
func Remove(reason string) Decision {
	return Decision{Kind: DecisionRemove, Reason: reason}
}

// Abort halts the run as errored, capturing err in the checkpoint.
func Abort(err error) Decision {
	d := Decision{Kind: DecisionAbort}
	if err != nil {
		fe := NewFlowError(err)
		d.Err = &fe
	}
	return d
}
