package flow

import (
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
)

// ActionKind enumerates the persistence effects of a transition. Every
// action of a transition executes inside one transaction; either all of
// them commit or none do.
type ActionKind string

const (
	// ActionPersistCheckpoint writes the run's new state as its checkpoint.
	ActionPersistCheckpoint ActionKind = "persist_checkpoint"
	// ActionRemoveCheckpoint deletes the run's checkpoint.
	ActionRemoveCheckpoint ActionKind = "remove_checkpoint"
	// ActionAddRecord appends a record to the record store (first writer
	// wins; a duplicate key is a silent no-op, not a failure).
	ActionAddRecord ActionKind = "add_record"
	// ActionAckSignal marks the consumed signal acknowledged, so the same
	// delivery is not replayed after a restart.
	ActionAckSignal ActionKind = "ack_signal"
)

// Action is a single persistence effect. The field matching Kind is set;
// the others are zero.
type Action struct {
	Kind     ActionKind     `json:"kind"`
	State    *State         `json:"state,omitempty"`
	RunID    id.RunID       `json:"run_id,omitempty"`
	Record   *record.Record `json:"record,omitempty"`
	SignalID id.SignalID    `json:"signal_id,omitempty"`
}

// PersistCheckpoint builds a checkpoint-write action for st.
func PersistCheckpoint(st *State) Action {
	return Action{Kind: ActionPersistCheckpoint, State: st}
}

// RemoveCheckpoint builds a checkpoint-delete action for runID.
func RemoveCheckpoint(runID id.RunID) Action {
	return Action{Kind: ActionRemoveCheckpoint, RunID: runID}
}

// AddRecord builds a record-append action.
func AddRecord(r *record.Record) Action {
	return Action{Kind: ActionAddRecord, Record: r}
}

// AckSignal builds a signal-acknowledge action.
func AckSignal(sigID id.SignalID) Action {
	return Action{Kind: ActionAckSignal, SignalID: sigID}
}
