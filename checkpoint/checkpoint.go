// Package checkpoint defines the durable run checkpoint and its store
// contract. A checkpoint is the single source of truth for a live run:
// one per run, replaced on every committed transition, deleted when the
// run is removed. Resume never consults anything else.
package checkpoint

import (
	"time"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
)

// Checkpoint is the persisted form of a run's machine state. The control
// fields (Status, WaitKey, ErrorState, ...) are stored as columns so
// recovery and triage can query them without decoding State, which stays
// opaque to the store.
type Checkpoint struct {
	corda.Entity

	ID           id.CheckpointID  `json:"id"`
	RunID        id.RunID         `json:"run_id"`
	Flow         string           `json:"flow"`
	Version      int              `json:"version"`
	Status       flow.Status      `json:"status"`
	WaitKey      string           `json:"wait_key,omitempty"`
	WakeAt       *time.Time       `json:"wake_at,omitempty"`
	SuspendCount int              `json:"suspend_count"`
	ErrorState   flow.ErrorState  `json:"error_state"`
	Errors       []flow.FlowError `json:"errors,omitempty"`
	State        []byte           `json:"state,omitempty"`
}

// FromState builds a checkpoint from an in-memory machine state, minting
// a fresh checkpoint ID and timestamps.
func FromState(st flow.State) *Checkpoint {
	return &Checkpoint{
		Entity:       corda.NewEntity(),
		ID:           id.NewCheckpointID(),
		RunID:        st.RunID,
		Flow:         st.Flow,
		Version:      st.Version,
		Status:       st.Status,
		WaitKey:      st.WaitKey,
		WakeAt:       st.WakeAt,
		SuspendCount: st.SuspendCount,
		ErrorState:   st.ErrorState,
		Errors:       st.Errors,
		State:        st.Data,
	}
}

// Clone returns a deep copy so store-internal state never aliases what
// callers hold.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	if c.WakeAt != nil {
		at := *c.WakeAt
		cp.WakeAt = &at
	}
	if c.Errors != nil {
		cp.Errors = make([]flow.FlowError, len(c.Errors))
		copy(cp.Errors, c.Errors)
	}
	if c.State != nil {
		cp.State = make([]byte, len(c.State))
		copy(cp.State, c.State)
	}
	return &cp
}

// ToState reconstructs the machine state a resume replays from.
func (c *Checkpoint) ToState() flow.State {
	return flow.State{
		RunID:        c.RunID,
		Flow:         c.Flow,
		Version:      c.Version,
		Status:       c.Status,
		WaitKey:      c.WaitKey,
		WakeAt:       c.WakeAt,
		SuspendCount: c.SuspendCount,
		ErrorState:   c.ErrorState,
		Errors:       c.Errors,
		Data:         c.State,
	}
}
