package flow

import (
	"time"

	"github.com/Lupupam/corda/id"
)

// Status represents the scheduling state of a run.
type Status string

const (
	// StatusRunning means the run is processing events or waiting for its
	// next one with nothing to park on.
	StatusRunning Status = "running"
	// StatusSuspended means the run is parked on a wait key and holds no
	// worker until the key is signalled or its wake deadline passes.
	StatusSuspended Status = "suspended"
)

// ErrorState reports whether a run is healthy. It is orthogonal to Status:
// a suspended run can be clean, a running run can have just errored.
type ErrorState string

const (
	// ErrorStateClean means the run has no captured errors.
	ErrorStateClean ErrorState = "clean"
	// ErrorStateErrored means the run halted with captured errors and will
	// not make progress until explicitly retried or discarded.
	ErrorStateErrored ErrorState = "errored"
)

// FlowError is a serializable capture of an error raised during a
// transition. The original error chain is not preserved across restarts;
// only the message and timestamp survive in the checkpoint.
type FlowError struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NewFlowError captures err as a FlowError stamped with the current time.
func NewFlowError(err error) FlowError {
	return FlowError{Message: err.Error(), At: time.Now().UTC()}
}

// Error implements the error interface.
func (e FlowError) Error() string { return e.Message }

// State is the complete serializable state of a run's machine. Everything
// a resume needs lives here; there is no live object graph to restore.
// Data is the flow's own payload, already serialized by its codec — the
// rest of the system treats it as opaque bytes.
type State struct {
	RunID        id.RunID    `json:"run_id"`
	Flow         string      `json:"flow"`
	Version      int         `json:"version"`
	Status       Status      `json:"status"`
	WaitKey      string      `json:"wait_key,omitempty"`
	WakeAt       *time.Time  `json:"wake_at,omitempty"`
	SuspendCount int         `json:"suspend_count"`
	ErrorState   ErrorState  `json:"error_state"`
	Errors       []FlowError `json:"errors,omitempty"`
	Data         []byte      `json:"data,omitempty"`
}

// Errored reports whether the run is in the errored state.
func (s State) Errored() bool { return s.ErrorState == ErrorStateErrored }

// Clone returns a deep copy. Errors and Data are copied so mutating the
// clone never aliases the original.
func (s State) Clone() State {
	out := s
	if s.WakeAt != nil {
		at := *s.WakeAt
		out.WakeAt = &at
	}
	if len(s.Errors) > 0 {
		out.Errors = make([]FlowError, len(s.Errors))
		copy(out.Errors, s.Errors)
	}
	if len(s.Data) > 0 {
		out.Data = make([]byte, len(s.Data))
		copy(out.Data, s.Data)
	}
	return out
}
