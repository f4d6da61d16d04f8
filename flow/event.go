package flow

import (
	"fmt"
	"time"

	"github.com/Lupupam/corda/id"
)

// EventKind classifies what woke a run.
type EventKind string

const (
	// EventStart is the first event a new run receives; Payload carries
	// the serialized input.
	EventStart EventKind = "start"
	// EventSignal is an external signal delivered to a run parked on Key.
	EventSignal EventKind = "signal"
	// EventWake fires when a suspended run's wake deadline passes without
	// a signal on its key.
	EventWake EventKind = "wake"
	// EventRetry replays the last transition from the checkpoint: crash
	// recovery of a mid-flight run, or an explicit errored-run retry.
	EventRetry EventKind = "retry"
	// EventKill labels an administrative removal transition. It is
	// synthesized by the engine and never reaches a step function.
	EventKill EventKind = "kill"
)

// Event is a single input to a run's transition function.
type Event struct {
	Kind     EventKind   `json:"kind"`
	Key      string      `json:"key,omitempty"`
	Payload  []byte      `json:"payload,omitempty"`
	SignalID id.SignalID `json:"signal_id,omitempty"`
	At       time.Time   `json:"at"`
}

// StartEvent builds the initial event for a new run.
func StartEvent(payload []byte) Event {
	return Event{Kind: EventStart, Payload: payload, At: time.Now().UTC()}
}

// SignalEvent builds a delivery event for an external signal.
func SignalEvent(sigID id.SignalID, key string, payload []byte) Event {
	return Event{Kind: EventSignal, SignalID: sigID, Key: key, Payload: payload, At: time.Now().UTC()}
}

// WakeEvent builds a timer-expiry event for the given wait key.
func WakeEvent(key string) Event {
	return Event{Kind: EventWake, Key: key, At: time.Now().UTC()}
}

// RetryEvent builds a replay-from-checkpoint event.
func RetryEvent() Event {
	return Event{Kind: EventRetry, At: time.Now().UTC()}
}

// KillEvent builds the event that labels an administrative removal.
func KillEvent() Event {
	return Event{Kind: EventKill, At: time.Now().UTC()}
}

// String returns a short descriptor for logs and transition history.
func (e Event) String() string {
	if e.Key == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.Key)
}
