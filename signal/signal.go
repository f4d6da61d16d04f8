// Package signal provides durable external-event delivery for parked
// runs. A run suspends on a wait key; a signal published under that key
// wakes it. Signals are acknowledged inside the resumed transition's
// transaction, so a signal is consumed exactly when the transition it
// triggered commits — a crash before that leaves it pending for
// re-delivery on restore.
package signal

import (
	"time"

	"github.com/Lupupam/corda/id"
)

// Signal is one durable external event, keyed by the wait key a
// suspended run parked on.
type Signal struct {
	ID        id.SignalID `json:"id"`
	Key       string      `json:"key"`
	Payload   []byte      `json:"payload,omitempty"`
	Acked     bool        `json:"acked"`
	CreatedAt time.Time   `json:"created_at"`
}

// Clone returns a deep copy so store-internal state never aliases what
// callers hold.
func (s *Signal) Clone() *Signal {
	cp := *s
	if s.Payload != nil {
		cp.Payload = make([]byte, len(s.Payload))
		copy(cp.Payload, s.Payload)
	}
	return &cp
}
