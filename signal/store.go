package signal

import (
	"context"

	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/tx"
)

// Store defines the persistence contract for signals. Operations take
// the caller's transaction handle; a nil handle on reads means a
// one-shot committed read.
type Store interface {
	// AppendSignal persists a new signal, unacked.
	AppendSignal(ctx context.Context, t tx.Tx, sig *Signal) error

	// ListSignals returns signals for a wait key in publish order.
	// Acked signals are included only when includeAcked is set.
	ListSignals(ctx context.Context, t tx.Tx, key string, includeAcked bool) ([]*Signal, error)

	// AckSignal marks a signal consumed. Returns corda.ErrSignalNotFound
	// for an unknown ID.
	AckSignal(ctx context.Context, t tx.Tx, sigID id.SignalID) error
}
