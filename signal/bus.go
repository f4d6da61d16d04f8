package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/tx"
)

// Bus provides high-level signal operations over a Store. The scheduler
// publishes through it to wake parked runs and uses Pending at restore
// time to re-deliver signals whose transitions never committed.
type Bus struct {
	provider tx.Provider
	store    Store
}

// NewBus creates a signal bus backed by the given store.
func NewBus(provider tx.Provider, store Store) *Bus {
	return &Bus{provider: provider, store: store}
}

// Publish persists a new signal under key in its own transaction and
// returns it. Durability comes first; delivery to a parked run follows.
func (b *Bus) Publish(ctx context.Context, key string, payload []byte) (*Signal, error) {
	sig := &Signal{
		ID:        id.NewSignalID(),
		Key:       key,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	err := tx.With(ctx, b.provider, func(ctx context.Context, t tx.Tx) error {
		return b.store.AppendSignal(ctx, t, sig)
	})
	if err != nil {
		return nil, fmt.Errorf("signal: publish %q: %w", key, err)
	}
	return sig, nil
}

// Pending returns the unacked signals for a wait key, oldest first.
func (b *Bus) Pending(ctx context.Context, key string) ([]*Signal, error) {
	return b.store.ListSignals(ctx, nil, key, false)
}

// Ack marks a signal consumed on the caller's transaction. The executor
// calls it while committing the transition the signal triggered, which
// is what makes consumption effectively once.
func (b *Bus) Ack(ctx context.Context, t tx.Tx, sigID id.SignalID) error {
	return b.store.AckSignal(ctx, t, sigID)
}

// Store returns the underlying signal store.
func (b *Bus) Store() Store { return b.store }
