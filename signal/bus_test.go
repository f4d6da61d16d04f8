package signal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/signal"
	"github.com/Lupupam/corda/store/memory"
)

func TestBus_PublishPending(t *testing.T) {
	s := memory.New()
	bus := signal.NewBus(s, s)

	ctx := context.Background()

	sig, err := bus.Publish(ctx, "payment.T-9", []byte(`{"txid":"T-9"}`))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if sig.Key != "payment.T-9" {
		t.Errorf("Key = %q, want %q", sig.Key, "payment.T-9")
	}
	if string(sig.Payload) != `{"txid":"T-9"}` {
		t.Errorf("Payload = %q, want %q", string(sig.Payload), `{"txid":"T-9"}`)
	}
	if sig.ID.IsNil() {
		t.Error("expected a minted signal ID")
	}
	if sig.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	// Pending should find it.
	pending, err := bus.Pending(ctx, "payment.T-9")
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Pending = %d signals, want 1", len(pending))
	}
	if pending[0].ID.String() != sig.ID.String() {
		t.Errorf("signal ID = %s, want %s", pending[0].ID, sig.ID)
	}
}

func TestBus_PendingOrder(t *testing.T) {
	s := memory.New()
	bus := signal.NewBus(s, s)

	ctx := context.Background()

	first, err := bus.Publish(ctx, "multi", []byte("1"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	second, err := bus.Publish(ctx, "multi", []byte("2"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	pending, err := bus.Pending(ctx, "multi")
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Pending = %d signals, want 2", len(pending))
	}
	if pending[0].ID.String() != first.ID.String() || pending[1].ID.String() != second.ID.String() {
		t.Error("pending signals not in publish order")
	}
}

func TestBus_Ack(t *testing.T) {
	s := memory.New()
	bus := signal.NewBus(s, s)

	ctx := context.Background()

	sig, err := bus.Publish(ctx, "ack-test", nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Ack rides a caller transaction, the way a resumed transition acks.
	handle, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if ackErr := bus.Ack(ctx, handle, sig.ID); ackErr != nil {
		t.Fatalf("Ack: %v", ackErr)
	}
	if err := handle.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// After ack, Pending should not find the signal.
	pending, err := bus.Pending(ctx, "ack-test")
	if err != nil {
		t.Fatalf("Pending after ack: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending signals after ack, got %d", len(pending))
	}
}

func TestBus_AckRollbackKeepsPending(t *testing.T) {
	s := memory.New()
	bus := signal.NewBus(s, s)

	ctx := context.Background()

	sig, err := bus.Publish(ctx, "crashy", nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// A transition that rolls back must leave the signal deliverable.
	handle, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if ackErr := bus.Ack(ctx, handle, sig.ID); ackErr != nil {
		t.Fatalf("Ack: %v", ackErr)
	}
	if err := handle.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	pending, err := bus.Pending(ctx, "crashy")
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected the signal to stay pending after rollback, got %d", len(pending))
	}
}

func TestBus_AckUnknown(t *testing.T) {
	s := memory.New()
	bus := signal.NewBus(s, s)

	ctx := context.Background()

	handle, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer handle.Rollback(ctx) //nolint:errcheck

	if err := bus.Ack(ctx, handle, id.NewSignalID()); !errors.Is(err, corda.ErrSignalNotFound) {
		t.Fatalf("Ack unknown = %v, want ErrSignalNotFound", err)
	}
}

func TestBus_Store(t *testing.T) {
	s := memory.New()
	bus := signal.NewBus(s, s)

	if bus.Store() == nil {
		t.Fatal("expected non-nil store")
	}
}
