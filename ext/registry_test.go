package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/Lupupam/corda/ext"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnRunStarted(_ context.Context, _ flow.State) error {
	e.calls = append(e.calls, "OnRunStarted")
	return nil
}

func (e *allHooksExt) OnRunSuspended(_ context.Context, _ flow.State) error {
	e.calls = append(e.calls, "OnRunSuspended")
	return nil
}

func (e *allHooksExt) OnRunResumed(_ context.Context, _ flow.State, _ flow.Event) error {
	e.calls = append(e.calls, "OnRunResumed")
	return nil
}

func (e *allHooksExt) OnRunCompleted(_ context.Context, _ flow.State) error {
	e.calls = append(e.calls, "OnRunCompleted")
	return nil
}

func (e *allHooksExt) OnRunErrored(_ context.Context, _ flow.State, _ error) error {
	e.calls = append(e.calls, "OnRunErrored")
	return nil
}

func (e *allHooksExt) OnRunRemoved(_ context.Context, _ id.RunID, _ string) error {
	e.calls = append(e.calls, "OnRunRemoved")
	return nil
}

func (e *allHooksExt) OnRecordAdded(_ context.Context, _ *record.Record) error {
	e.calls = append(e.calls, "OnRecordAdded")
	return nil
}

func (e *allHooksExt) OnSignalPublished(_ context.Context, _ *signal.Signal) error {
	e.calls = append(e.calls, "OnSignalPublished")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// runOnlyExt only implements a subset of the run hooks.
type runOnlyExt struct {
	calls []string
}

func (e *runOnlyExt) Name() string { return "run-only" }

func (e *runOnlyExt) OnRunStarted(_ context.Context, _ flow.State) error {
	e.calls = append(e.calls, "OnRunStarted")
	return nil
}

func (e *runOnlyExt) OnRunCompleted(_ context.Context, _ flow.State) error {
	e.calls = append(e.calls, "OnRunCompleted")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnRunStarted(_ context.Context, _ flow.State) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func testState() flow.State {
	return flow.State{RunID: id.NewRunID(), Flow: "settle", Version: 1, Status: flow.StatusRunning}
}

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	ro := &runOnlyExt{}
	r.Register(all)
	r.Register(ro)

	ctx := context.Background()
	st := testState()

	// Both implement OnRunStarted → both called.
	r.EmitRunStarted(ctx, st)
	if len(all.calls) != 1 || all.calls[0] != "OnRunStarted" {
		t.Fatalf("all: expected [OnRunStarted], got %v", all.calls)
	}
	if len(ro.calls) != 1 || ro.calls[0] != "OnRunStarted" {
		t.Fatalf("ro: expected [OnRunStarted], got %v", ro.calls)
	}

	// Only all implements OnRunSuspended → ro not called.
	r.EmitRunSuspended(ctx, st)
	if len(all.calls) != 2 || all.calls[1] != "OnRunSuspended" {
		t.Fatalf("all: expected OnRunSuspended as 2nd, got %v", all.calls)
	}
	if len(ro.calls) != 1 {
		t.Fatalf("ro: should still have 1 call, got %v", ro.calls)
	}
}

func TestRegistry_AllRunHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	st := testState()

	r.EmitRunStarted(ctx, st)
	r.EmitRunSuspended(ctx, st)
	r.EmitRunResumed(ctx, st, flow.WakeEvent("payment:42"))
	r.EmitRunCompleted(ctx, st)
	r.EmitRunErrored(ctx, st, errors.New("ledger unreachable"))
	r.EmitRunRemoved(ctx, st.RunID, "discarded")

	expected := []string{
		"OnRunStarted", "OnRunSuspended", "OnRunResumed",
		"OnRunCompleted", "OnRunErrored", "OnRunRemoved",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_RecordSignalAndShutdownHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	r.EmitRecordAdded(ctx, &record.Record{ID: id.NewRecordID(), Key: "tx:1"})
	r.EmitSignalPublished(ctx, &signal.Signal{ID: id.NewSignalID(), Key: "payment:42"})
	r.EmitShutdown(ctx)

	expected := []string{"OnRecordAdded", "OnSignalPublished", "OnShutdown"}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	failing := &failingExt{}
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(failing)
	r.Register(all)

	ctx := context.Background()

	// No panic, no error propagation. allHooksExt should still fire.
	r.EmitRunStarted(ctx, testState())

	if len(all.calls) != 1 || all.calls[0] != "OnRunStarted" {
		t.Fatalf("all: expected [OnRunStarted] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ctx := context.Background()
	st := testState()

	// None of these should panic or error.
	r.EmitRunStarted(ctx, st)
	r.EmitRunSuspended(ctx, st)
	r.EmitRunResumed(ctx, st, flow.RetryEvent())
	r.EmitRunCompleted(ctx, st)
	r.EmitRunErrored(ctx, st, errors.New("x"))
	r.EmitRunRemoved(ctx, st.RunID, "x")
	r.EmitRecordAdded(ctx, &record.Record{})
	r.EmitSignalPublished(ctx, &signal.Signal{})
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ext1 := &allHooksExt{}
	ext2 := &allHooksExt{}
	r.Register(ext1)
	r.Register(ext2)

	ctx := context.Background()
	r.EmitRunStarted(ctx, testState())

	// Both should be called.
	if len(ext1.calls) != 1 {
		t.Errorf("ext1: expected 1 call, got %d", len(ext1.calls))
	}
	if len(ext2.calls) != 1 {
		t.Errorf("ext2: expected 1 call, got %d", len(ext2.calls))
	}
}
