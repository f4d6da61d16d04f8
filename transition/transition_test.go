package transition_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/scope"
	"github.com/Lupupam/corda/transition"
	"github.com/Lupupam/corda/tx"
)

func newTestState() flow.State {
	return flow.State{
		RunID:      id.NewRunID(),
		Flow:       "settle",
		Version:    1,
		Status:     flow.StatusRunning,
		ErrorState: flow.ErrorStateClean,
		Data:       []byte(`{"n":1}`),
	}
}

// okExecutor commits nothing; it just hands the transition's own outcome
// back, which is what a successful core execution looks like to an
// interceptor.
var okExecutor = transition.ExecutorFunc(func(_ context.Context, _ flow.State, _ flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
	return tr.Decision, tr.NewState, nil
})

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	ic1 := func(next transition.Executor) transition.Executor {
		return transition.ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
			order = append(order, "ic1-before")
			dec, st, err := next.ExecuteTransition(ctx, prev, ev, tr)
			order = append(order, "ic1-after")
			return dec, st, err
		})
	}

	ic2 := func(next transition.Executor) transition.Executor {
		return transition.ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
			order = append(order, "ic2-before")
			dec, st, err := next.ExecuteTransition(ctx, prev, ev, tr)
			order = append(order, "ic2-after")
			return dec, st, err
		})
	}

	core := transition.ExecutorFunc(func(_ context.Context, _ flow.State, _ flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
		order = append(order, "core")
		return tr.Decision, tr.NewState, nil
	})

	chain := transition.Chain(core, ic1, ic2)
	prev := newTestState()
	tr := flow.BuildResult(prev, flow.Result{Decision: flow.Continue()}, prev.Data, flow.StartEvent(nil))

	_, _, err := chain.ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"ic1-before", "ic2-before", "core", "ic2-after", "ic1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	core := transition.ExecutorFunc(func(_ context.Context, _ flow.State, _ flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
		called = true
		return tr.Decision, tr.NewState, nil
	})

	chain := transition.Chain(core)
	prev := newTestState()
	tr := flow.BuildResult(prev, flow.Result{Decision: flow.Continue()}, prev.Data, flow.StartEvent(nil))

	_, _, err := chain.ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("core not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	ic := func(next transition.Executor) transition.Executor {
		return transition.ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
			return next.ExecuteTransition(ctx, prev, ev, tr)
		})
	}
	want := errors.New("core error")
	core := transition.ExecutorFunc(func(_ context.Context, prev flow.State, _ flow.Event, _ flow.TransitionResult) (flow.Decision, flow.State, error) {
		return flow.Decision{}, prev, want
	})

	chain := transition.Chain(core, ic)
	prev := newTestState()

	_, _, err := chain.ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), flow.TransitionResult{})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

// ──────────────────────────────────────────────────
// Core executor tests
// ──────────────────────────────────────────────────

type fakeTx struct {
	committed  bool
	rolledBack bool
	commitErr  error
	hooks      []func()
}

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	for _, fn := range t.hooks {
		fn()
	}
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

func (t *fakeTx) OnCommit(fn func()) { t.hooks = append(t.hooks, fn) }

type fakeProvider struct {
	tx       *fakeTx
	beginErr error
}

func (p *fakeProvider) Begin(context.Context) (tx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	p.tx = &fakeTx{}
	return p.tx, nil
}

type fakeHandler struct {
	applied []flow.ActionKind
	failOn  flow.ActionKind
	err     error
}

func (h *fakeHandler) Apply(_ context.Context, _ tx.Tx, act flow.Action) error {
	if h.failOn != "" && act.Kind == h.failOn {
		return h.err
	}
	h.applied = append(h.applied, act.Kind)
	return nil
}

func TestCore_CommitsActionsInOrder(t *testing.T) {
	provider := &fakeProvider{}
	handler := &fakeHandler{}
	core := transition.New(provider, handler)

	prev := newTestState()
	ev := flow.SignalEvent(id.NewSignalID(), "payment.T-9", nil)
	res := flow.Result{Decision: flow.Continue()}
	tr := flow.BuildResult(prev, res, prev.Data, ev)

	dec, st, err := core.ExecuteTransition(context.Background(), prev, ev, tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != flow.DecisionContinue {
		t.Errorf("decision = %s, want continue", dec.Kind)
	}
	if st.RunID.String() != prev.RunID.String() {
		t.Errorf("state run = %s, want %s", st.RunID, prev.RunID)
	}
	if !provider.tx.committed {
		t.Error("transaction was not committed")
	}

	want := []flow.ActionKind{flow.ActionPersistCheckpoint, flow.ActionAckSignal}
	if len(handler.applied) != len(want) {
		t.Fatalf("applied %v, want %v", handler.applied, want)
	}
	for i, kind := range want {
		if handler.applied[i] != kind {
			t.Errorf("applied[%d] = %s, want %s", i, handler.applied[i], kind)
		}
	}
}

func TestCore_RollsBackOnActionError(t *testing.T) {
	boom := errors.New("storage unavailable")
	provider := &fakeProvider{}
	handler := &fakeHandler{failOn: flow.ActionAckSignal, err: boom}
	core := transition.New(provider, handler, transition.WithLogger(slog.Default()))

	prev := newTestState()
	ev := flow.SignalEvent(id.NewSignalID(), "payment.T-9", nil)
	tr := flow.BuildResult(prev, flow.Result{Decision: flow.Continue()}, prev.Data, ev)

	_, st, err := core.ExecuteTransition(context.Background(), prev, ev, tr)
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if !provider.tx.rolledBack {
		t.Error("transaction was not rolled back")
	}
	if provider.tx.committed {
		t.Error("transaction committed despite action failure")
	}
	if st.Status != prev.Status || st.ErrorState != prev.ErrorState {
		t.Error("failed transition should hand back prev unchanged")
	}
}

func TestCore_BeginError(t *testing.T) {
	boom := errors.New("no connection")
	provider := &fakeProvider{beginErr: boom}
	core := transition.New(provider, &fakeHandler{})

	prev := newTestState()
	_, _, err := core.ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), flow.TransitionResult{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

// ──────────────────────────────────────────────────
// Interceptor tests
// ──────────────────────────────────────────────────

func TestRecover_CatchesPanic(t *testing.T) {
	logger := slog.Default()
	ic := transition.Recover(logger)
	prev := newTestState()

	panicky := transition.ExecutorFunc(func(_ context.Context, _ flow.State, _ flow.Event, _ flow.TransitionResult) (flow.Decision, flow.State, error) {
		panic("test panic")
	})

	_, st, err := ic(panicky).ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), flow.TransitionResult{})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if st.RunID.String() != prev.RunID.String() {
		t.Error("recovered transition should hand back prev")
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	logger := slog.Default()
	ic := transition.Recover(logger)
	prev := newTestState()
	tr := flow.BuildResult(prev, flow.Result{Decision: flow.Continue()}, prev.Data, flow.StartEvent(nil))

	dec, _, err := ic(okExecutor).ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != flow.DecisionContinue {
		t.Errorf("decision = %s, want continue", dec.Kind)
	}
}

func TestLogging_PassesThroughOutcome(t *testing.T) {
	logger := slog.Default()
	ic := transition.Logging(logger)
	prev := newTestState()

	want := errors.New("fail")
	failing := transition.ExecutorFunc(func(_ context.Context, prev flow.State, _ flow.Event, _ flow.TransitionResult) (flow.Decision, flow.State, error) {
		return flow.Decision{}, prev, want
	})

	_, _, err := ic(failing).ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), flow.TransitionResult{})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}

	tr := flow.BuildResult(prev, flow.Result{Decision: flow.Suspend("k")}, prev.Data, flow.StartEvent(nil))
	dec, _, err := ic(okExecutor).ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != flow.DecisionSuspend {
		t.Errorf("decision = %s, want suspend", dec.Kind)
	}
}

func TestTimeout_CancelsContext(t *testing.T) {
	ic := transition.Timeout(20 * time.Millisecond)
	prev := newTestState()

	blocking := transition.ExecutorFunc(func(ctx context.Context, prev flow.State, _ flow.Event, _ flow.TransitionResult) (flow.Decision, flow.State, error) {
		<-ctx.Done()
		return flow.Decision{}, prev, ctx.Err()
	})

	_, _, err := ic(blocking).ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), flow.TransitionResult{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_ZeroIsNoOp(t *testing.T) {
	ic := transition.Timeout(0)
	prev := newTestState()

	checked := transition.ExecutorFunc(func(ctx context.Context, prev flow.State, _ flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline for zero timeout")
		}
		return tr.Decision, tr.NewState, nil
	})

	_, _, err := ic(checked).ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), flow.TransitionResult{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScope_InjectsRunIdentity(t *testing.T) {
	ic := transition.Scope()
	prev := newTestState()

	checked := transition.ExecutorFunc(func(ctx context.Context, prev flow.State, _ flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
		r, ok := scope.RunFrom(ctx)
		if !ok {
			t.Fatal("expected run identity in context")
		}
		if r.RunID.String() != prev.RunID.String() {
			t.Errorf("RunID = %s, want %s", r.RunID, prev.RunID)
		}
		if r.Flow != "settle" {
			t.Errorf("Flow = %q, want %q", r.Flow, "settle")
		}
		return tr.Decision, tr.NewState, nil
	})

	_, _, err := ic(checked).ExecuteTransition(context.Background(), prev, flow.StartEvent(nil), flow.TransitionResult{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
