package flow_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/codec"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
)

type tradeState struct {
	TradeID string `json:"trade_id"`
	Amount  int    `json:"amount"`
	Settled bool   `json:"settled"`
}

func settleDef() *flow.Definition[tradeState] {
	return &flow.Definition[tradeState]{
		Name: "settle",
		Step: func(_ context.Context, st *tradeState, ev flow.Event) (flow.Result, error) {
			switch ev.Kind {
			case flow.EventStart:
				return flow.Result{Decision: flow.Suspend("payment." + st.TradeID)}, nil
			case flow.EventSignal:
				st.Settled = true
				return flow.Result{Decision: flow.Complete()}, nil
			default:
				return flow.Result{Decision: flow.Continue()}, nil
			}
		},
	}
}

func TestRegistry_RegisterAndInit(t *testing.T) {
	r := flow.NewRegistry()
	if err := flow.RegisterDefinition(r, settleDef()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	m, ok := r.Get("settle")
	if !ok {
		t.Fatal("expected machine to be registered")
	}
	if m.Version() != 1 {
		t.Errorf("default version = %d, want 1", m.Version())
	}
	if m.CodecName() != "json" {
		t.Errorf("default codec = %q, want json", m.CodecName())
	}

	runID := id.NewRunID()
	payload, _ := json.Marshal(tradeState{TradeID: "T-1", Amount: 250})
	st, err := m.Init(context.Background(), runID, flow.StartEvent(payload))
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if st.RunID != runID {
		t.Errorf("RunID = %v, want %v", st.RunID, runID)
	}
	if st.Flow != "settle" || st.Version != 1 {
		t.Errorf("identity = %s/%d, want settle/1", st.Flow, st.Version)
	}
	if st.Status != flow.StatusRunning || st.ErrorState != flow.ErrorStateClean {
		t.Errorf("fresh state = %s/%s, want running/clean", st.Status, st.ErrorState)
	}

	var decoded tradeState
	if err := json.Unmarshal(st.Data, &decoded); err != nil {
		t.Fatalf("decode state data: %v", err)
	}
	if decoded.TradeID != "T-1" || decoded.Amount != 250 {
		t.Errorf("seeded data = %+v", decoded)
	}
}

func TestRegistry_StepAdvancesState(t *testing.T) {
	r := flow.NewRegistry()
	if err := flow.RegisterDefinition(r, settleDef()); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	m, _ := r.Get("settle")

	runID := id.NewRunID()
	payload, _ := json.Marshal(tradeState{TradeID: "T-9"})
	st, err := m.Init(context.Background(), runID, flow.StartEvent(payload))
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	tr, err := m.Step(context.Background(), st, flow.StartEvent(payload))
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if tr.Decision.Kind != flow.DecisionSuspend {
		t.Fatalf("decision = %s, want suspend", tr.Decision.Kind)
	}
	if tr.NewState.WaitKey != "payment.T-9" {
		t.Errorf("wait key = %q, want payment.T-9", tr.NewState.WaitKey)
	}
	if tr.NewState.SuspendCount != 1 {
		t.Errorf("suspend count = %d, want 1", tr.NewState.SuspendCount)
	}

	tr2, err := m.Step(context.Background(), tr.NewState, flow.SignalEvent(id.NewSignalID(), "payment.T-9", nil))
	if err != nil {
		t.Fatalf("second step failed: %v", err)
	}
	if tr2.Decision.Kind != flow.DecisionRemove || tr2.Decision.Reason != flow.RemoveCompleted {
		t.Fatalf("decision = %+v, want remove/completed", tr2.Decision)
	}
}

func TestRegistry_DuplicateVersionRejected(t *testing.T) {
	r := flow.NewRegistry()
	if err := flow.RegisterDefinition(r, settleDef()); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := flow.RegisterDefinition(r, settleDef())
	if !errors.Is(err, corda.ErrFlowExists) {
		t.Fatalf("expected ErrFlowExists, got %v", err)
	}
}

func TestRegistry_Versioning(t *testing.T) {
	r := flow.NewRegistry()

	v1 := settleDef()
	v2 := settleDef()
	v2.Version = 2

	if err := flow.RegisterDefinition(r, v1); err != nil {
		t.Fatalf("register v1: %v", err)
	}
	if err := flow.RegisterDefinition(r, v2); err != nil {
		t.Fatalf("register v2: %v", err)
	}

	if got := r.LatestVersion("settle"); got != 2 {
		t.Errorf("LatestVersion = %d, want 2", got)
	}

	m, ok := r.Get("settle")
	if !ok || m.Version() != 2 {
		t.Errorf("Get returned version %d, want 2", m.Version())
	}

	m1, ok := r.GetVersion("settle", 1)
	if !ok || m1.Version() != 1 {
		t.Error("expected pinned version 1 to stay resolvable")
	}

	if _, ok := r.GetVersion("settle", 3); ok {
		t.Error("expected no machine for unregistered version 3")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := flow.NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected no machine for unregistered flow")
	}
	if got := r.LatestVersion("nonexistent"); got != 0 {
		t.Errorf("LatestVersion = %d, want 0", got)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := flow.NewRegistry()

	for _, name := range []string{"flow-a", "flow-b", "flow-c"} {
		def := settleDef()
		def.Name = name
		if err := flow.RegisterDefinition(r, def); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	names := r.Names()
	sort.Strings(names)
	want := []string{"flow-a", "flow-b", "flow-c"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistry_ValidationErrors(t *testing.T) {
	r := flow.NewRegistry()

	if err := flow.RegisterDefinition(r, &flow.Definition[tradeState]{Name: ""}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := flow.RegisterDefinition(r, &flow.Definition[tradeState]{Name: "no-step"}); err == nil {
		t.Error("expected error for missing step function")
	}
}

func TestRegistry_PoisonedStateIsDeserializationError(t *testing.T) {
	r := flow.NewRegistry()
	if err := flow.RegisterDefinition(r, settleDef()); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	m, _ := r.Get("settle")

	st := flow.State{
		RunID:      id.NewRunID(),
		Flow:       "settle",
		Version:    1,
		Status:     flow.StatusRunning,
		ErrorState: flow.ErrorStateClean,
		Data:       []byte("{not json"),
	}
	_, err := m.Step(context.Background(), st, flow.RetryEvent())
	if !errors.Is(err, corda.ErrDeserialization) {
		t.Fatalf("expected ErrDeserialization, got %v", err)
	}
}

func TestRegistry_StepErrorWrapped(t *testing.T) {
	r := flow.NewRegistry()
	boom := errors.New("ledger offline")
	def := &flow.Definition[tradeState]{
		Name: "failing",
		Step: func(context.Context, *tradeState, flow.Event) (flow.Result, error) {
			return flow.Result{}, boom
		},
	}
	if err := flow.RegisterDefinition(r, def); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	m, _ := r.Get("failing")
	_, err := m.Step(context.Background(), flow.State{}, flow.RetryEvent())
	if !errors.Is(err, boom) {
		t.Fatalf("expected step error in chain, got %v", err)
	}
}

func TestRegistry_GobCodec(t *testing.T) {
	r := flow.NewRegistry()
	def := settleDef()
	def.Codec = codec.Gob{}
	if err := flow.RegisterDefinition(r, def); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	m, _ := r.Get("settle")
	if m.CodecName() != "gob" {
		t.Fatalf("codec = %q, want gob", m.CodecName())
	}

	// Init must seed through gob, not JSON: hand it a typed Init instead
	// of a JSON payload.
	def2 := &flow.Definition[tradeState]{
		Name:  "settle-gob",
		Codec: codec.Gob{},
		Init: func(context.Context, flow.Event) (tradeState, error) {
			return tradeState{TradeID: "T-G", Amount: 7}, nil
		},
		Step: def.Step,
	}
	if err := flow.RegisterDefinition(r, def2); err != nil {
		t.Fatalf("register gob def: %v", err)
	}
	m2, _ := r.Get("settle-gob")

	st, err := m2.Init(context.Background(), id.NewRunID(), flow.StartEvent(nil))
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	tr, err := m2.Step(context.Background(), st, flow.StartEvent(nil))
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if tr.NewState.WaitKey != "payment.T-G" {
		t.Errorf("wait key = %q, want payment.T-G", tr.NewState.WaitKey)
	}
}
