package hospital_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/hospital"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/store/memory"
)

func seedErrored(t *testing.T, s *memory.Store, flowName string) id.RunID {
	t.Helper()
	st := flow.State{
		RunID:        id.NewRunID(),
		Flow:         flowName,
		Version:      1,
		Status:       flow.StatusSuspended,
		WaitKey:      "approval:order-1",
		SuspendCount: 2,
		ErrorState:   flow.ErrorStateErrored,
		Errors:       []flow.FlowError{flow.NewFlowError(errors.New("ledger unreachable"))},
		Data:         []byte(`{"Total":1}`),
	}
	putCheckpoint(t, s, checkpoint.FromState(st))
	return st.RunID
}

func seedClean(t *testing.T, s *memory.Store, flowName string) id.RunID {
	t.Helper()
	st := flow.State{
		RunID:      id.NewRunID(),
		Flow:       flowName,
		Version:    1,
		Status:     flow.StatusRunning,
		ErrorState: flow.ErrorStateClean,
	}
	putCheckpoint(t, s, checkpoint.FromState(st))
	return st.RunID
}

func putCheckpoint(t *testing.T, s *memory.Store, cp *checkpoint.Checkpoint) {
	t.Helper()
	ctx := context.Background()
	tr, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.PutCheckpoint(ctx, tr, cp); err != nil {
		t.Fatalf("PutCheckpoint: %v", err)
	}
	if err := tr.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestService_ListErrored(t *testing.T) {
	s := memory.New()
	svc := hospital.NewService(s, s, nil, nil, nil)
	ctx := context.Background()

	seedErrored(t, s, "settle")
	seedErrored(t, s, "ship-order")
	seedClean(t, s, "settle")

	sick, err := svc.ListErrored(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListErrored: %v", err)
	}
	if len(sick) != 2 {
		t.Fatalf("errored runs = %d, want 2", len(sick))
	}
	for _, cp := range sick {
		if cp.ErrorState != flow.ErrorStateErrored {
			t.Errorf("error state = %q, want %q", cp.ErrorState, flow.ErrorStateErrored)
		}
	}

	// Pagination.
	page, err := svc.ListErrored(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListErrored: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("page size = %d, want 1", len(page))
	}
}

func TestService_Retry_HealsAndResumes(t *testing.T) {
	s := memory.New()

	resumed := &resumeRecorder{}
	svc := hospital.NewService(s, s, resumed.fn(), nil, nil)
	ctx := context.Background()

	runID := seedErrored(t, s, "settle")

	if err := svc.Retry(ctx, runID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	cp, err := s.GetCheckpoint(ctx, nil, runID)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if cp.ErrorState != flow.ErrorStateClean {
		t.Errorf("error state = %q, want %q", cp.ErrorState, flow.ErrorStateClean)
	}
	if len(cp.Errors) != 0 {
		t.Errorf("errors = %d, want 0", len(cp.Errors))
	}
	// The rest of the run survives healing untouched.
	if cp.SuspendCount != 2 {
		t.Errorf("suspend count = %d, want 2", cp.SuspendCount)
	}
	if cp.WaitKey != "approval:order-1" {
		t.Errorf("wait key = %q, want %q", cp.WaitKey, "approval:order-1")
	}
	if string(cp.State) != `{"Total":1}` {
		t.Errorf("state = %q, want preserved payload", cp.State)
	}

	runIDGot, ev := resumed.last()
	if runIDGot.String() != runID.String() {
		t.Errorf("resumed run = %v, want %v", runIDGot, runID)
	}
	if ev.Kind != flow.EventRetry {
		t.Errorf("resume event = %q, want %q", ev.Kind, flow.EventRetry)
	}
}

func TestService_Retry_NotErrored(t *testing.T) {
	s := memory.New()
	resumed := &resumeRecorder{}
	svc := hospital.NewService(s, s, resumed.fn(), nil, nil)
	ctx := context.Background()

	runID := seedClean(t, s, "settle")

	err := svc.Retry(ctx, runID)
	if !errors.Is(err, corda.ErrNotErrored) {
		t.Fatalf("Retry error = %v, want %v", err, corda.ErrNotErrored)
	}
	if resumed.count() != 0 {
		t.Error("resume must not be called for a clean run")
	}
}

func TestService_Retry_RunNotFound(t *testing.T) {
	s := memory.New()
	svc := hospital.NewService(s, s, nil, nil, nil)

	err := svc.Retry(context.Background(), id.NewRunID())
	if !errors.Is(err, corda.ErrRunNotFound) {
		t.Fatalf("Retry error = %v, want %v", err, corda.ErrRunNotFound)
	}
}

func TestService_Discard_RemovesCheckpoint(t *testing.T) {
	s := memory.New()
	svc := hospital.NewService(s, s, nil, nil, nil)
	ctx := context.Background()

	runID := seedErrored(t, s, "settle")

	if err := svc.Discard(ctx, runID); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	if _, err := s.GetCheckpoint(ctx, nil, runID); !errors.Is(err, corda.ErrRunNotFound) {
		t.Fatalf("GetCheckpoint error = %v, want %v", err, corda.ErrRunNotFound)
	}
}

func TestService_Discard_UsesRemovalPath(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	var mu sync.Mutex
	var gotRun id.RunID
	var gotReason string
	discard := func(_ context.Context, runID id.RunID, reason string) error {
		mu.Lock()
		defer mu.Unlock()
		gotRun = runID
		gotReason = reason
		return nil
	}
	svc := hospital.NewService(s, s, nil, discard, nil)

	runID := seedErrored(t, s, "settle")

	if err := svc.Discard(ctx, runID); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotRun.String() != runID.String() {
		t.Errorf("discarded run = %v, want %v", gotRun, runID)
	}
	if gotReason != flow.RemoveKilled {
		t.Errorf("reason = %q, want %q", gotReason, flow.RemoveKilled)
	}
}

func TestService_Discard_NotErrored(t *testing.T) {
	s := memory.New()
	svc := hospital.NewService(s, s, nil, nil, nil)
	ctx := context.Background()

	runID := seedClean(t, s, "settle")

	err := svc.Discard(ctx, runID)
	if !errors.Is(err, corda.ErrNotErrored) {
		t.Fatalf("Discard error = %v, want %v", err, corda.ErrNotErrored)
	}

	// The healthy run survives.
	if _, err := s.GetCheckpoint(ctx, nil, runID); err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
}

func TestService_Stats(t *testing.T) {
	s := memory.New()
	svc := hospital.NewService(s, s, nil, nil, nil)
	ctx := context.Background()

	seedErrored(t, s, "settle")
	seedClean(t, s, "settle")
	seedClean(t, s, "ship-order")

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Errored != 1 {
		t.Errorf("Errored = %d, want 1", stats.Errored)
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// resumeRecorder captures resume callbacks.
type resumeRecorder struct {
	mu    sync.Mutex
	runs  []id.RunID
	event flow.Event
}

func (r *resumeRecorder) fn() hospital.ResumeFunc {
	return func(_ context.Context, runID id.RunID, ev flow.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.runs = append(r.runs, runID)
		r.event = ev
		return nil
	}
}

func (r *resumeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func (r *resumeRecorder) last() (id.RunID, flow.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return id.RunID{}, flow.Event{}
	}
	return r.runs[len(r.runs)-1], r.event
}
