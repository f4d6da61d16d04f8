package transition

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
)

// DefaultHistoryLimit bounds the per-run history kept by the diagnostic
// interceptor. Oldest records drop first.
const DefaultHistoryLimit = 256

// TransitionRecord is one entry in a run's diagnostic history.
type TransitionRecord struct {
	Seq        int               `json:"seq"`
	At         time.Time         `json:"at"`
	Event      string            `json:"event"`
	PrevStatus flow.Status       `json:"prev_status"`
	NextStatus flow.Status       `json:"next_status"`
	PrevError  flow.ErrorState   `json:"prev_error"`
	NextError  flow.ErrorState   `json:"next_error"`
	Decision   flow.DecisionKind `json:"decision,omitempty"`
	Err        string            `json:"err,omitempty"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// Diagnostic observes every transition and keeps a bounded, ordered
// per-run history. When a run's error state newly becomes errored, the
// full history is dumped to the log sink once; a later errored edge
// after the run was healed dumps again. A Remove decision discards the
// run's history.
//
// Dumping is best-effort: it never blocks other runs and never fails
// the transition being observed.
type Diagnostic struct {
	logger *slog.Logger
	limit  int

	mu   sync.Mutex
	runs map[string]*runHistory
}

type runHistory struct {
	seq     int
	records []TransitionRecord
}

// DiagnosticOption configures a Diagnostic.
type DiagnosticOption func(*Diagnostic)

// WithHistoryLimit sets the per-run history bound. Defaults to
// DefaultHistoryLimit.
func WithHistoryLimit(n int) DiagnosticOption {
	return func(d *Diagnostic) {
		if n > 0 {
			d.limit = n
		}
	}
}

// NewDiagnostic creates the diagnostic interceptor.
func NewDiagnostic(logger *slog.Logger, opts ...DiagnosticOption) *Diagnostic {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Diagnostic{
		logger: logger,
		limit:  DefaultHistoryLimit,
		runs:   make(map[string]*runHistory),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Wrap makes Diagnostic usable as an [Interceptor].
func (d *Diagnostic) Wrap(next Executor) Executor {
	return ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
		start := time.Now()
		dec, st, err := next.ExecuteTransition(ctx, prev, ev, tr)
		d.observe(prev, ev, dec, st, time.Since(start), err)
		return dec, st, err
	})
}

// History returns a copy of the run's transition history, oldest first.
// Nil when the run has no history (never executed here, or removed).
func (d *Diagnostic) History(runID id.RunID) []TransitionRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.runs[runID.String()]
	if h == nil {
		return nil
	}
	out := make([]TransitionRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (d *Diagnostic) observe(prev flow.State, ev flow.Event, dec flow.Decision, next flow.State, elapsed time.Duration, err error) {
	key := prev.RunID.String()

	// A committed Remove forgets the run, history included.
	if err == nil && dec.Kind == flow.DecisionRemove {
		d.mu.Lock()
		delete(d.runs, key)
		d.mu.Unlock()
		return
	}

	rec := TransitionRecord{
		At:         time.Now().UTC(),
		Event:      ev.String(),
		PrevStatus: prev.Status,
		NextStatus: next.Status,
		PrevError:  prev.ErrorState,
		NextError:  next.ErrorState,
		Elapsed:    elapsed,
	}
	if err != nil {
		rec.Err = err.Error()
	} else {
		rec.Decision = dec.Kind
	}

	d.mu.Lock()
	h := d.runs[key]
	if h == nil {
		h = &runHistory{}
		d.runs[key] = h
	}
	h.seq++
	rec.Seq = h.seq
	h.records = append(h.records, rec)
	if len(h.records) > d.limit {
		n := copy(h.records, h.records[len(h.records)-d.limit:])
		h.records = h.records[:n]
	}

	// The errored edge fires only on committed transitions: a failed
	// attempt leaves the persisted error state unchanged.
	var dump []TransitionRecord
	if err == nil && prev.ErrorState == flow.ErrorStateClean && next.ErrorState == flow.ErrorStateErrored {
		dump = make([]TransitionRecord, len(h.records))
		copy(dump, h.records)
	}
	d.mu.Unlock()

	if dump != nil {
		d.dump(next, dump)
	}
}

func (d *Diagnostic) dump(st flow.State, records []TransitionRecord) {
	d.logger.Error("run entered errored state, dumping transition history",
		slog.String("run_id", st.RunID.String()),
		slog.String("flow", st.Flow),
		slog.Int("transitions", len(records)),
	)
	for _, r := range records {
		attrs := []slog.Attr{
			slog.Int("seq", r.Seq),
			slog.String("run_id", st.RunID.String()),
			slog.Time("at", r.At),
			slog.String("event", r.Event),
			slog.String("from_status", string(r.PrevStatus)),
			slog.String("to_status", string(r.NextStatus)),
			slog.Duration("elapsed", r.Elapsed),
		}
		if r.Err != "" {
			attrs = append(attrs, slog.String("error", r.Err))
		} else {
			attrs = append(attrs, slog.String("decision", string(r.Decision)))
		}
		d.logger.LogAttrs(context.Background(), slog.LevelWarn, "transition history", attrs...)
	}
}
