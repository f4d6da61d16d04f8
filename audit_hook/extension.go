package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lupupam/corda/ext"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.RunStarted      = (*Extension)(nil)
	_ ext.RunSuspended    = (*Extension)(nil)
	_ ext.RunResumed      = (*Extension)(nil)
	_ ext.RunCompleted    = (*Extension)(nil)
	_ ext.RunErrored      = (*Extension)(nil)
	_ ext.RunRemoved      = (*Extension)(nil)
	_ ext.RecordAdded     = (*Extension)(nil)
	_ ext.SignalPublished = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so this package does not depend on any concrete
// audit trail product — callers inject their backend at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// Backends map it to their own schema in a RecorderFunc adapter.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
//
// Example bridging to a SIEM client:
//
//	audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    entry := siem.NewEntry(evt.Action, evt.Resource, evt.ResourceID).
//	        WithOutcome(evt.Outcome)
//	    for k, v := range evt.Metadata {
//	        entry = entry.WithField(k, v)
//	    }
//	    return entry.Send(ctx)
//	})
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges Corda lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (e *Extension) OnRunStarted(ctx context.Context, st flow.State) error {
	return e.record(ctx, ActionRunStarted, SeverityInfo, OutcomeSuccess,
		ResourceRun, st.RunID.String(), CategoryRun, nil,
		"flow", st.Flow,
		"version", st.Version,
	)
}

// OnRunSuspended implements ext.RunSuspended.
func (e *Extension) OnRunSuspended(ctx context.Context, st flow.State) error {
	kv := []any{
		"flow", st.Flow,
		"wait_key", st.WaitKey,
		"suspend_count", st.SuspendCount,
	}
	if st.WakeAt != nil {
		kv = append(kv, "wake_at", st.WakeAt.Format(time.RFC3339))
	}
	return e.record(ctx, ActionRunSuspended, SeverityInfo, OutcomeSuccess,
		ResourceRun, st.RunID.String(), CategoryRun, nil, kv...)
}

// OnRunResumed implements ext.RunResumed.
func (e *Extension) OnRunResumed(ctx context.Context, st flow.State, ev flow.Event) error {
	return e.record(ctx, ActionRunResumed, SeverityInfo, OutcomeSuccess,
		ResourceRun, st.RunID.String(), CategoryRun, nil,
		"flow", st.Flow,
		"event", ev.String(),
	)
}

// OnRunCompleted implements ext.RunCompleted.
func (e *Extension) OnRunCompleted(ctx context.Context, st flow.State) error {
	return e.record(ctx, ActionRunCompleted, SeverityInfo, OutcomeSuccess,
		ResourceRun, st.RunID.String(), CategoryRun, nil,
		"flow", st.Flow,
		"suspend_count", st.SuspendCount,
	)
}

// OnRunErrored implements ext.RunErrored.
func (e *Extension) OnRunErrored(ctx context.Context, st flow.State, runErr error) error {
	return e.record(ctx, ActionRunErrored, SeverityCritical, OutcomeFailure,
		ResourceRun, st.RunID.String(), CategoryRun, runErr,
		"flow", st.Flow,
		"error_count", len(st.Errors),
	)
}

// OnRunRemoved implements ext.RunRemoved.
func (e *Extension) OnRunRemoved(ctx context.Context, runID id.RunID, reason string) error {
	return e.record(ctx, ActionRunRemoved, SeverityWarning, OutcomeSuccess,
		ResourceRun, runID.String(), CategoryRun, nil,
		"reason", reason,
	)
}

// ── Record and signal hooks ─────────────────────────

// OnRecordAdded implements ext.RecordAdded.
func (e *Extension) OnRecordAdded(ctx context.Context, rec *record.Record) error {
	return e.record(ctx, ActionRecordAdded, SeverityInfo, OutcomeSuccess,
		ResourceRecord, rec.ID.String(), CategoryRecord, nil,
		"key", rec.Key,
		"payload_bytes", len(rec.Payload),
	)
}

// OnSignalPublished implements ext.SignalPublished.
func (e *Extension) OnSignalPublished(ctx context.Context, sig *signal.Signal) error {
	return e.record(ctx, ActionSignalPublished, SeverityInfo, OutcomeSuccess,
		ResourceSignal, sig.ID.String(), CategorySignal, nil,
		"key", sig.Key,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
