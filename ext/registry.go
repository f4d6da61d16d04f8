package ext

import (
	"context"
	"log/slog"

	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type runStartedEntry struct {
	name string
	hook RunStarted
}

type runSuspendedEntry struct {
	name string
	hook RunSuspended
}

type runResumedEntry struct {
	name string
	hook RunResumed
}

type runCompletedEntry struct {
	name string
	hook RunCompleted
}

type runErroredEntry struct {
	name string
	hook RunErrored
}

type runRemovedEntry struct {
	name string
	hook RunRemoved
}

type recordAddedEntry struct {
	name string
	hook RecordAdded
}

type signalPublishedEntry struct {
	name string
	hook SignalPublished
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	runStarted      []runStartedEntry
	runSuspended    []runSuspendedEntry
	runResumed      []runResumedEntry
	runCompleted    []runCompletedEntry
	runErrored      []runErroredEntry
	runRemoved      []runRemovedEntry
	recordAdded     []recordAddedEntry
	signalPublished []signalPublishedEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(RunStarted); ok {
		r.runStarted = append(r.runStarted, runStartedEntry{name, h})
	}
	if h, ok := e.(RunSuspended); ok {
		r.runSuspended = append(r.runSuspended, runSuspendedEntry{name, h})
	}
	if h, ok := e.(RunResumed); ok {
		r.runResumed = append(r.runResumed, runResumedEntry{name, h})
	}
	if h, ok := e.(RunCompleted); ok {
		r.runCompleted = append(r.runCompleted, runCompletedEntry{name, h})
	}
	if h, ok := e.(RunErrored); ok {
		r.runErrored = append(r.runErrored, runErroredEntry{name, h})
	}
	if h, ok := e.(RunRemoved); ok {
		r.runRemoved = append(r.runRemoved, runRemovedEntry{name, h})
	}
	if h, ok := e.(RecordAdded); ok {
		r.recordAdded = append(r.recordAdded, recordAddedEntry{name, h})
	}
	if h, ok := e.(SignalPublished); ok {
		r.signalPublished = append(r.signalPublished, signalPublishedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Run event emitters
// ──────────────────────────────────────────────────

// EmitRunStarted notifies all extensions that implement RunStarted.
func (r *Registry) EmitRunStarted(ctx context.Context, st flow.State) {
	for _, e := range r.runStarted {
		if err := e.hook.OnRunStarted(ctx, st); err != nil {
			r.logHookError("OnRunStarted", e.name, err)
		}
	}
}

// EmitRunSuspended notifies all extensions that implement RunSuspended.
func (r *Registry) EmitRunSuspended(ctx context.Context, st flow.State) {
	for _, e := range r.runSuspended {
		if err := e.hook.OnRunSuspended(ctx, st); err != nil {
			r.logHookError("OnRunSuspended", e.name, err)
		}
	}
}

// EmitRunResumed notifies all extensions that implement RunResumed.
func (r *Registry) EmitRunResumed(ctx context.Context, st flow.State, ev flow.Event) {
	for _, e := range r.runResumed {
		if err := e.hook.OnRunResumed(ctx, st, ev); err != nil {
			r.logHookError("OnRunResumed", e.name, err)
		}
	}
}

// EmitRunCompleted notifies all extensions that implement RunCompleted.
func (r *Registry) EmitRunCompleted(ctx context.Context, st flow.State) {
	for _, e := range r.runCompleted {
		if err := e.hook.OnRunCompleted(ctx, st); err != nil {
			r.logHookError("OnRunCompleted", e.name, err)
		}
	}
}

// EmitRunErrored notifies all extensions that implement RunErrored.
func (r *Registry) EmitRunErrored(ctx context.Context, st flow.State, runErr error) {
	for _, e := range r.runErrored {
		if err := e.hook.OnRunErrored(ctx, st, runErr); err != nil {
			r.logHookError("OnRunErrored", e.name, err)
		}
	}
}

// EmitRunRemoved notifies all extensions that implement RunRemoved.
func (r *Registry) EmitRunRemoved(ctx context.Context, runID id.RunID, reason string) {
	for _, e := range r.runRemoved {
		if err := e.hook.OnRunRemoved(ctx, runID, reason); err != nil {
			r.logHookError("OnRunRemoved", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Record and signal event emitters
// ──────────────────────────────────────────────────

// EmitRecordAdded notifies all extensions that implement RecordAdded.
func (r *Registry) EmitRecordAdded(ctx context.Context, rec *record.Record) {
	for _, e := range r.recordAdded {
		if err := e.hook.OnRecordAdded(ctx, rec); err != nil {
			r.logHookError("OnRecordAdded", e.name, err)
		}
	}
}

// EmitSignalPublished notifies all extensions that implement SignalPublished.
func (r *Registry) EmitSignalPublished(ctx context.Context, sig *signal.Signal) {
	for _, e := range r.signalPublished {
		if err := e.hook.OnSignalPublished(ctx, sig); err != nil {
			r.logHookError("OnSignalPublished", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Lifecycle emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
