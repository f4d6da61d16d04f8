// Package audithook is a Corda extension that bridges lifecycle events
// to an immutable audit trail backend.
//
// Every run, record, and signal lifecycle hook emits a structured audit
// event through the [Recorder] interface. The extension assigns appropriate
// severity levels (info for normal operations, warning for removals,
// critical for errored runs) and rich metadata (flow name, wait key,
// suspend count, errors). Hooks fire only after the transaction that
// produced the event committed, so the trail records durable facts.
//
// # Usage
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return trail.Append(ctx, evt.Action, evt.ResourceID, evt.Metadata)
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionRunErrored,
//	        audithook.ActionRunRemoved,
//	    ),
//	)
package audithook
