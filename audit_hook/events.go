package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionRunStarted      = "run.started"
	ActionRunSuspended    = "run.suspended"
	ActionRunResumed      = "run.resumed"
	ActionRunCompleted    = "run.completed"
	ActionRunErrored      = "run.errored"
	ActionRunRemoved      = "run.removed"
	ActionRecordAdded     = "record.added"
	ActionSignalPublished = "signal.published"
)

// Audit event categories group related actions.
const (
	CategoryRun    = "corda.run"
	CategoryRecord = "corda.record"
	CategorySignal = "corda.signal"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceRun    = "flow_run"
	ResourceRecord = "record"
	ResourceSignal = "signal"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionRunStarted,
		ActionRunSuspended,
		ActionRunResumed,
		ActionRunCompleted,
		ActionRunErrored,
		ActionRunRemoved,
		ActionRecordAdded,
		ActionSignalPublished,
	}
}
