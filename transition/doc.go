// Package transition executes computed state machine transitions.
//
// An [Executor] takes a transition result — the new state, the decision,
// and the persistence actions — and commits it. The terminal executor is
// [Core]: one transaction per transition, all actions applied through an
// engine-provided [ActionHandler], commit or rollback as a unit.
//
// Cross-cutting behavior wraps the core through [Interceptor] values
// composed with [Chain]. Interceptors are applied right-to-left: the
// first interceptor in the list is the outermost wrapper.
//
//	// recover → logging → diagnostic → core
//	ex := transition.Chain(core,
//	    transition.Recover(logger),
//	    transition.Logging(logger),
//	    diag.Wrap,
//	)
//
// # Built-in Interceptors
//
//   - [Diagnostic] — per-run transition history; dumps it to the log
//     when a run newly becomes errored, discards it on removal
//   - [Logging] — logs event, decision, duration, and outcome
//   - [Recover] — catches panics and converts them to errors
//   - [Timeout] — cancels the transition context after a deadline
//   - [Tracing] — wraps execution in an OpenTelemetry span
//   - [Metrics] — records per-transition duration and outcome counters
//   - [Scope] — injects run identity into the context
//
// # Writing Custom Interceptors
//
//	func Mine() transition.Interceptor {
//	    return func(next transition.Executor) transition.Executor {
//	        return transition.ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
//	            // pre-processing
//	            dec, st, err := next.ExecuteTransition(ctx, prev, ev, tr)
//	            // post-processing
//	            return dec, st, err
//	        })
//	    }
//	}
//
// Interceptors observe and annotate; they never decide. Decisions come
// from the transition function that produced the result.
package transition
