package transition

import (
	"context"

	"github.com/Lupupam/corda/flow"
)

// Executor runs one computed transition to completion. The terminal
// implementation is [Core], which commits the transition's actions in a
// single transaction; everything else in this package wraps an Executor
// with cross-cutting behavior.
//
// On success the returned decision and state are the transition's own.
// On failure nothing was committed and the returned state is prev,
// unchanged. An Executor never decides anything itself: decisions come
// from the transition function that produced tr.
type Executor interface {
	ExecuteTransition(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error)

// ExecuteTransition calls f.
func (f ExecutorFunc) ExecuteTransition(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
	return f(ctx, prev, ev, tr)
}

// Interceptor wraps an Executor with cross-cutting logic. Interceptors
// MUST call the wrapped executor to continue the chain (unless
// short-circuiting on error).
type Interceptor func(Executor) Executor

// Chain composes interceptors around a core executor. Interceptors are
// applied right-to-left: the first interceptor in the list is the
// outermost wrapper.
//
// Example: Chain(core, Recover(l), Logging(l)) executes as:
//
//	recover → logging → core
func Chain(core Executor, ics ...Interceptor) Executor {
	// Build the chain from the end backwards.
	ex := core
	for i := len(ics) - 1; i >= 0; i-- {
		ex = ics[i](ex)
	}
	return ex
}
