package transition

import (
	"context"

	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/scope"
)

// Scope returns an interceptor that stamps the context with the run's
// identity before executing. Action handlers and extensions can read it
// back with scope.RunFrom.
func Scope() Interceptor {
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
			ctx = scope.WithRun(ctx, scope.Run{RunID: prev.RunID, Flow: prev.Flow})
			return next.ExecuteTransition(ctx, prev, ev, tr)
		})
	}
}
