package transition

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/Lupupam/corda/flow"
)

// Recover returns an interceptor that recovers from panics anywhere in
// the executor chain. Panics are converted to errors and logged with a
// stack trace; the run's persisted state is untouched, so the caller
// handles the error like any other failed transition.
func Recover(logger *slog.Logger) Interceptor {
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (dec flow.Decision, st flow.State, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					stack := string(debug.Stack())
					logger.Error("transition panicked",
						slog.String("run_id", prev.RunID.String()),
						slog.String("flow", prev.Flow),
						slog.Any("panic", r),
						slog.String("stack", stack),
					)
					dec = flow.Decision{}
					st = prev
					retErr = fmt.Errorf("panic in run %s: %v", prev.RunID, r)
				}
			}()
			return next.ExecuteTransition(ctx, prev, ev, tr)
		})
	}
}
