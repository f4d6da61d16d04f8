package transition

import (
	"context"
	"time"

	"github.com/Lupupam/corda/flow"
)

// Timeout returns an interceptor that enforces a per-transition
// deadline. When the deadline is exceeded the context is cancelled; the
// transaction rolls back and the transition fails with
// context.DeadlineExceeded. A non-positive d disables the deadline.
func Timeout(d time.Duration) Interceptor {
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
			if d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return next.ExecuteTransition(ctx, prev, ev, tr)
		})
	}
}
