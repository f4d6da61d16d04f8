package transition

import (
	"context"
	"log/slog"
	"time"

	"github.com/Lupupam/corda/flow"
)

// Logging returns an interceptor that logs each transition's outcome.
// Starts log at debug (transitions are hot), completions at info,
// failures at error.
func Logging(logger *slog.Logger) Interceptor {
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
			logger.Debug("transition started",
				slog.String("run_id", prev.RunID.String()),
				slog.String("flow", prev.Flow),
				slog.String("event", ev.String()),
			)

			start := time.Now()
			dec, st, err := next.ExecuteTransition(ctx, prev, ev, tr)
			elapsed := time.Since(start)

			if err != nil {
				logger.Error("transition failed",
					slog.String("run_id", prev.RunID.String()),
					slog.String("flow", prev.Flow),
					slog.String("event", ev.String()),
					slog.Duration("elapsed", elapsed),
					slog.String("error", err.Error()),
				)
			} else {
				logger.Info("transition committed",
					slog.String("run_id", prev.RunID.String()),
					slog.String("flow", prev.Flow),
					slog.String("event", ev.String()),
					slog.String("decision", string(dec.Kind)),
					slog.Duration("elapsed", elapsed),
				)
			}

			return dec, st, err
		})
	}
}
