package transition

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Lupupam/corda/flow"
)

// meterName is the instrumentation scope name for corda metrics.
const meterName = "github.com/Lupupam/corda"

// Metrics returns an interceptor that records per-transition metrics
// using the global OTel MeterProvider. If no MeterProvider is
// configured, noop instruments are used and this interceptor becomes a
// pass-through.
//
// Instruments:
//   - corda.transition.duration (Float64Histogram): execution time in
//     seconds, with attributes: flow, decision, status ("ok" or "error")
//   - corda.transition.executions (Int64Counter): total executions,
//     with attributes: flow, decision, status ("ok" or "error")
func Metrics() Interceptor {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns the metrics interceptor using the provided
// meter. This variant allows injecting a specific MeterProvider for
// testing.
func MetricsWithMeter(meter metric.Meter) Interceptor {
	// Create instruments once at construction time. OTel instruments are
	// safe for concurrent use. On error, the API returns noop instruments
	// so the interceptor degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"corda.transition.duration",
		metric.WithDescription("Duration of transition execution in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	executions, eErr := meter.Int64Counter(
		"corda.transition.executions",
		metric.WithDescription("Total number of transition executions"),
		metric.WithUnit("{transition}"),
	)
	_ = eErr // noop fallback guaranteed by OTel API contract

	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
			start := time.Now()
			dec, st, err := next.ExecuteTransition(ctx, prev, ev, tr)
			elapsed := time.Since(start).Seconds()

			status := "ok"
			if err != nil {
				status = "error"
			}

			attrs := metric.WithAttributes(
				attribute.String("flow", prev.Flow),
				attribute.String("decision", string(dec.Kind)),
				attribute.String("status", status),
			)

			duration.Record(ctx, elapsed, attrs)
			executions.Add(ctx, 1, attrs)

			return dec, st, err
		})
	}
}
