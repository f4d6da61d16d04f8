package transition

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Lupupam/corda/flow"
)

// tracerName is the instrumentation scope name for corda tracing.
const tracerName = "github.com/Lupupam/corda"

// Tracing returns an interceptor that wraps each transition in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this interceptor becomes a
// pass-through with zero overhead.
//
// Span attributes include: corda.run.id, corda.flow, corda.flow.version,
// corda.event, corda.suspend_count, and corda.decision on success. On
// error, the span status is set to codes.Error with the error message.
func Tracing() Interceptor {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns the tracing interceptor using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Interceptor {
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
			ctx, span := tracer.Start(ctx, "corda.transition.execute",
				trace.WithAttributes(
					attribute.String("corda.run.id", prev.RunID.String()),
					attribute.String("corda.flow", prev.Flow),
					attribute.Int("corda.flow.version", prev.Version),
					attribute.String("corda.event", ev.String()),
					attribute.Int("corda.suspend_count", prev.SuspendCount),
				),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			dec, st, err := next.ExecuteTransition(ctx, prev, ev, tr)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetAttributes(attribute.String("corda.decision", string(dec.Kind)))
				span.SetStatus(codes.Ok, "")
			}

			return dec, st, err
		})
	}
}
