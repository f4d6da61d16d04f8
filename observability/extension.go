package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Lupupam/corda/ext"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
)

// meterName is the instrumentation scope name for this extension.
const meterName = "github.com/Lupupam/corda/observability"

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.RunStarted      = (*MetricsExtension)(nil)
	_ ext.RunSuspended    = (*MetricsExtension)(nil)
	_ ext.RunResumed      = (*MetricsExtension)(nil)
	_ ext.RunCompleted    = (*MetricsExtension)(nil)
	_ ext.RunErrored      = (*MetricsExtension)(nil)
	_ ext.RunRemoved      = (*MetricsExtension)(nil)
	_ ext.RecordAdded     = (*MetricsExtension)(nil)
	_ ext.SignalPublished = (*MetricsExtension)(nil)
)

// MetricsExtension records node-wide lifecycle metrics via OTel counters.
// Register it as a Corda extension to automatically track run starts,
// suspensions, resumes, completions, errored halts, removals, record
// inserts, and signal publishes.
//
// Run counters carry a "flow" attribute; removals carry "reason".
type MetricsExtension struct {
	runsStarted      metric.Int64Counter
	runsSuspended    metric.Int64Counter
	runsResumed      metric.Int64Counter
	runsCompleted    metric.Int64Counter
	runsErrored      metric.Int64Counter
	runsRemoved      metric.Int64Counter
	recordsAdded     metric.Int64Counter
	signalsPublished metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. If no MeterProvider is configured, noop instruments are
// used and every hook becomes a pass-through.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific MeterProvider
// for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}

	// Create instruments once at construction time. OTel instruments are
	// safe for concurrent use. On error, the API returns noop instruments
	// so the extension degrades gracefully.
	var err error
	m.runsStarted, err = meter.Int64Counter("corda.run.started",
		metric.WithDescription("Total number of runs started"),
		metric.WithUnit("{run}"))
	_ = err // noop fallback guaranteed by OTel API contract
	m.runsSuspended, err = meter.Int64Counter("corda.run.suspended",
		metric.WithDescription("Total number of run suspensions"),
		metric.WithUnit("{run}"))
	_ = err
	m.runsResumed, err = meter.Int64Counter("corda.run.resumed",
		metric.WithDescription("Total number of run resumes"),
		metric.WithUnit("{run}"))
	_ = err
	m.runsCompleted, err = meter.Int64Counter("corda.run.completed",
		metric.WithDescription("Total number of runs completed"),
		metric.WithUnit("{run}"))
	_ = err
	m.runsErrored, err = meter.Int64Counter("corda.run.errored",
		metric.WithDescription("Total number of runs halted in the errored state"),
		metric.WithUnit("{run}"))
	_ = err
	m.runsRemoved, err = meter.Int64Counter("corda.run.removed",
		metric.WithDescription("Total number of runs removed without completing"),
		metric.WithUnit("{run}"))
	_ = err
	m.recordsAdded, err = meter.Int64Counter("corda.record.added",
		metric.WithDescription("Total number of record inserts committed"),
		metric.WithUnit("{record}"))
	_ = err
	m.signalsPublished, err = meter.Int64Counter("corda.signal.published",
		metric.WithDescription("Total number of signals published"),
		metric.WithUnit("{signal}"))
	_ = err

	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func flowAttr(st flow.State) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("flow", st.Flow))
}

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (m *MetricsExtension) OnRunStarted(ctx context.Context, st flow.State) error {
	m.runsStarted.Add(ctx, 1, flowAttr(st))
	return nil
}

// OnRunSuspended implements ext.RunSuspended.
func (m *MetricsExtension) OnRunSuspended(ctx context.Context, st flow.State) error {
	m.runsSuspended.Add(ctx, 1, flowAttr(st))
	return nil
}

// OnRunResumed implements ext.RunResumed.
func (m *MetricsExtension) OnRunResumed(ctx context.Context, st flow.State, _ flow.Event) error {
	m.runsResumed.Add(ctx, 1, flowAttr(st))
	return nil
}

// OnRunCompleted implements ext.RunCompleted.
func (m *MetricsExtension) OnRunCompleted(ctx context.Context, st flow.State) error {
	m.runsCompleted.Add(ctx, 1, flowAttr(st))
	return nil
}

// OnRunErrored implements ext.RunErrored.
func (m *MetricsExtension) OnRunErrored(ctx context.Context, st flow.State, _ error) error {
	m.runsErrored.Add(ctx, 1, flowAttr(st))
	return nil
}

// OnRunRemoved implements ext.RunRemoved.
func (m *MetricsExtension) OnRunRemoved(ctx context.Context, _ id.RunID, reason string) error {
	m.runsRemoved.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	return nil
}

// ── Record and signal hooks ─────────────────────────

// OnRecordAdded implements ext.RecordAdded.
func (m *MetricsExtension) OnRecordAdded(ctx context.Context, _ *record.Record) error {
	m.recordsAdded.Add(ctx, 1)
	return nil
}

// OnSignalPublished implements ext.SignalPublished.
func (m *MetricsExtension) OnSignalPublished(ctx context.Context, _ *signal.Signal) error {
	m.signalsPublished.Add(ctx, 1)
	return nil
}
