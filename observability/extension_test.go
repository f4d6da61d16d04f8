package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Lupupam/corda/ext"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/observability"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
)

func setupTestMeter(t *testing.T) (metric.Meter, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider.Meter("test"), reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	if !ok {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q: expected Sum[int64], got %T", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func newTestState() flow.State {
	return flow.State{
		RunID:   id.NewRunID(),
		Flow:    "settle-payment",
		Version: 1,
		Status:  flow.StatusRunning,
	}
}

func TestMetricsExtension_Name(t *testing.T) {
	meter, _ := setupTestMeter(t)
	e := observability.NewMetricsExtensionWithMeter(meter)
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_RunStarted(t *testing.T) {
	meter, reader := setupTestMeter(t)
	e := observability.NewMetricsExtensionWithMeter(meter)

	if err := e.OnRunStarted(context.Background(), newTestState()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rm := collectMetrics(t, reader)
	if got := counterValue(t, rm, "corda.run.started"); got != 1 {
		t.Errorf("corda.run.started: want 1, got %d", got)
	}

	m, _ := findMetric(rm, "corda.run.started")
	sum := m.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 {
		t.Fatalf("expected 1 data point, got %d", len(sum.DataPoints))
	}
	if v, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("flow")); !ok || v.AsString() != "settle-payment" {
		t.Errorf("flow attribute: want %q, got %v", "settle-payment", v)
	}
}

func TestMetricsExtension_RunLifecycleCounters(t *testing.T) {
	meter, reader := setupTestMeter(t)
	e := observability.NewMetricsExtensionWithMeter(meter)

	ctx := context.Background()
	st := newTestState()

	if err := e.OnRunSuspended(ctx, st); err != nil {
		t.Fatalf("OnRunSuspended: %v", err)
	}
	if err := e.OnRunResumed(ctx, st, flow.RetryEvent()); err != nil {
		t.Fatalf("OnRunResumed: %v", err)
	}
	if err := e.OnRunCompleted(ctx, st); err != nil {
		t.Fatalf("OnRunCompleted: %v", err)
	}
	if err := e.OnRunErrored(ctx, st, errors.New("boom")); err != nil {
		t.Fatalf("OnRunErrored: %v", err)
	}

	rm := collectMetrics(t, reader)
	for _, name := range []string{
		"corda.run.suspended",
		"corda.run.resumed",
		"corda.run.completed",
		"corda.run.errored",
	} {
		if got := counterValue(t, rm, name); got != 1 {
			t.Errorf("%s: want 1, got %d", name, got)
		}
	}
}

func TestMetricsExtension_RunRemoved_ReasonAttribute(t *testing.T) {
	meter, reader := setupTestMeter(t)
	e := observability.NewMetricsExtensionWithMeter(meter)

	if err := e.OnRunRemoved(context.Background(), id.NewRunID(), "discarded"); err != nil {
		t.Fatalf("OnRunRemoved: %v", err)
	}

	rm := collectMetrics(t, reader)
	m, ok := findMetric(rm, "corda.run.removed")
	if !ok {
		t.Fatal("corda.run.removed not found")
	}
	sum := m.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 {
		t.Fatalf("expected 1 data point, got %d", len(sum.DataPoints))
	}
	if v, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("reason")); !ok || v.AsString() != "discarded" {
		t.Errorf("reason attribute: want %q, got %v", "discarded", v)
	}
}

func TestMetricsExtension_RecordAndSignalCounters(t *testing.T) {
	meter, reader := setupTestMeter(t)
	e := observability.NewMetricsExtensionWithMeter(meter)

	ctx := context.Background()
	if err := e.OnRecordAdded(ctx, &record.Record{ID: id.NewRecordID(), Key: "tx:1"}); err != nil {
		t.Fatalf("OnRecordAdded: %v", err)
	}
	if err := e.OnSignalPublished(ctx, &signal.Signal{ID: id.NewSignalID(), Key: "payment:42"}); err != nil {
		t.Fatalf("OnSignalPublished: %v", err)
	}

	rm := collectMetrics(t, reader)
	if got := counterValue(t, rm, "corda.record.added"); got != 1 {
		t.Errorf("corda.record.added: want 1, got %d", got)
	}
	if got := counterValue(t, rm, "corda.signal.published"); got != 1 {
		t.Errorf("corda.signal.published: want 1, got %d", got)
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	meter, reader := setupTestMeter(t)
	e := observability.NewMetricsExtensionWithMeter(meter)

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	st := newTestState()

	reg.EmitRunStarted(ctx, st)
	reg.EmitRunSuspended(ctx, st)
	reg.EmitRunResumed(ctx, st, flow.RetryEvent())
	reg.EmitRunCompleted(ctx, st)
	reg.EmitRunErrored(ctx, st, errors.New("fail"))
	reg.EmitRunRemoved(ctx, st.RunID, "discarded")
	reg.EmitRecordAdded(ctx, &record.Record{ID: id.NewRecordID(), Key: "tx:1"})
	reg.EmitSignalPublished(ctx, &signal.Signal{ID: id.NewSignalID(), Key: "payment:42"})

	rm := collectMetrics(t, reader)
	for _, name := range []string{
		"corda.run.started",
		"corda.run.suspended",
		"corda.run.resumed",
		"corda.run.completed",
		"corda.run.errored",
		"corda.run.removed",
		"corda.record.added",
		"corda.signal.published",
	} {
		if got := counterValue(t, rm, name); got != 1 {
			t.Errorf("%s: want 1, got %d", name, got)
		}
	}
}

func TestMetricsExtension_DefaultNoopSafe(t *testing.T) {
	// Without a configured global MeterProvider the extension uses noop
	// instruments. Hooks must not panic.
	e := observability.NewMetricsExtension()

	ctx := context.Background()
	st := newTestState()
	if err := e.OnRunStarted(ctx, st); err != nil {
		t.Fatalf("OnRunStarted: %v", err)
	}
	if err := e.OnRunRemoved(ctx, st.RunID, "x"); err != nil {
		t.Fatalf("OnRunRemoved: %v", err)
	}
}
