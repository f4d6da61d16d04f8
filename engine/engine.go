package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/backoff"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/codec"
	"github.com/Lupupam/corda/ext"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/hospital"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/observability"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/scheduler"
	"github.com/Lupupam/corda/signal"
	"github.com/Lupupam/corda/transition"
	"github.com/Lupupam/corda/tx"
)

// Engine wraps a Node with typed subsystem access.
// Use Build() to create one from a Node.
type Engine struct {
	node   *corda.Node
	logger *slog.Logger

	provider    tx.Provider
	checkpoints checkpoint.Store

	registry   *flow.Registry
	extensions *ext.Registry
	records    *record.Store
	bus        *signal.Bus
	diagnostic *transition.Diagnostic
	executor   transition.Executor
	scheduler  *scheduler.Scheduler
	hospital   *hospital.Service

	cdc          codec.Codec
	bo           backoff.Strategy
	limiter      *rate.Limiter
	interceptors []transition.Interceptor

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithInterceptor appends an interceptor to the transition chain. User
// interceptors run inside the default chain, directly around the core
// executor.
func WithInterceptor(ic transition.Interceptor) Option {
	return func(eng *Engine) {
		eng.interceptors = append(eng.interceptors, ic)
	}
}

// WithBackoff sets the storage-retry backoff strategy for the scheduler.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithRateLimit throttles transition execution node-wide.
func WithRateLimit(l *rate.Limiter) Option {
	return func(eng *Engine) {
		eng.limiter = l
	}
}

// WithCodec sets the codec used to serialize typed start payloads.
// Definitions keep their own codec for checkpointed state; the two
// should agree for flows without an Init function. Defaults to JSON.
func WithCodec(c codec.Codec) Option {
	return func(eng *Engine) {
		eng.cdc = c
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing interceptor uses this provider instead of the
// global one. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics interceptor and the observability extension
// use this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Node. The Node's store must
// implement the transaction provider plus the checkpoint, record, and
// signal store interfaces; store.Store backends implement all four.
func Build(node *corda.Node, opts ...Option) (*Engine, error) {
	logger := node.Logger()
	st := node.Store()

	if st == nil {
		return nil, corda.ErrNoStore
	}

	provider, ok := st.(tx.Provider)
	if !ok {
		return nil, fmt.Errorf("corda: store does not implement tx.Provider")
	}

	cps, ok := st.(checkpoint.Store)
	if !ok {
		return nil, fmt.Errorf("corda: store does not implement checkpoint.Store")
	}

	kv, ok := st.(record.KV)
	if !ok {
		return nil, fmt.Errorf("corda: store does not implement record.KV")
	}

	sigs, ok := st.(signal.Store)
	if !ok {
		return nil, fmt.Errorf("corda: store does not implement signal.Store")
	}

	eng := &Engine{
		node:        node,
		logger:      logger,
		provider:    provider,
		checkpoints: cps,
		registry:    flow.NewRegistry(),
		extensions:  ext.NewRegistry(logger),
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.cdc == nil {
		eng.cdc = codec.Default()
	}
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	cfg := node.Config()

	records, err := record.NewStore(kv,
		record.WithCacheSize(cfg.RecordCacheSize),
		record.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	eng.records = records
	eng.bus = signal.NewBus(provider, sigs)

	// Build the tracing interceptor (custom provider or global).
	var tracingIc transition.Interceptor
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/Lupupam/corda")
		tracingIc = transition.TracingWithTracer(tracer)
	} else {
		tracingIc = transition.Tracing()
	}

	// Build the metrics interceptor (custom provider or global).
	var metricsIc transition.Interceptor
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/Lupupam/corda")
		metricsIc = transition.MetricsWithMeter(meter)
	} else {
		metricsIc = transition.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/Lupupam/corda/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	eng.diagnostic = transition.NewDiagnostic(logger,
		transition.WithHistoryLimit(cfg.HistoryLimit),
	)

	core := transition.New(provider, eng.actionHandler(), transition.WithLogger(logger))

	// Default chain: recover → tracing → metrics → logging → diagnostic,
	// user interceptors innermost.
	ics := make([]transition.Interceptor, 0, 5+len(eng.interceptors))
	ics = append(ics,
		transition.Recover(logger),
		tracingIc,
		metricsIc,
		transition.Logging(logger),
		eng.diagnostic.Wrap,
	)
	ics = append(ics, eng.interceptors...)
	eng.executor = transition.Chain(core, ics...)

	schedOpts := []scheduler.Option{
		scheduler.WithConcurrency(cfg.Concurrency),
		scheduler.WithTimerInterval(cfg.TimerInterval),
		scheduler.WithMaxRetries(cfg.MaxTransitionRetries),
		scheduler.WithBackoff(eng.bo),
	}
	if eng.limiter != nil {
		schedOpts = append(schedOpts, scheduler.WithRateLimit(eng.limiter))
	}
	eng.scheduler = scheduler.New(
		eng.registry,
		eng.executor,
		cps,
		eng.bus,
		eng.extensions,
		logger,
		schedOpts...,
	)

	// The hospital resumes errored runs through the scheduler's mailbox
	// and discards them through the engine's removal path, so both
	// operations stay visible to the interceptor chain and the hooks.
	eng.hospital = hospital.NewService(provider, cps, eng.scheduler.Submit, eng.removeRun, logger)

	// Wire back into the Node.
	node.SetMachine(eng.scheduler)
	node.SetHooks(eng.extensions)

	return eng, nil
}

// actionHandler maps transition actions onto the store subsystems. This
// is the only place where a flow.Action becomes a durable write.
func (eng *Engine) actionHandler() transition.ActionHandler {
	return transition.ActionHandlerFunc(func(ctx context.Context, t tx.Tx, act flow.Action) error {
		switch act.Kind {
		case flow.ActionPersistCheckpoint:
			return eng.checkpoints.PutCheckpoint(ctx, t, checkpoint.FromState(*act.State))
		case flow.ActionRemoveCheckpoint:
			return eng.checkpoints.RemoveCheckpoint(ctx, t, act.RunID)
		case flow.ActionAddRecord:
			inserted, err := eng.records.Add(ctx, t, act.Record)
			if err != nil {
				return err
			}
			if inserted {
				rec := act.Record.Clone()
				t.OnCommit(func() { eng.extensions.EmitRecordAdded(ctx, rec) })
			}
			return nil
		case flow.ActionAckSignal:
			return eng.bus.Ack(ctx, t, act.SignalID)
		default:
			return fmt.Errorf("corda: unknown action kind %q", act.Kind)
		}
	})
}

// Register registers a typed flow definition with the engine.
func Register[T any](eng *Engine, def *flow.Definition[T]) error {
	return flow.RegisterDefinition(eng.registry, def)
}

// StartRun starts a run of the named flow with a typed input, serialized
// through the engine's codec. It returns the new run's ID; the run
// itself executes asynchronously.
func StartRun[T any](ctx context.Context, eng *Engine, flowName string, input T) (id.RunID, error) {
	payload, err := eng.cdc.Marshal(input)
	if err != nil {
		return id.RunID{}, fmt.Errorf("corda: start %q: %w", flowName, err)
	}
	return eng.StartRunRaw(ctx, flowName, 0, payload)
}

// StartRunRaw starts a run from a pre-serialized start payload. Version
// pins a registered definition version; 0 means latest. The initial
// checkpoint is durable before this returns: a run started while the
// scheduler is idle replays at the next Restore.
func (eng *Engine) StartRunRaw(ctx context.Context, flowName string, version int, payload []byte) (id.RunID, error) {
	m, ok := eng.registry.GetVersion(flowName, version)
	if !ok {
		return id.RunID{}, fmt.Errorf("corda: start %q: %w", flowName, corda.ErrFlowNotFound)
	}

	runID := id.NewRunID()
	ev := flow.StartEvent(payload)

	st, err := m.Init(ctx, runID, ev)
	if err != nil {
		return id.RunID{}, fmt.Errorf("corda: start %q: %w", flowName, err)
	}

	err = tx.With(ctx, eng.provider, func(ctx context.Context, t tx.Tx) error {
		return eng.checkpoints.PutCheckpoint(ctx, t, checkpoint.FromState(st))
	})
	if err != nil {
		return id.RunID{}, fmt.Errorf("corda: start %q: %w", flowName, err)
	}

	eng.extensions.EmitRunStarted(ctx, st)

	if err := eng.scheduler.Submit(ctx, runID, ev); err != nil {
		if errors.Is(err, corda.ErrNotStarted) || errors.Is(err, corda.ErrStopped) {
			eng.logger.Debug("run created while scheduler idle, will replay on restore",
				slog.String("run_id", runID.String()),
				slog.String("flow", flowName),
			)
			return runID, nil
		}
		return id.RunID{}, fmt.Errorf("corda: start %q: %w", flowName, err)
	}
	return runID, nil
}

// Signal durably publishes a signal under key and wakes every run parked
// on it. Returns the number of runs woken; a signal that wakes nothing
// stays pending for the next run to park on the key.
func (eng *Engine) Signal(ctx context.Context, key string, payload []byte) (int, error) {
	return eng.scheduler.Signal(ctx, key, payload)
}

// RemoveRun forcibly removes a run: the checkpoint is deleted through a
// real removal transition so the interceptor chain observes it, and the
// diagnostic history is discarded. Any live slot is evicted first.
func (eng *Engine) RemoveRun(ctx context.Context, runID id.RunID) error {
	return eng.removeRun(ctx, runID, flow.RemoveKilled)
}

func (eng *Engine) removeRun(ctx context.Context, runID id.RunID, reason string) error {
	cp, err := eng.checkpoints.GetCheckpoint(ctx, nil, runID)
	if err != nil {
		return fmt.Errorf("corda: remove run %s: %w", runID, err)
	}

	// Evict before committing the removal so the run stops consuming
	// events. If the removal then fails the slot is gone but the
	// checkpoint survives; the next Restore rebuilds it.
	eng.scheduler.Evict(runID)

	prev := cp.ToState()
	if _, _, err := eng.executor.ExecuteTransition(ctx, prev, flow.KillEvent(), flow.BuildRemoval(prev, reason)); err != nil {
		return fmt.Errorf("corda: remove run %s: %w", runID, err)
	}

	eng.extensions.EmitRunRemoved(ctx, runID, reason)
	return nil
}

// GetRun returns the run's current checkpoint.
func (eng *Engine) GetRun(ctx context.Context, runID id.RunID) (*checkpoint.Checkpoint, error) {
	return eng.checkpoints.GetCheckpoint(ctx, nil, runID)
}

// ListRuns lists checkpoints, filtered and paginated by opts.
func (eng *Engine) ListRuns(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	return eng.checkpoints.ListCheckpoints(ctx, nil, opts)
}

// History returns the run's in-memory transition history, oldest first.
// Nil when the run never transitioned on this node or was removed.
func (eng *Engine) History(runID id.RunID) []transition.TransitionRecord {
	return eng.diagnostic.History(runID)
}

// Stats is a point-in-time view across the engine's subsystems.
type Stats struct {
	Scheduler scheduler.Stats `json:"scheduler"`
	Hospital  hospital.Stats  `json:"hospital"`
	Records   record.Stats    `json:"records"`
}

// Stats gathers subsystem statistics.
func (eng *Engine) Stats(ctx context.Context) (Stats, error) {
	hs, err := eng.hospital.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Scheduler: eng.scheduler.Stats(),
		Hospital:  hs,
		Records:   eng.records.Stats(),
	}, nil
}

// Start brings the node online: the scheduler starts accepting work,
// then every durable run is restored — suspended runs park, errored runs
// halt, and runs that were mid-transition replay from their checkpoints.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.node.Start(ctx); err != nil {
		return err
	}

	// Restore is best-effort: the scheduler is already live, so a partial
	// restore leaves runs that recover on the next restart or signal.
	if err := eng.scheduler.Restore(ctx); err != nil {
		eng.logger.Warn("restore incomplete, some runs may need a retry or restart",
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Stop gracefully shuts the node down: intake stops, in-flight
// transitions get the configured shutdown timeout when ctx carries no
// deadline, the shutdown hook fires, the store closes, and the record
// front fails its pending waiters.
func (eng *Engine) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		if d := eng.node.Config().ShutdownTimeout; d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}

	err := eng.node.Stop(ctx)
	eng.records.Close()
	return err
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the flow registry.
func (eng *Engine) Registry() *flow.Registry { return eng.registry }

// Node returns the underlying Node.
func (eng *Engine) Node() *corda.Node { return eng.node }

// Records returns the record store for Track, AwaitKey, and Get.
func (eng *Engine) Records() *record.Store { return eng.records }

// Hospital returns the errored-run triage service.
func (eng *Engine) Hospital() *hospital.Service { return eng.hospital }

// Scheduler returns the run scheduler.
func (eng *Engine) Scheduler() *scheduler.Scheduler { return eng.scheduler }
