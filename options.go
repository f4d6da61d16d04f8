package corda

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Node.
type Option func(*Node) error

// Storer is the minimal store interface held by the Node.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// machineRunner is an internal interface for scheduler lifecycle.
type machineRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hookEmitter is an internal interface for lifecycle hook shutdown events.
type hookEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Node is the central coordinator for flow runs: it owns the store, the
// configuration, and the scheduler lifecycle.
//
// Create one with New() and functional options. The Node holds references
// to subsystem components via internal interfaces to avoid import cycles.
// Use engine.Build() to wire the registry, interceptor chain, scheduler,
// and hook registry together.
type Node struct {
	config  Config
	logger  *slog.Logger
	store   Storer
	hooks   hookEmitter
	machine machineRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Node with the given options.
func New(opts ...Option) (*Node, error) {
	n := &Node{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Logger returns the node's logger.
func (n *Node) Logger() *slog.Logger { return n.logger }

// Store returns the node's store.
func (n *Node) Store() Storer { return n.store }

// Config returns a copy of the node's configuration.
func (n *Node) Config() Config { return n.config }

// SetMachine sets the scheduler (called by the engine package).
func (n *Node) SetMachine(m machineRunner) { n.machine = m }

// SetHooks sets the hook emitter (called by the engine package).
func (n *Node) SetHooks(h hookEmitter) { n.hooks = h }

// Start begins processing run transitions.
func (n *Node) Start(ctx context.Context) error {
	if n.machine == nil {
		return ErrNoStore
	}
	if err := n.machine.Start(ctx); err != nil {
		return err
	}
	n.started = true
	return nil
}

// Stop gracefully shuts down the node.
func (n *Node) Stop(ctx context.Context) error {
	if n.machine != nil && n.started {
		if err := n.machine.Stop(ctx); err != nil {
			n.logger.Error("scheduler stop error", "error", err)
		}
	}
	if n.hooks != nil {
		n.hooks.EmitShutdown(ctx)
	}
	if n.store != nil {
		return n.store.Close()
	}
	return nil
}

// WithConcurrency sets the maximum number of concurrently transitioning runs.
func WithConcurrency(c int) Option {
	return func(n *Node) error {
		n.config.Concurrency = c
		return nil
	}
}

// WithShutdownTimeout sets the maximum time Stop waits for in-flight
// transitions to finish.
func WithShutdownTimeout(d time.Duration) Option {
	return func(n *Node) error {
		n.config.ShutdownTimeout = d
		return nil
	}
}

// WithTimerInterval sets how often parked runs are checked for due wakeups.
func WithTimerInterval(d time.Duration) Option {
	return func(n *Node) error {
		n.config.TimerInterval = d
		return nil
	}
}

// WithLogger sets the structured logger for the node.
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) error {
		n.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the node.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(n *Node) error {
		n.store = s
		return nil
	}
}

// WithConfig replaces the node's configuration wholesale. Field-level
// options applied after it still take effect.
func WithConfig(c Config) Option {
	return func(n *Node) error {
		n.config = c
		return nil
	}
}
