package transition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/tx"
)

// ActionHandler applies one persistence action on a transaction. The
// engine provides the implementation; it is the only place that knows
// how actions map onto the store (checkpoint writes, record appends,
// signal acks).
type ActionHandler interface {
	Apply(ctx context.Context, t tx.Tx, act flow.Action) error
}

// ActionHandlerFunc adapts a function to the ActionHandler interface.
type ActionHandlerFunc func(ctx context.Context, t tx.Tx, act flow.Action) error

// Apply calls f.
func (f ActionHandlerFunc) Apply(ctx context.Context, t tx.Tx, act flow.Action) error {
	return f(ctx, t, act)
}

// Core is the terminal executor. It begins a transaction, applies the
// transition's actions in order through the handler, and commits. Either
// every action of a transition becomes durable or none does.
type Core struct {
	provider tx.Provider
	handler  ActionHandler
	logger   *slog.Logger
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates the core executor.
func New(provider tx.Provider, handler ActionHandler, opts ...Option) *Core {
	c := &Core{
		provider: provider,
		handler:  handler,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Executor = (*Core)(nil)

// ExecuteTransition commits tr's actions atomically. On any begin, apply,
// or commit error the transaction is rolled back and prev is returned
// unchanged; the caller decides between retrying from the checkpoint and
// marking the run errored.
func (c *Core) ExecuteTransition(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
	t, err := c.provider.Begin(ctx)
	if err != nil {
		return flow.Decision{}, prev, fmt.Errorf("transition: begin: %w", err)
	}

	for _, act := range tr.Actions {
		if aerr := c.handler.Apply(ctx, t, act); aerr != nil {
			if rerr := t.Rollback(ctx); rerr != nil {
				c.logger.Warn("transition rollback failed",
					slog.String("run_id", prev.RunID.String()),
					slog.String("error", rerr.Error()),
				)
			}
			return flow.Decision{}, prev, fmt.Errorf("transition: apply %s: %w", act.Kind, aerr)
		}
	}

	if err := t.Commit(ctx); err != nil {
		return flow.Decision{}, prev, fmt.Errorf("transition: commit: %w", err)
	}

	return tr.Decision, tr.NewState, nil
}
