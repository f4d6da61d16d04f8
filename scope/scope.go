// Package scope carries run identity through context.Context.
//
// The scheduler stamps the context of every transition with the run
// being executed. Flow code, extensions, and interceptors can read the
// identity back without the engine threading identifiers through every
// signature.
package scope

import (
	"context"

	"github.com/Lupupam/corda/id"
)

type ctxKey struct{}

// Run identifies the run executing on the current goroutine.
type Run struct {
	RunID id.RunID
	Flow  string
}

// WithRun attaches run identity to the context.
func WithRun(ctx context.Context, r Run) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// RunFrom extracts run identity from the context. The second return is
// false outside a transition.
func RunFrom(ctx context.Context) (Run, bool) {
	r, ok := ctx.Value(ctxKey{}).(Run)
	return r, ok
}
