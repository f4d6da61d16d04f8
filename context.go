package corda

import "context"

// Context is the execution context passed through transitions and hooks.
// It is an alias for context.Context; run identity is injected via the
// scope package on the stdlib context.
type Context = context.Context
