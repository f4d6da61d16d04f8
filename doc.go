// Package corda provides a durable flow execution core for Go. Flows are
// explicit state machines whose progress is checkpointed; a crashed or
// suspended run always resumes from its last committed checkpoint.
//
// Corda is designed as a library, not a service. Import it, configure a
// store, register flow definitions, and drive runs with external signals.
//
// # Quick Start
//
//	node, err := corda.New(
//	    corda.WithStore(memStore),
//	    corda.WithConcurrency(20),
//	)
//
// # Architecture
//
// Corda follows a composable store pattern where each subsystem
// (checkpoint, record, signal) defines its own store interface and a
// single backend implements all of them behind an explicit transaction
// handle. Transitions run through an ordered interceptor chain around a
// core executor that persists every effect atomically before the run
// moves on.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package corda
