package flow

import (
	"context"

	"github.com/Lupupam/corda/codec"
)

// Definition describes a typed flow. T is the flow's own state payload:
// it is decoded from the checkpoint before every transition and encoded
// back after, so it must round-trip through the definition's codec.
type Definition[T any] struct {
	// Name identifies the flow. Required.
	Name string

	// Version tags this definition; 0 means 1. Runs remember the version
	// they started with and keep using it across resumes, so older
	// versions stay registered while their runs are live.
	Version int

	// Codec serializes T. Defaults to codec.Default() (JSON).
	Codec codec.Codec

	// Init seeds T from the start event. When nil, the start payload is
	// unmarshalled directly into T (empty payload leaves the zero value).
	Init func(ctx context.Context, ev Event) (T, error)

	// Step is the transition function: pure with respect to persistence,
	// it inspects the event, mutates the typed state, and returns the
	// continuation decision plus records to append. Required.
	Step func(ctx context.Context, data *T, ev Event) (Result, error)
}
