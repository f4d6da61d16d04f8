package store

import (
	"context"

	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
	"github.com/Lupupam/corda/tx"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (memory, sqlite, postgres, redis) implements all of them plus the
// transaction provider.
type Store interface {
	tx.Provider
	checkpoint.Store
	record.KV
	signal.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
