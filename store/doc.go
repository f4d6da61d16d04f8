// Package store defines the aggregate persistence interface.
//
// Each subsystem (checkpoint, record, signal) defines its own store
// interface. The composite [Store] composes them all, plus transactions
// and lifecycle. A single backend need only implement Store to satisfy
// every subsystem's persistence contract.
//
// The composite interface:
//
//	type Store interface {
//	    tx.Provider
//	    checkpoint.Store
//	    record.KV
//	    signal.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory — in-memory store for development and testing
//   - store/sqlite — SQLite backend using Bun over modernc.org/sqlite
//   - store/postgres — PostgreSQL backend using pgx/v5
//   - store/redis — Redis backend using go-redis/v9
//
// # Transactions
//
// Every operation takes an explicit tx.Tx handle begun on the same
// store. Writes staged on a handle become visible only when Commit
// returns nil; OnCommit callbacks (record publication rides on them)
// run inside Commit, after durability. A nil handle on read operations
// means a one-shot committed read.
//
// # Usage
//
//	import "github.com/Lupupam/corda/store/sqlite"
//
//	s, err := sqlite.Open("corda.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	node, err := corda.New(corda.WithStore(s))
//
// # Migrations
//
// Call Migrate once at startup to create or update the schema:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
