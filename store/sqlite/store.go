package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
	"github.com/Lupupam/corda/tx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ tx.Provider      = (*Store)(nil)
	_ checkpoint.Store = (*Store)(nil)
	_ record.KV        = (*Store)(nil)
	_ signal.Store     = (*Store)(nil)
)

// Store is a SQLite implementation of store.Store built on Bun with the
// pure-Go modernc driver. A single file (or :memory:) holds all three
// tables; SQLite's single-writer transactions give the same atomicity
// the memory backend stages by hand.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
	ownsDB bool

	// commitMu serializes commits end to end, including OnCommit
	// callbacks, so record publication order equals commit order.
	commitMu sync.Mutex
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a SQLite store over an existing Bun handle. The caller
// owns the db lifecycle — the Store will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database file at path, creating it if needed, and
// returns a store that owns the connection. WAL journaling keeps
// one-shot reads unblocked while a transition commits, and the busy
// timeout covers writer handoff.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)"
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("corda/sqlite: open %s: %w", path, err)
	}

	s := New(bun.NewDB(sqldb, sqlitedialect.New()), opts...)
	s.ownsDB = true
	return s, nil
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	// Create migrations tracking table.
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS corda_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("corda/sqlite: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("corda/sqlite: read migrations: %w", err)
	}

	// Sort by filename for deterministic order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM corda_migrations WHERE filename = ?)`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("corda/sqlite: check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("corda/sqlite: read migration %s: %w", entry.Name(), readErr)
		}

		_, execErr := s.db.ExecContext(ctx, string(data))
		if execErr != nil {
			return fmt.Errorf("corda/sqlite: execute migration %s: %w", entry.Name(), execErr)
		}

		_, recErr := s.db.ExecContext(ctx,
			`INSERT INTO corda_migrations (filename) VALUES (?)`,
			entry.Name(),
		)
		if recErr != nil {
			return fmt.Errorf("corda/sqlite: record migration %s: %w", entry.Name(), recErr)
		}

		s.logger.Info("applied migration", "file", entry.Name())
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Close closes the database when the store owns it (Open); for a
// caller-provided handle it is a no-op.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// sqliteTx wraps a Bun transaction with the corda handle contract:
// single-use, OnCommit hooks run inside Commit after durability.
type sqliteTx struct {
	store *Store
	tx    bun.Tx
	done  bool
	hooks []func()
}

// Begin starts a new transaction.
func (s *Store) Begin(ctx context.Context) (tx.Tx, error) {
	bt, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin", err)
	}
	return &sqliteTx{store: s, tx: bt}, nil
}

// Commit makes the transaction durable and then runs OnCommit hooks in
// registration order, all under the store's commit mutex so hook order
// equals commit order.
func (t *sqliteTx) Commit(_ context.Context) error {
	if t.done {
		return corda.ErrTxDone
	}
	t.done = true

	t.store.commitMu.Lock()
	defer t.store.commitMu.Unlock()
	if err := t.tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	for _, fn := range t.hooks {
		fn()
	}
	return nil
}

// Rollback discards all writes performed through this handle.
func (t *sqliteTx) Rollback(_ context.Context) error {
	if t.done {
		return corda.ErrTxDone
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return storageErr("rollback", err)
	}
	return nil
}

// OnCommit registers fn to run inside Commit, after the writes apply.
func (t *sqliteTx) OnCommit(fn func()) { t.hooks = append(t.hooks, fn) }

// writeTx validates a handle for a write operation.
func (s *Store) writeTx(t tx.Tx) (*sqliteTx, error) {
	if t == nil {
		return nil, corda.ErrForeignTx
	}
	st, ok := t.(*sqliteTx)
	if !ok || st.store != s {
		return nil, corda.ErrForeignTx
	}
	if st.done {
		return nil, corda.ErrTxDone
	}
	return st, nil
}

// idb resolves a handle to the query runner: the handle's transaction,
// or the root db for a nil handle (one-shot committed read).
func (s *Store) idb(t tx.Tx) (bun.IDB, error) {
	if t == nil {
		return s.db, nil
	}
	st, err := s.writeTx(t)
	if err != nil {
		return nil, err
	}
	return st.tx, nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// storageErr classifies a driver failure. The queries here are fixed at
// compile time, so a runtime error is infrastructure (file locked, I/O,
// closed handle) and carries the transient-failure sentinel.
func storageErr(op string, err error) error {
	return fmt.Errorf("corda/sqlite: %s: %w: %w", op, corda.ErrStorageUnavailable, err)
}
