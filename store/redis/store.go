package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
	"github.com/Lupupam/corda/tx"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ tx.Provider      = (*Store)(nil)
	_ checkpoint.Store = (*Store)(nil)
	_ record.KV        = (*Store)(nil)
	_ signal.Store     = (*Store)(nil)
)

// Store implements store.Store backed by Redis. Redis has no
// server-side multi-statement transactions, so writes stage on the
// handle and a commit replays them through one TxPipeline, which the
// server applies atomically.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger

	// commitMu serializes commits end to end, including OnCommit
	// callbacks, so record publication order equals commit order.
	commitMu sync.Mutex
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a new Redis-backed store. The caller owns the Redis
// client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// redisTx stages writes until Commit replays them in one TxPipeline.
type redisTx struct {
	store *Store
	done  bool

	putCheckpoints map[string]*checkpoint.Checkpoint
	delCheckpoints map[string]struct{}

	putRecords  map[string]*record.Record
	recordOrder []string

	putSignals []*signal.Signal
	ackSignals map[string]struct{}

	hooks []func()
}

// Begin starts a new transaction.
func (s *Store) Begin(_ context.Context) (tx.Tx, error) {
	return &redisTx{
		store:          s,
		putCheckpoints: make(map[string]*checkpoint.Checkpoint),
		delCheckpoints: make(map[string]struct{}),
		putRecords:     make(map[string]*record.Record),
		ackSignals:     make(map[string]struct{}),
	}, nil
}

// Commit replays all staged writes through a single TxPipeline and then
// runs OnCommit hooks in registration order, all under the store's
// commit mutex so hook order equals commit order. Record reservations
// drop inside the same pipeline.
func (t *redisTx) Commit(ctx context.Context) error {
	if t.done {
		return corda.ErrTxDone
	}
	t.done = true

	s := t.store
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	pipe := s.client.TxPipeline()
	for key := range t.delCheckpoints {
		pipe.Del(ctx, checkpointKey(key))
		pipe.SRem(ctx, checkpointRunsKey, key)
	}
	for key, cp := range t.putCheckpoints {
		m, err := checkpointToMap(cp)
		if err != nil {
			t.releaseReservations(ctx)
			return err
		}
		pipe.HSet(ctx, checkpointKey(key), m)
		pipe.SAdd(ctx, checkpointRunsKey, key)
	}
	for _, key := range t.recordOrder {
		pipe.HSet(ctx, recordKey(key), recordToMap(t.putRecords[key]))
		pipe.SAdd(ctx, recordKeysKey, key)
		pipe.Del(ctx, reserveKey(key))
	}
	// Signal hashes land before acks so acking a signal staged on the
	// same handle works.
	for _, sig := range t.putSignals {
		sID := sig.ID.String()
		pipe.HSet(ctx, signalKey(sID), signalToMap(sig))
		pipe.RPush(ctx, signalListKey(sig.Key), sID)
	}
	for sID := range t.ackSignals {
		pipe.HSet(ctx, signalKey(sID), "acked", "1")
	}

	if _, err := pipe.Exec(ctx); err != nil {
		t.releaseReservations(ctx)
		return storageErr("commit", err)
	}
	for _, fn := range t.hooks {
		fn()
	}
	return nil
}

// Rollback discards all staged writes and releases record reservations.
func (t *redisTx) Rollback(ctx context.Context) error {
	if t.done {
		return corda.ErrTxDone
	}
	t.done = true
	t.releaseReservations(ctx)
	return nil
}

// OnCommit registers fn to run inside Commit, after the writes apply.
func (t *redisTx) OnCommit(fn func()) { t.hooks = append(t.hooks, fn) }

// releaseReservations drops the SETNX reservations this handle holds.
// Best effort; an unreleased reservation expires with its TTL.
func (t *redisTx) releaseReservations(ctx context.Context) {
	for _, key := range t.recordOrder {
		if err := t.store.client.Del(ctx, reserveKey(key)).Err(); err != nil {
			t.store.logger.Warn("release record reservation", "key", key, "error", err)
		}
	}
}

// writeTx validates a handle for a write operation.
func (s *Store) writeTx(t tx.Tx) (*redisTx, error) {
	if t == nil {
		return nil, corda.ErrForeignTx
	}
	rt, ok := t.(*redisTx)
	if !ok || rt.store != s {
		return nil, corda.ErrForeignTx
	}
	if rt.done {
		return nil, corda.ErrTxDone
	}
	return rt, nil
}

// readView validates a handle for a read. A nil handle means a one-shot
// committed read and yields a nil view.
func (s *Store) readView(t tx.Tx) (*redisTx, error) {
	if t == nil {
		return nil, nil
	}
	return s.writeTx(t)
}

// ── helpers ──────────────────────────────────────────────────────

// storageErr classifies a driver failure. The commands here are fixed
// at compile time, so a runtime error is infrastructure (connection,
// timeout, failover), which retry-from-checkpoint treats as transient.
func storageErr(op string, err error) error {
	return fmt.Errorf("corda/redis: %s: %w: %w", op, corda.ErrStorageUnavailable, err)
}
