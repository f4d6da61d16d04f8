// Package memory provides a fully in-memory store backend with real
// transaction semantics: writes stage on the handle and apply atomically
// on commit, commits are serialized so commit callbacks observe commit
// order, and record keys are reserved at staging time so first-writer-wins
// holds under concurrent transactions. Intended for unit testing and
// development; it is the reference backend for the transactional contract.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
	"github.com/Lupupam/corda/tx"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ tx.Provider      = (*Store)(nil)
	_ checkpoint.Store = (*Store)(nil)
	_ record.KV        = (*Store)(nil)
	_ signal.Store     = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access.
type Store struct {
	mu sync.RWMutex

	checkpoints map[string]*checkpoint.Checkpoint // key: RunID
	records     map[string]*record.Record         // key: record key
	signals     []*signal.Signal                  // commit order
	signalIdx   map[string]int                    // SignalID → index into signals

	// reserved holds record keys claimed by in-flight transactions.
	// A second transaction staging the same key blocks until the first
	// resolves, like a row lock. The channel closes on resolution.
	reserved map[string]chan struct{}

	// commitMu serializes commits end to end, including OnCommit
	// callbacks. Record publication order therefore equals commit order.
	commitMu sync.Mutex

	closed atomic.Bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		checkpoints: make(map[string]*checkpoint.Checkpoint),
		records:     make(map[string]*record.Record),
		signalIdx:   make(map[string]int),
		reserved:    make(map[string]chan struct{}),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (m *Store) Ping(_ context.Context) error {
	if m.closed.Load() {
		return corda.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. In-flight transactions may still
// commit; new ones cannot begin.
func (m *Store) Close() error {
	m.closed.Store(true)
	return nil
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// memTx stages writes until Commit applies them atomically.
type memTx struct {
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
func (m *Store) Begin(_ context.Context) (tx.Tx, error) {
	if m.closed.Load() {
		return nil, corda.ErrStoreClosed
	}
	return &memTx{
		store:          m,
		putCheckpoints: make(map[string]*checkpoint.Checkpoint),
		delCheckpoints: make(map[string]struct{}),
		putRecords:     make(map[string]*record.Record),
		ackSignals:     make(map[string]struct{}),
	}, nil
}

// Commit applies all staged writes under the store lock, releases key
// reservations, and then runs OnCommit hooks, all while holding the
// commit mutex so hook order equals commit order.
func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return corda.ErrTxDone
	}
	t.done = true

	m := t.store
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	m.mu.Lock()
	for key := range t.delCheckpoints {
		delete(m.checkpoints, key)
	}
	for key, cp := range t.putCheckpoints {
		m.checkpoints[key] = cp
	}
	for _, key := range t.recordOrder {
		m.records[key] = t.putRecords[key]
	}
	for _, sig := range t.putSignals {
		m.signalIdx[sig.ID.String()] = len(m.signals)
		m.signals = append(m.signals, sig)
	}
	for sigKey := range t.ackSignals {
		if i, ok := m.signalIdx[sigKey]; ok {
			m.signals[i].Acked = true
		}
	}
	t.releaseReservations()
	m.mu.Unlock()

	for _, fn := range t.hooks {
		fn()
	}
	return nil
}

// Rollback discards all staged writes and releases key reservations.
func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return corda.ErrTxDone
	}
	t.done = true

	t.store.mu.Lock()
	t.releaseReservations()
	t.store.mu.Unlock()
	return nil
}

// OnCommit registers fn to run inside Commit, after the writes apply.
func (t *memTx) OnCommit(fn func()) { t.hooks = append(t.hooks, fn) }

// releaseReservations unblocks transactions waiting on this handle's
// record keys. Caller holds the store lock.
func (t *memTx) releaseReservations() {
	for _, key := range t.recordOrder {
		if ch, ok := t.store.reserved[key]; ok {
			delete(t.store.reserved, key)
			close(ch)
		}
	}
}

// writeTx validates a handle for a write operation.
func (m *Store) writeTx(t tx.Tx) (*memTx, error) {
	if t == nil {
		return nil, corda.ErrForeignTx
	}
	mt, ok := t.(*memTx)
	if !ok || mt.store != m {
		return nil, corda.ErrForeignTx
	}
	if mt.done {
		return nil, corda.ErrTxDone
	}
	return mt, nil
}

// readView validates a handle for a read. A nil handle means a one-shot
// committed read and yields a nil view.
func (m *Store) readView(t tx.Tx) (*memTx, error) {
	if t == nil {
		return nil, nil
	}
	return m.writeTx(t)
}

// ──────────────────────────────────────────────────
// Checkpoint Store
// ──────────────────────────────────────────────────

// PutCheckpoint stages an insert-or-replace of the run's checkpoint.
func (m *Store) PutCheckpoint(_ context.Context, t tx.Tx, cp *checkpoint.Checkpoint) error {
	mt, err := m.writeTx(t)
	if err != nil {
		return err
	}
	key := cp.RunID.String()
	mt.putCheckpoints[key] = cp.Clone()
	delete(mt.delCheckpoints, key)
	return nil
}

// GetCheckpoint retrieves the checkpoint for a run, seeing the handle's
// own staged writes first.
func (m *Store) GetCheckpoint(_ context.Context, t tx.Tx, runID id.RunID) (*checkpoint.Checkpoint, error) {
	view, err := m.readView(t)
	if err != nil {
		return nil, err
	}
	key := runID.String()
	if view != nil {
		if cp, ok := view.putCheckpoints[key]; ok {
			return cp.Clone(), nil
		}
		if _, del := view.delCheckpoints[key]; del {
			return nil, corda.ErrRunNotFound
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[key]
	if !ok {
		return nil, corda.ErrRunNotFound
	}
	return cp.Clone(), nil
}

// RemoveCheckpoint stages deletion of the run's checkpoint.
func (m *Store) RemoveCheckpoint(_ context.Context, t tx.Tx, runID id.RunID) error {
	mt, err := m.writeTx(t)
	if err != nil {
		return err
	}
	key := runID.String()
	if _, staged := mt.putCheckpoints[key]; staged {
		delete(mt.putCheckpoints, key)
		mt.delCheckpoints[key] = struct{}{}
		return nil
	}

	m.mu.RLock()
	_, exists := m.checkpoints[key]
	m.mu.RUnlock()
	if !exists {
		return corda.ErrRunNotFound
	}
	mt.delCheckpoints[key] = struct{}{}
	return nil
}

// ListCheckpoints returns checkpoints matching opts, RunID ascending.
func (m *Store) ListCheckpoints(_ context.Context, t tx.Tx, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	view, err := m.readView(t)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	merged := make(map[string]*checkpoint.Checkpoint, len(m.checkpoints))
	for key, cp := range m.checkpoints {
		merged[key] = cp
	}
	m.mu.RUnlock()

	if view != nil {
		for key := range view.delCheckpoints {
			delete(merged, key)
		}
		for key, cp := range view.putCheckpoints {
			merged[key] = cp
		}
	}

	result := make([]*checkpoint.Checkpoint, 0, len(merged))
	for _, cp := range merged {
		if opts.Status != "" && cp.Status != opts.Status {
			continue
		}
		if opts.ErrorState != "" && cp.ErrorState != opts.ErrorState {
			continue
		}
		result = append(result, cp.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].RunID.String() < result[k].RunID.String()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountCheckpoints returns the number of live checkpoints.
func (m *Store) CountCheckpoints(_ context.Context, t tx.Tx) (int64, error) {
	view, err := m.readView(t)
	if err != nil {
		return 0, err
	}

	m.mu.RLock()
	count := int64(len(m.checkpoints))
	if view != nil {
		for key := range view.delCheckpoints {
			if _, ok := m.checkpoints[key]; ok {
				count--
			}
		}
		for key := range view.putCheckpoints {
			if _, ok := m.checkpoints[key]; !ok {
				count++
			}
		}
	}
	m.mu.RUnlock()
	return count, nil
}

// ──────────────────────────────────────────────────
// Record KV
// ──────────────────────────────────────────────────

// PutRecord stages an insert-if-absent. The key is reserved for this
// handle until it resolves; a concurrent transaction staging the same
// key blocks here until then, so exactly one caller ever sees true.
// Two transactions reserving each other's keys deadlock until a context
// cancels, the same way row locks do.
func (m *Store) PutRecord(ctx context.Context, t tx.Tx, r *record.Record) (bool, error) {
	mt, err := m.writeTx(t)
	if err != nil {
		return false, err
	}
	if _, staged := mt.putRecords[r.Key]; staged {
		return false, nil
	}

	for {
		m.mu.Lock()
		if _, exists := m.records[r.Key]; exists {
			m.mu.Unlock()
			return false, nil
		}
		ch, held := m.reserved[r.Key]
		if !held {
			m.reserved[r.Key] = make(chan struct{})
			m.mu.Unlock()
			mt.putRecords[r.Key] = r.Clone()
			mt.recordOrder = append(mt.recordOrder, r.Key)
			return true, nil
		}
		m.mu.Unlock()

		select {
		case <-ch:
			// Reservation resolved; re-check.
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// GetRecord retrieves a record by key, seeing the handle's own staged
// inserts first.
func (m *Store) GetRecord(_ context.Context, t tx.Tx, key string) (*record.Record, error) {
	view, err := m.readView(t)
	if err != nil {
		return nil, err
	}
	if view != nil {
		if r, ok := view.putRecords[key]; ok {
			return r.Clone(), nil
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[key]
	if !ok {
		return nil, corda.ErrRecordNotFound
	}
	return r.Clone(), nil
}

// ListRecords returns all committed records, key ascending. Staged
// inserts on the handle are included for read-your-writes.
func (m *Store) ListRecords(_ context.Context, t tx.Tx) ([]*record.Record, error) {
	view, err := m.readView(t)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	result := make([]*record.Record, 0, len(m.records))
	for _, r := range m.records {
		result = append(result, r.Clone())
	}
	m.mu.RUnlock()

	if view != nil {
		for _, r := range view.putRecords {
			result = append(result, r.Clone())
		}
	}

	sort.Slice(result, func(i, k int) bool { return result[i].Key < result[k].Key })
	return result, nil
}

// ──────────────────────────────────────────────────
// Signal Store
// ──────────────────────────────────────────────────

// AppendSignal stages a new signal.
func (m *Store) AppendSignal(_ context.Context, t tx.Tx, sig *signal.Signal) error {
	mt, err := m.writeTx(t)
	if err != nil {
		return err
	}
	mt.putSignals = append(mt.putSignals, sig.Clone())
	return nil
}

// ListSignals returns signals for a wait key in publish order.
func (m *Store) ListSignals(_ context.Context, t tx.Tx, key string, includeAcked bool) ([]*signal.Signal, error) {
	view, err := m.readView(t)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	result := make([]*signal.Signal, 0, 4)
	for _, sig := range m.signals {
		if sig.Key != key {
			continue
		}
		acked := sig.Acked
		if view != nil {
			if _, staged := view.ackSignals[sig.ID.String()]; staged {
				acked = true
			}
		}
		if acked && !includeAcked {
			continue
		}
		cp := sig.Clone()
		cp.Acked = acked
		result = append(result, cp)
	}
	m.mu.RUnlock()

	if view != nil {
		for _, sig := range view.putSignals {
			if sig.Key != key {
				continue
			}
			_, staged := view.ackSignals[sig.ID.String()]
			if staged && !includeAcked {
				continue
			}
			cp := sig.Clone()
			cp.Acked = cp.Acked || staged
			result = append(result, cp)
		}
	}

	return result, nil
}

// AckSignal stages marking a signal consumed.
func (m *Store) AckSignal(_ context.Context, t tx.Tx, sigID id.SignalID) error {
	mt, err := m.writeTx(t)
	if err != nil {
		return err
	}
	key := sigID.String()

	m.mu.RLock()
	_, exists := m.signalIdx[key]
	m.mu.RUnlock()

	if !exists {
		for _, sig := range mt.putSignals {
			if sig.ID.String() == key {
				exists = true
				break
			}
		}
	}
	if !exists {
		return corda.ErrSignalNotFound
	}
	mt.ackSignals[key] = struct{}{}
	return nil
}
