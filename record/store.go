package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/tx"
)

// DefaultCacheSize is the default bound of the committed-read cache.
const DefaultCacheSize = 1024

// Store is the in-process front over a KV backend: a bounded LRU cache
// for committed reads, plus the live feed that Track subscriptions and
// AwaitKey futures hang off. Inserts stage on the caller's transaction
// and reach the cache and the feed only through commit callbacks, so
// nothing uncommitted is ever observable.
type Store struct {
	kv     KV
	logger *slog.Logger

	cacheSize int
	cache     *lru.Cache[string, *Record]

	feed   *feed
	closed atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithCacheSize bounds the committed-read cache.
func WithCacheSize(n int) Option {
	return func(s *Store) { s.cacheSize = n }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a record store front over the given backend.
func NewStore(kv KV, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("record: nil backend")
	}
	s := &Store{
		kv:        kv,
		logger:    slog.Default(),
		cacheSize: DefaultCacheSize,
		feed:      newFeed(),
	}
	for _, opt := range opts {
		opt(s)
	}
	cache, err := lru.New[string, *Record](s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("record: init cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Add stages an addIfAbsent insert on the caller's transaction. True
// means this call created the entry; its publication to the cache and
// the feed is registered on t and fires only after commit. False means
// the key already existed — first writer wins, the value is untouched,
// and nothing was staged.
func (s *Store) Add(ctx context.Context, t tx.Tx, r *Record) (bool, error) {
	if s.closed.Load() {
		return false, corda.ErrStoreClosed
	}
	if t == nil {
		return false, fmt.Errorf("record: add: nil transaction")
	}
	if r == nil || r.Key == "" {
		return false, fmt.Errorf("record: add: empty key")
	}
	if r.ID.IsNil() {
		r.ID = id.NewRecordID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	inserted, err := s.kv.PutRecord(ctx, t, r)
	if err != nil {
		return false, fmt.Errorf("record: add %q: %w", r.Key, err)
	}
	if !inserted {
		return false, nil
	}

	pub := r.Clone()
	t.OnCommit(func() { s.publish(pub) })
	return true, nil
}

// Get returns the record for key. Outside a transaction the read is
// cache-first with committed values entering the cache on miss; inside
// one the cache is bypassed so the transaction's own staged inserts are
// visible.
func (s *Store) Get(ctx context.Context, t tx.Tx, key string) (*Record, error) {
	if s.closed.Load() {
		return nil, corda.ErrStoreClosed
	}
	if t == nil {
		if rec, ok := s.cache.Get(key); ok {
			return rec, nil
		}
	}
	rec, err := s.kv.GetRecord(ctx, t, key)
	if err != nil {
		return nil, err
	}
	if t == nil {
		s.cache.Add(key, rec)
	}
	return rec, nil
}

// List returns every committed record, key ascending.
func (s *Store) List(ctx context.Context, t tx.Tx) ([]*Record, error) {
	if s.closed.Load() {
		return nil, corda.ErrStoreClosed
	}
	return s.kv.ListRecords(ctx, t)
}

// Track returns an atomic snapshot of the committed records plus a live
// subscription to everything after it. The subscription attaches to the
// feed before the snapshot read and is then seeded from the snapshot,
// so an insert committing while Track runs lands in exactly one of the
// two — never lost, never duplicated.
func (s *Store) Track(ctx context.Context) ([]*Record, *Subscription, error) {
	if s.closed.Load() {
		return nil, nil, corda.ErrStoreClosed
	}

	sub := newSubscription()
	sub.onClose = func() { s.feed.remove(sub.id) }
	s.feed.attach(sub)

	snapshot, err := s.kv.ListRecords(ctx, nil)
	if err != nil {
		s.feed.remove(sub.id)
		return nil, nil, fmt.Errorf("record: track snapshot: %w", err)
	}
	sub.seed(snapshot)
	return snapshot, sub, nil
}

// AwaitKey returns a single-shot future for key. If the key is already
// committed the future is complete on return; otherwise it completes
// when the inserting transaction commits, exactly once, or with ctx's
// error if the wait is cancelled first.
func (s *Store) AwaitKey(ctx context.Context, key string) (*Future, error) {
	if s.closed.Load() {
		return nil, corda.ErrStoreClosed
	}

	fut := newFuture()
	// Register before the lookup: a commit landing between the two is
	// then guaranteed to find the waiter.
	s.feed.addWaiter(key, fut)

	rec, err := s.Get(ctx, nil, key)
	switch {
	case err == nil:
		s.feed.removeWaiter(key, fut)
		fut.complete(rec, nil)
		return fut, nil
	case errors.Is(err, corda.ErrRecordNotFound):
		// Not yet inserted; the feed completes the future on commit.
	default:
		s.feed.removeWaiter(key, fut)
		return nil, fmt.Errorf("record: await %q: %w", key, err)
	}

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				s.feed.removeWaiter(key, fut)
				fut.complete(nil, ctx.Err())
			case <-fut.done:
			}
		}()
	}
	return fut, nil
}

// Close shuts the observation side down: every subscription closes and
// every pending future fails with corda.ErrStoreClosed. The KV backend
// belongs to the composite store and is not touched.
func (s *Store) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	subs, waiters := s.feed.drain()
	for _, sub := range subs {
		sub.Close()
	}
	for _, futs := range waiters {
		for _, fut := range futs {
			fut.complete(nil, corda.ErrStoreClosed)
		}
	}
	s.logger.Debug("record store closed",
		slog.Int("subscriptions", len(subs)),
		slog.Int("waiters", len(waiters)))
}

// publish runs inside a commit callback, after the insert is durable.
// The feed lock serializes publications, which is what gives
// subscribers commit order.
func (s *Store) publish(rec *Record) {
	s.cache.Add(rec.Key, rec)
	s.feed.publish(rec)
}

// Stats is a point-in-time view of the record front.
type Stats struct {
	Cached      int    `json:"cached"`
	Subscribers int    `json:"subscribers"`
	Waiters     int    `json:"waiters"`
	Published   uint64 `json:"published"`
}

// Stats returns front metrics.
func (s *Store) Stats() Stats {
	subs, waiters, seq := s.feed.stats()
	return Stats{
		Cached:      s.cache.Len(),
		Subscribers: subs,
		Waiters:     waiters,
		Published:   seq,
	}
}

// ── Feed ────────────────────────────────────────────

// feed is the fan-out point between commit callbacks and observers.
type feed struct {
	mu      sync.Mutex
	seq     uint64
	subs    map[id.SubscriptionID]*Subscription
	waiters map[string][]*Future
}

func newFeed() *feed {
	return &feed{
		subs:    make(map[id.SubscriptionID]*Subscription),
		waiters: make(map[string][]*Future),
	}
}

func (f *feed) attach(sub *Subscription) {
	f.mu.Lock()
	f.subs[sub.id] = sub
	f.mu.Unlock()
}

func (f *feed) remove(subID id.SubscriptionID) {
	f.mu.Lock()
	delete(f.subs, subID)
	f.mu.Unlock()
}

func (f *feed) addWaiter(key string, fut *Future) {
	f.mu.Lock()
	f.waiters[key] = append(f.waiters[key], fut)
	f.mu.Unlock()
}

func (f *feed) removeWaiter(key string, fut *Future) {
	f.mu.Lock()
	defer f.mu.Unlock()
	futs := f.waiters[key]
	for i, w := range futs {
		if w == fut {
			f.waiters[key] = append(futs[:i], futs[i+1:]...)
			break
		}
	}
	if len(f.waiters[key]) == 0 {
		delete(f.waiters, key)
	}
}

func (f *feed) publish(rec *Record) {
	f.mu.Lock()
	f.seq++
	for _, sub := range f.subs {
		sub.enqueue(rec)
	}
	waiters := f.waiters[rec.Key]
	delete(f.waiters, rec.Key)
	f.mu.Unlock()

	for _, fut := range waiters {
		fut.complete(rec, nil)
	}
}

func (f *feed) drain() ([]*Subscription, map[string][]*Future) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := make([]*Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		subs = append(subs, sub)
	}
	waiters := f.waiters
	f.subs = make(map[id.SubscriptionID]*Subscription)
	f.waiters = make(map[string][]*Future)
	return subs, waiters
}

func (f *feed) stats() (subs, waiters int, seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs), len(f.waiters), f.seq
}
