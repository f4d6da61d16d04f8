package record

import (
	"sync"
	"sync/atomic"

	"github.com/Lupupam/corda/id"
)

// DefaultOutBuffer is the buffer of the delivery channel handed to
// subscribers. The real backlog is the unbounded queue behind it, so a
// slow reader delays only its own delivery, never a committer.
const DefaultOutBuffer = 64

// Subscription is a live feed of committed records, created by
// Store.Track. Each subscription owns an unbounded queue filled by
// commit callbacks and drained by a pump goroutine into C. Keys already
// covered by the Track snapshot, or already delivered once, are dropped
// on entry, so the at-least-once publication upstream becomes
// exactly-once per key at the channel.
type Subscription struct {
	id  id.SubscriptionID
	out chan *Record

	mu    sync.Mutex
	queue []*Record
	seen  map[string]struct{}

	wake   chan struct{}
	stop   chan struct{}
	closed atomic.Bool

	// onClose detaches the subscription from the feed.
	onClose func()
}

func newSubscription() *Subscription {
	return &Subscription{
		id:   id.NewSubscriptionID(),
		out:  make(chan *Record, DefaultOutBuffer),
		seen: make(map[string]struct{}),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// ID returns the subscription identifier.
func (s *Subscription) ID() id.SubscriptionID { return s.id }

// C returns the channel committed records arrive on, in commit order.
// It closes when the subscription closes.
func (s *Subscription) C() <-chan *Record { return s.out }

// enqueue appends a published record to the backlog. Duplicate keys are
// dropped; append-only keys are unique forever, so key identity is an
// exact dedup.
func (s *Subscription) enqueue(rec *Record) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	if _, dup := s.seen[rec.Key]; dup {
		s.mu.Unlock()
		return
	}
	s.seen[rec.Key] = struct{}{}
	s.queue = append(s.queue, rec)
	s.mu.Unlock()
	s.notify()
}

// seed replays the Track snapshot into the dedup set and drops any
// queued publication the snapshot already covers, then starts delivery.
// The subscription attaches to the feed before the snapshot read, so a
// commit landing mid-read is queued here; seeding resolves it to
// exactly one of {snapshot, feed}. Called once, before the subscription
// is handed out.
func (s *Subscription) seed(snapshot []*Record) {
	snap := make(map[string]struct{}, len(snapshot))
	for _, rec := range snapshot {
		snap[rec.Key] = struct{}{}
	}

	s.mu.Lock()
	for k := range snap {
		s.seen[k] = struct{}{}
	}
	if len(s.queue) > 0 {
		kept := s.queue[:0]
		for _, rec := range s.queue {
			if _, dup := snap[rec.Key]; !dup {
				kept = append(kept, rec)
			}
		}
		s.queue = kept
	}
	s.mu.Unlock()

	go s.pump()
}

// pump drains the backlog into the delivery channel in order.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, rec := range batch {
			select {
			case s.out <- rec:
			case <-s.stop:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.stop:
			return
		}
	}
}

func (s *Subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close detaches from the feed, stops the pump, and closes C. Safe to
// call multiple times. Records queued but not yet read are discarded.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.stop)
	if s.onClose != nil {
		s.onClose()
	}
}
