package record

import "sync"

// Future is the single-shot handle AwaitKey returns. It completes at
// most once: with the record (no earlier than the inserting
// transaction's commit), or with an error when the wait is cancelled or
// the store closes.
type Future struct {
	done chan struct{}

	mu  sync.Mutex
	rec *Record
	err error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done returns a channel closed when the future has completed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the outcome. It blocks until the future completes.
func (f *Future) Result() (*Record, error) {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec, f.err
}

// complete resolves the future. Later calls are no-ops; the first
// outcome sticks.
func (f *Future) complete(rec *Record, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return
	default:
	}
	f.rec = rec
	f.err = err
	close(f.done)
}
