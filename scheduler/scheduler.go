// Package scheduler drives flow runs. It owns the run table, enforces
// at most one worker per run, parks suspended runs without a worker,
// delivers signals and timer wake-ups to parked runs, and replays runs
// from their checkpoints after a restart.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/backoff"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/ext"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/signal"
	"github.com/Lupupam/corda/transition"
)

// slot is the scheduler's in-memory view of one run: the last known
// state, the FIFO mailbox of undelivered events, and the flags that
// enforce the one-worker-per-run invariant.
type slot struct {
	mu      sync.Mutex
	id      id.RunID
	state   flow.State
	loaded  bool // state mirrors the persisted checkpoint
	mailbox []flow.Event
	running bool // a loop goroutine owns this slot
	parked  bool // suspended on state.WaitKey, holds no worker
	halted  bool // errored; ignores everything but a retry
	removed bool
}

func newSlot(runID id.RunID) *slot {
	return &slot{id: runID}
}

// Scheduler multiplexes many runs over a bounded worker pool. Workers
// exist only while a run has events to process: parked and idle runs
// hold no goroutine and no semaphore weight.
type Scheduler struct {
	registry    *flow.Registry
	executor    transition.Executor
	checkpoints checkpoint.Store
	bus         *signal.Bus
	extensions  *ext.Registry
	logger      *slog.Logger

	concurrency   int
	timerInterval time.Duration
	maxRetries    int
	backoff       backoff.Strategy
	limiter       *rate.Limiter
	workerID      id.WorkerID

	sem       *semaphore.Weighted
	runCtx    context.Context
	runCancel context.CancelFunc
	stopCh    chan struct{}
	wg        sync.WaitGroup

	mu        sync.Mutex
	slots     map[string]*slot
	parkIndex map[string]map[string]*slot // wait key → run id → slot
	running   bool
	stopped   bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConcurrency bounds the number of runs transitioning at once.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTimerInterval sets how often parked runs are checked for due wake
// deadlines.
func WithTimerInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timerInterval = d
		}
	}
}

// WithMaxRetries sets how many times a transition is attempted when
// storage is unavailable before the run is marked errored.
func WithMaxRetries(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithBackoff sets the delay strategy between transition retries.
func WithBackoff(b backoff.Strategy) Option {
	return func(s *Scheduler) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithRateLimit gates transition executions behind the given limiter.
// A nil limiter disables rate limiting.
func WithRateLimit(l *rate.Limiter) Option {
	return func(s *Scheduler) { s.limiter = l }
}

// New creates a scheduler. It does not start any goroutines; call Start.
func New(
	registry *flow.Registry,
	executor transition.Executor,
	checkpoints checkpoint.Store,
	bus *signal.Bus,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		registry:      registry,
		executor:      executor,
		checkpoints:   checkpoints,
		bus:           bus,
		extensions:    extensions,
		logger:        logger,
		concurrency:   10,
		timerInterval: time.Second,
		maxRetries:    3,
		backoff:       backoff.DefaultStrategy(),
		workerID:      id.NewWorkerID(),
		stopCh:        make(chan struct{}),
		slots:         make(map[string]*slot),
		parkIndex:     make(map[string]map[string]*slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(int64(s.concurrency))
	return s
}

// WorkerID returns the scheduler's unique worker identifier.
func (s *Scheduler) WorkerID() id.WorkerID { return s.workerID }

// Start launches the timer loop and begins accepting work. It returns
// immediately. A stopped scheduler cannot be started again.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return corda.ErrStopped
	}
	if s.running {
		return nil
	}
	s.running = true
	s.runCtx, s.runCancel = context.WithCancel(context.Background())

	s.logger.Info("scheduler starting",
		slog.String("worker_id", s.workerID.String()),
		slog.Int("concurrency", s.concurrency),
	)

	s.wg.Add(1)
	go s.timerLoop()

	return nil
}

// Stop shuts the scheduler down: intake stops immediately, active
// transitions are given until the context deadline to finish, then any
// still running are cancelled. Undelivered mailbox events are dropped;
// they replay from checkpoints and pending signals on the next Restore.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info("scheduler stopping", slog.String("worker_id", s.workerID.String()))
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out, cancelling active transitions")
		s.runCancel()
		<-done
	}
	s.runCancel()

	return nil
}

// Submit appends an event to a run's mailbox and, if the run is idle
// and unparked, gives it a worker. Events for a halted run are dropped
// unless they are retries; a retry un-halts the slot and forces a
// reload from the persisted checkpoint.
func (s *Scheduler) Submit(_ context.Context, runID id.RunID, ev flow.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return corda.ErrStopped
	}
	if !s.running {
		return corda.ErrNotStarted
	}

	key := runID.String()
	sl, ok := s.slots[key]
	if !ok {
		sl = newSlot(runID)
		s.slots[key] = sl
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.halted {
		if ev.Kind != flow.EventRetry {
			s.logger.Warn("dropping event for errored run",
				slog.String("run_id", key),
				slog.String("event", ev.String()),
			)
			return nil
		}
		sl.halted = false
	}
	if sl.parked && ev.Kind == flow.EventRetry {
		s.unparkLocked(sl)
	}

	sl.mailbox = append(sl.mailbox, ev)
	if !sl.running && !sl.parked {
		sl.running = true
		s.activate(sl)
	}
	return nil
}

// Signal durably publishes a signal under key, then wakes every run
// parked on that key. It returns the number of runs woken. A signal
// that wakes nothing stays pending and is re-delivered when a run
// parks on the key or at the next Restore.
func (s *Scheduler) Signal(ctx context.Context, key string, payload []byte) (int, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, corda.ErrStopped
	}
	if !s.running {
		s.mu.Unlock()
		return 0, corda.ErrNotStarted
	}
	s.mu.Unlock()

	sig, err := s.bus.Publish(ctx, key, payload)
	if err != nil {
		return 0, err
	}
	s.extensions.EmitSignalPublished(ctx, sig)

	woken := s.deliver(sig)
	s.logger.Debug("signal published",
		slog.String("signal_id", sig.ID.String()),
		slog.String("key", key),
		slog.Int("woken", woken),
	)
	return woken, nil
}

// Evict drops a run's slot from the table, discarding any queued
// events. Durable state is untouched; the engine pairs eviction with
// checkpoint removal. Evicting an unknown run is a no-op.
func (s *Scheduler) Evict(runID id.RunID) {
	s.mu.Lock()
	sl, ok := s.slots[runID.String()]
	s.mu.Unlock()
	if ok {
		s.remove(sl)
	}
}

// deliver wakes every run parked on the signal's key, enqueueing a
// signal event on each. Returns the number of runs woken.
func (s *Scheduler) deliver(sig *signal.Signal) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	parked := s.parkIndex[sig.Key]
	if len(parked) == 0 {
		return 0
	}

	woken := 0
	for _, sl := range parked {
		sl.mu.Lock()
		if !sl.parked {
			sl.mu.Unlock()
			continue
		}
		s.unparkLocked(sl)
		sl.mailbox = append(sl.mailbox, flow.SignalEvent(sig.ID, sig.Key, sig.Payload))
		if !sl.running {
			sl.running = true
			s.activate(sl)
		}
		sl.mu.Unlock()
		woken++
	}
	return woken
}

// timerLoop periodically wakes parked runs whose wake deadline passed.
func (s *Scheduler) timerLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.timerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.wakeDue(time.Now())
		}
	}
}

// wakeDue delivers a wake event to every parked run whose deadline is
// at or before now.
func (s *Scheduler) wakeDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, parked := range s.parkIndex {
		for _, sl := range parked {
			sl.mu.Lock()
			if !sl.parked || sl.state.WakeAt == nil || sl.state.WakeAt.After(now) {
				sl.mu.Unlock()
				continue
			}
			s.unparkLocked(sl)
			sl.mailbox = append(sl.mailbox, flow.WakeEvent(key))
			if !sl.running {
				sl.running = true
				s.activate(sl)
			}
			sl.mu.Unlock()

			s.logger.Debug("wake deadline reached",
				slog.String("run_id", sl.id.String()),
				slog.String("key", key),
			)
		}
	}
}

// activate hands the slot a worker goroutine. Callers must already have
// set sl.running under the slot lock.
func (s *Scheduler) activate(sl *slot) {
	s.wg.Add(1)
	go s.runLoop(sl)
}

// unparkLocked removes the slot from the park index. Callers must hold
// both s.mu and sl.mu.
func (s *Scheduler) unparkLocked(sl *slot) {
	sl.parked = false
	key := sl.state.WaitKey
	if parked, ok := s.parkIndex[key]; ok {
		delete(parked, sl.id.String())
		if len(parked) == 0 {
			delete(s.parkIndex, key)
		}
	}
}

// parkLocked registers the slot in the park index under the state's
// wait key. Callers must hold both s.mu and sl.mu.
func (s *Scheduler) parkLocked(sl *slot) {
	sl.parked = true
	key := sl.state.WaitKey
	parked, ok := s.parkIndex[key]
	if !ok {
		parked = make(map[string]*slot)
		s.parkIndex[key] = parked
	}
	parked[sl.id.String()] = sl
}

// stopping reports whether Stop has been called.
func (s *Scheduler) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// Stats is a point-in-time census of the run table.
type Stats struct {
	Runs   int // slots tracked in memory
	Active int // runs currently holding a worker
	Parked int // runs suspended on a wait key
	Halted int // runs halted in the errored state
	Queued int // undelivered mailbox events
}

// Stats returns the current run table census.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Runs: len(s.slots)}
	for _, sl := range s.slots {
		sl.mu.Lock()
		if sl.running {
			st.Active++
		}
		if sl.parked {
			st.Parked++
		}
		if sl.halted {
			st.Halted++
		}
		st.Queued += len(sl.mailbox)
		sl.mu.Unlock()
	}
	return st
}
