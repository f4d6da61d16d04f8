package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/flow"
)

// runLoop drains one slot's mailbox. It holds a worker (one semaphore
// unit) for its whole lifetime and exits as soon as the slot parks,
// halts, is removed, or runs out of events. The exit check and mailbox
// pop happen under the slot lock, so an event appended concurrently is
// either seen by this loop or triggers a fresh one.
func (s *Scheduler) runLoop(sl *slot) {
	defer s.wg.Done()

	if err := s.sem.Acquire(s.runCtx, 1); err != nil {
		sl.mu.Lock()
		sl.running = false
		sl.mu.Unlock()
		return
	}
	defer s.sem.Release(1)

	for {
		if s.stopping() {
			sl.mu.Lock()
			sl.running = false
			sl.mu.Unlock()
			return
		}

		sl.mu.Lock()
		if sl.removed || sl.halted || sl.parked || len(sl.mailbox) == 0 {
			sl.running = false
			sl.mu.Unlock()
			return
		}
		ev := sl.mailbox[0]
		sl.mailbox = sl.mailbox[1:]
		sl.mu.Unlock()

		s.process(sl, ev)
	}
}

// process runs a single event through the machine and the executor
// chain, then applies the committed decision to the slot.
func (s *Scheduler) process(sl *slot, ev flow.Event) {
	ctx := s.runCtx

	prev, ok := s.slotState(ctx, sl, ev)
	if !ok {
		return
	}

	if prev.Errored() && ev.Kind != flow.EventRetry {
		s.logger.Warn("dropping event for errored run",
			slog.String("run_id", sl.id.String()),
			slog.String("event", ev.String()),
		)
		s.haltInMemory(sl)
		return
	}

	machine, found := s.registry.GetVersion(prev.Flow, prev.Version)
	if !found {
		s.fail(ctx, sl, prev, ev, fmt.Errorf("flow %q version %d: %w", prev.Flow, prev.Version, corda.ErrFlowNotFound))
		return
	}

	tr, err := machine.Step(ctx, prev, ev)
	if err != nil {
		s.fail(ctx, sl, prev, ev, err)
		return
	}

	dec, next, err := s.execute(ctx, prev, ev, tr)
	if err != nil {
		if s.interrupted(err) {
			s.logger.Info("transition interrupted by shutdown, run will replay from checkpoint",
				slog.String("run_id", sl.id.String()),
				slog.String("event", ev.String()),
			)
			return
		}
		s.fail(ctx, sl, prev, ev, err)
		return
	}

	s.finish(ctx, sl, ev, next, dec)
}

// slotState returns the state the next transition starts from. A slot
// whose state already mirrors the checkpoint reuses it; a fresh slot or
// a retry event reloads from the store, so resumes always replay the
// persisted checkpoint rather than anything held in memory.
func (s *Scheduler) slotState(ctx context.Context, sl *slot, ev flow.Event) (flow.State, bool) {
	sl.mu.Lock()
	loaded := sl.loaded
	st := sl.state
	sl.mu.Unlock()

	if loaded && ev.Kind != flow.EventRetry {
		return st, true
	}

	cp, err := s.loadCheckpoint(ctx, sl)
	if err != nil {
		if errors.Is(err, corda.ErrRunNotFound) {
			s.logger.Warn("run has no checkpoint, dropping event",
				slog.String("run_id", sl.id.String()),
				slog.String("event", ev.String()),
			)
			s.remove(sl)
			return flow.State{}, false
		}
		if !s.interrupted(err) {
			s.logger.Error("cannot load checkpoint, halting run until restore",
				slog.String("run_id", sl.id.String()),
				slog.String("error", err.Error()),
			)
			s.haltInMemory(sl)
		}
		return flow.State{}, false
	}

	st = cp.ToState()
	sl.mu.Lock()
	sl.state = st
	sl.loaded = true
	sl.mu.Unlock()
	return st, true
}

// loadCheckpoint reads the slot's checkpoint, retrying transient
// storage failures with the same budget as transitions.
func (s *Scheduler) loadCheckpoint(ctx context.Context, sl *slot) (*checkpoint.Checkpoint, error) {
	for attempt := 1; ; attempt++ {
		cp, err := s.checkpoints.GetCheckpoint(ctx, nil, sl.id)
		if err == nil {
			return cp, nil
		}
		if !errors.Is(err, corda.ErrStorageUnavailable) || attempt >= s.maxRetries {
			return nil, err
		}
		if !s.wait(ctx, s.backoff.Delay(attempt)) {
			return nil, corda.ErrStopped
		}
	}
}

// execute pushes the transition through the executor chain, retrying
// with backoff while storage is unavailable. Nothing commits on a
// failed attempt, so the same transition result is safe to replay.
func (s *Scheduler) execute(ctx context.Context, prev flow.State, ev flow.Event, tr flow.TransitionResult) (flow.Decision, flow.State, error) {
	for attempt := 1; ; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return flow.Decision{}, prev, err
			}
		}

		dec, next, err := s.executor.ExecuteTransition(ctx, prev, ev, tr)
		if err == nil {
			return dec, next, nil
		}
		if !errors.Is(err, corda.ErrStorageUnavailable) {
			return dec, next, err
		}
		if attempt >= s.maxRetries {
			return dec, next, fmt.Errorf("%w: %w", corda.ErrMaxRetriesExceeded, err)
		}

		delay := s.backoff.Delay(attempt)
		s.logger.Warn("storage unavailable, retrying transition",
			slog.String("run_id", prev.RunID.String()),
			slog.String("event", ev.String()),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", s.maxRetries),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if !s.wait(ctx, delay) {
			return flow.Decision{}, prev, corda.ErrStopped
		}
	}
}

// fail marks the run errored. The failure transition goes through the
// same executor chain as a normal one so every interceptor observes the
// clean→errored edge. If even that cannot commit, the slot halts in
// memory and the run replays from its last good checkpoint on restore.
func (s *Scheduler) fail(ctx context.Context, sl *slot, prev flow.State, ev flow.Event, cause error) {
	s.logger.Warn("run transition failed",
		slog.String("run_id", sl.id.String()),
		slog.String("flow", prev.Flow),
		slog.String("event", ev.String()),
		slog.String("error", cause.Error()),
	)

	ferr := flow.NewFlowError(cause)
	tr := flow.BuildFailure(prev, ferr)

	_, next, err := s.execute(ctx, prev, ev, tr)
	if err != nil {
		if !s.interrupted(err) {
			s.logger.Error("cannot persist errored state, halting run until restore",
				slog.String("run_id", sl.id.String()),
				slog.String("error", err.Error()),
			)
			s.haltInMemory(sl)
		}
		return
	}

	s.applyAbort(ctx, sl, next, cause)
}

// finish applies a committed decision to the slot and emits the
// corresponding lifecycle hooks. Hooks fire here, strictly after the
// commit, so extensions only ever observe durable facts.
func (s *Scheduler) finish(ctx context.Context, sl *slot, ev flow.Event, next flow.State, dec flow.Decision) {
	if ev.Kind == flow.EventSignal || ev.Kind == flow.EventWake {
		s.extensions.EmitRunResumed(ctx, next, ev)
	}

	switch dec.Kind {
	case flow.DecisionContinue:
		sl.mu.Lock()
		sl.state = next
		sl.loaded = true
		sl.mu.Unlock()

	case flow.DecisionSuspend:
		s.mu.Lock()
		sl.mu.Lock()
		sl.state = next
		sl.loaded = true
		s.parkLocked(sl)
		sl.mu.Unlock()
		s.mu.Unlock()

		s.extensions.EmitRunSuspended(ctx, next)
		s.redeliverPending(ctx, next.WaitKey)

	case flow.DecisionAbort:
		var runErr error
		if dec.Err != nil {
			runErr = dec.Err
		}
		s.applyAbort(ctx, sl, next, runErr)

	case flow.DecisionRemove:
		s.remove(sl)
		if dec.Reason == flow.RemoveCompleted {
			s.extensions.EmitRunCompleted(ctx, next)
		} else {
			s.extensions.EmitRunRemoved(ctx, next.RunID, dec.Reason)
		}
	}
}

// applyAbort halts the slot on a committed errored state, drops its
// queued events, and notifies extensions.
func (s *Scheduler) applyAbort(ctx context.Context, sl *slot, next flow.State, runErr error) {
	s.mu.Lock()
	sl.mu.Lock()
	sl.state = next
	sl.loaded = true
	sl.halted = true
	dropped := len(sl.mailbox)
	sl.mailbox = nil
	if sl.parked {
		s.unparkLocked(sl)
	}
	sl.mu.Unlock()
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Debug("dropped queued events for errored run",
			slog.String("run_id", sl.id.String()),
			slog.Int("dropped", dropped),
		)
	}
	s.extensions.EmitRunErrored(ctx, next, runErr)
}

// redeliverPending closes the race between parking on a key and a
// signal published for it while the run was still transitioning: any
// signal already pending for the key wakes the run straight back up.
func (s *Scheduler) redeliverPending(ctx context.Context, key string) {
	sigs, err := s.bus.Pending(ctx, key)
	if err != nil {
		s.logger.Warn("cannot check pending signals after park",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(sigs) > 0 {
		s.deliver(sigs[0])
	}
}

// remove drops the slot from the run table and discards its mailbox.
func (s *Scheduler) remove(sl *slot) {
	s.mu.Lock()
	sl.mu.Lock()
	if sl.parked {
		s.unparkLocked(sl)
	}
	sl.removed = true
	sl.mailbox = nil
	delete(s.slots, sl.id.String())
	sl.mu.Unlock()
	s.mu.Unlock()
}

// haltInMemory halts the slot without writing anything durable: either
// the checkpoint is already errored, or storage failures prevented
// recording the errored state at all.
func (s *Scheduler) haltInMemory(sl *slot) {
	s.mu.Lock()
	sl.mu.Lock()
	sl.halted = true
	sl.mailbox = nil
	if sl.parked {
		s.unparkLocked(sl)
	}
	sl.mu.Unlock()
	s.mu.Unlock()
}

// interrupted reports whether err is a shutdown artifact rather than a
// real transition failure.
func (s *Scheduler) interrupted(err error) bool {
	if errors.Is(err, corda.ErrStopped) {
		return true
	}
	return errors.Is(err, context.Canceled) && s.stopping()
}

// wait sleeps for d, returning false if the scheduler stops or the
// context ends first.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
