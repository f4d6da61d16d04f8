package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/flow"
)

// restoreConcurrency bounds the parallel pending-signal lookups during
// a restore scan.
const restoreConcurrency = 8

// Restore rebuilds the run table from persisted checkpoints after a
// restart. Suspended runs park on their wait key, errored runs halt,
// and runs checkpointed mid-flight replay their last transition through
// a retry event. Signals still pending for a parked key are then
// re-delivered, so a crash between publish and wake-up loses nothing.
// Call after Start.
func (s *Scheduler) Restore(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return corda.ErrNotStarted
	}

	cps, err := s.checkpoints.ListCheckpoints(ctx, nil, checkpoint.ListOpts{})
	if err != nil {
		return fmt.Errorf("scheduler: restore: %w", err)
	}

	var parked, halted, replayed int
	for _, cp := range cps {
		st := cp.ToState()
		key := st.RunID.String()

		s.mu.Lock()
		if _, exists := s.slots[key]; exists {
			// Submitted while we were scanning; already live.
			s.mu.Unlock()
			continue
		}

		sl := newSlot(st.RunID)
		sl.state = st
		sl.loaded = true

		switch {
		case st.Errored():
			sl.halted = true
			halted++
		case st.Status == flow.StatusSuspended:
			sl.mu.Lock()
			s.parkLocked(sl)
			sl.mu.Unlock()
			parked++
		default:
			sl.mailbox = append(sl.mailbox, flow.RetryEvent())
			sl.running = true
			replayed++
		}

		s.slots[key] = sl
		if sl.running {
			s.activate(sl)
		}
		s.mu.Unlock()
	}

	if err := s.redeliverParked(ctx); err != nil {
		return fmt.Errorf("scheduler: restore: %w", err)
	}

	s.logger.Info("scheduler restored",
		slog.String("worker_id", s.workerID.String()),
		slog.Int("checkpoints", len(cps)),
		slog.Int("parked", parked),
		slog.Int("halted", halted),
		slog.Int("replayed", replayed),
	)
	return nil
}

// redeliverParked re-delivers the oldest pending signal for every key
// that has parked runs. Lookups run concurrently but bounded.
func (s *Scheduler) redeliverParked(ctx context.Context) error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.parkIndex))
	for key := range s.parkIndex {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(restoreConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			sigs, err := s.bus.Pending(gctx, key)
			if err != nil {
				return fmt.Errorf("pending signals for key %q: %w", key, err)
			}
			if len(sigs) > 0 {
				s.deliver(sigs[0])
			}
			return nil
		})
	}
	return g.Wait()
}
