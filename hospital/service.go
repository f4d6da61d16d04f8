package hospital

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/tx"
)

// ResumeFunc feeds a healed run back to the scheduler. The engine wires
// this to its submit path.
type ResumeFunc func(ctx context.Context, runID id.RunID, ev flow.Event) error

// DiscardFunc removes a run through the engine's removal path, so
// interceptors observe the remove decision and diagnostic history is
// dropped along with the checkpoint.
type DiscardFunc func(ctx context.Context, runID id.RunID, reason string) error

// Service provides triage operations over errored runs: inspect them,
// send them back into rotation, or discard them for good.
type Service struct {
	provider tx.Provider
	cps      checkpoint.Store
	resume   ResumeFunc
	discard  DiscardFunc
	logger   *slog.Logger
}

// NewService creates a hospital service. resume and discard may be nil;
// Retry then heals without resuming and Discard removes the checkpoint
// directly.
func NewService(provider tx.Provider, cps checkpoint.Store, resume ResumeFunc, discard DiscardFunc, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		cps:      cps,
		resume:   resume,
		discard:  discard,
		logger:   logger,
	}
}

// ListErrored enumerates errored runs, ordered by run ID.
func (s *Service) ListErrored(ctx context.Context, limit, offset int) ([]*checkpoint.Checkpoint, error) {
	return s.cps.ListCheckpoints(ctx, nil, checkpoint.ListOpts{
		ErrorState: flow.ErrorStateErrored,
		Limit:      limit,
		Offset:     offset,
	})
}

// Retry sends an errored run back into rotation. Recovery is never
// automatic: this is the one place the errored state flips back to
// clean. The accumulated errors are cleared and the suspend count is
// preserved, all in one transaction; once that commits the run resumes
// by replaying its checkpoint through a retry event.
//
// Returns corda.ErrNotErrored if the run is not errored and
// corda.ErrRunNotFound if it has no checkpoint. A resume failure after
// the commit leaves the run clean; the next restore picks it up.
func (s *Service) Retry(ctx context.Context, runID id.RunID) error {
	t, err := s.provider.Begin(ctx)
	if err != nil {
		return fmt.Errorf("hospital: retry %s: %w", runID, err)
	}

	cp, err := s.cps.GetCheckpoint(ctx, t, runID)
	if err != nil {
		s.rollback(ctx, t, runID)
		return fmt.Errorf("hospital: retry %s: %w", runID, err)
	}
	if cp.ErrorState != flow.ErrorStateErrored {
		s.rollback(ctx, t, runID)
		return fmt.Errorf("hospital: retry %s: %w", runID, corda.ErrNotErrored)
	}

	healed := cp.Clone()
	healed.ErrorState = flow.ErrorStateClean
	healed.Errors = nil
	healed.Touch()

	if err := s.cps.PutCheckpoint(ctx, t, healed); err != nil {
		s.rollback(ctx, t, runID)
		return fmt.Errorf("hospital: retry %s: %w", runID, err)
	}
	if err := t.Commit(ctx); err != nil {
		return fmt.Errorf("hospital: retry %s: %w", runID, err)
	}

	s.logger.Info("errored run sent back into rotation",
		slog.String("run_id", runID.String()),
		slog.String("flow", cp.Flow),
	)

	if s.resume == nil {
		return nil
	}
	if err := s.resume(ctx, runID, flow.RetryEvent()); err != nil {
		return fmt.Errorf("hospital: resume %s: %w", runID, err)
	}
	return nil
}

// Discard gives up on an errored run and removes it for good.
//
// Returns corda.ErrNotErrored if the run is not errored; healthy runs
// are removed through the engine, not the hospital.
func (s *Service) Discard(ctx context.Context, runID id.RunID) error {
	cp, err := s.cps.GetCheckpoint(ctx, nil, runID)
	if err != nil {
		return fmt.Errorf("hospital: discard %s: %w", runID, err)
	}
	if cp.ErrorState != flow.ErrorStateErrored {
		return fmt.Errorf("hospital: discard %s: %w", runID, corda.ErrNotErrored)
	}

	if s.discard != nil {
		if err := s.discard(ctx, runID, flow.RemoveKilled); err != nil {
			return fmt.Errorf("hospital: discard %s: %w", runID, err)
		}
	} else {
		t, err := s.provider.Begin(ctx)
		if err != nil {
			return fmt.Errorf("hospital: discard %s: %w", runID, err)
		}
		if err := s.cps.RemoveCheckpoint(ctx, t, runID); err != nil {
			s.rollback(ctx, t, runID)
			return fmt.Errorf("hospital: discard %s: %w", runID, err)
		}
		if err := t.Commit(ctx); err != nil {
			return fmt.Errorf("hospital: discard %s: %w", runID, err)
		}
	}

	s.logger.Info("errored run discarded",
		slog.String("run_id", runID.String()),
		slog.String("flow", cp.Flow),
	)
	return nil
}

// Stats summarizes run health.
type Stats struct {
	Total   int64 `json:"total"`
	Errored int64 `json:"errored"`
}

// Stats counts live runs by health.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	total, err := s.cps.CountCheckpoints(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("hospital: stats: %w", err)
	}
	errored, err := s.cps.ListCheckpoints(ctx, nil, checkpoint.ListOpts{
		ErrorState: flow.ErrorStateErrored,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("hospital: stats: %w", err)
	}
	return Stats{Total: total, Errored: int64(len(errored))}, nil
}

func (s *Service) rollback(ctx context.Context, t tx.Tx, runID id.RunID) {
	if err := t.Rollback(ctx); err != nil {
		s.logger.Warn("hospital rollback failed",
			slog.String("run_id", runID.String()),
			slog.String("error", err.Error()),
		)
	}
}
