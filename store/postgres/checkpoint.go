package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/tx"
)

const checkpointColumns = `run_id, id, flow, version, status, wait_key, wake_at,
	suspend_count, error_state, errors, state, created_at, updated_at`

// PutCheckpoint inserts or replaces the checkpoint row for cp.RunID.
func (s *Store) PutCheckpoint(ctx context.Context, t tx.Tx, cp *checkpoint.Checkpoint) error {
	pt, err := s.writeTx(t)
	if err != nil {
		return err
	}

	var errsJSON []byte
	if len(cp.Errors) > 0 {
		errsJSON, err = json.Marshal(cp.Errors)
		if err != nil {
			return fmt.Errorf("corda/postgres: encode checkpoint errors: %w", err)
		}
	}

	_, err = pt.tx.Exec(ctx, `
		INSERT INTO corda_checkpoints (`+checkpointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id) DO UPDATE SET
			id = EXCLUDED.id,
			flow = EXCLUDED.flow,
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			wait_key = EXCLUDED.wait_key,
			wake_at = EXCLUDED.wake_at,
			suspend_count = EXCLUDED.suspend_count,
			error_state = EXCLUDED.error_state,
			errors = EXCLUDED.errors,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		cp.RunID.String(), cp.ID.String(), cp.Flow, cp.Version, string(cp.Status),
		cp.WaitKey, cp.WakeAt, cp.SuspendCount, string(cp.ErrorState),
		errsJSON, cp.State, cp.CreatedAt, cp.UpdatedAt,
	)
	if err != nil {
		return storageErr("put checkpoint", err)
	}
	return nil
}

// GetCheckpoint retrieves the checkpoint for a run. Within a transaction
// the read sees that transaction's own staged writes.
func (s *Store) GetCheckpoint(ctx context.Context, t tx.Tx, runID id.RunID) (*checkpoint.Checkpoint, error) {
	q, err := s.runner(t)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx,
		`SELECT `+checkpointColumns+` FROM corda_checkpoints WHERE run_id = $1`,
		runID.String(),
	)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if isNoRows(err) {
			return nil, corda.ErrRunNotFound
		}
		return nil, err
	}
	return cp, nil
}

// RemoveCheckpoint deletes the checkpoint for a run.
func (s *Store) RemoveCheckpoint(ctx context.Context, t tx.Tx, runID id.RunID) error {
	pt, err := s.writeTx(t)
	if err != nil {
		return err
	}

	tag, err := pt.tx.Exec(ctx,
		`DELETE FROM corda_checkpoints WHERE run_id = $1`, runID.String())
	if err != nil {
		return storageErr("remove checkpoint", err)
	}
	if tag.RowsAffected() == 0 {
		return corda.ErrRunNotFound
	}
	return nil
}

// ListCheckpoints returns checkpoints matching opts, RunID ascending.
func (s *Store) ListCheckpoints(ctx context.Context, t tx.Tx, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	q, err := s.runner(t)
	if err != nil {
		return nil, err
	}

	sql := `SELECT ` + checkpointColumns + ` FROM corda_checkpoints`
	var (
		conds []string
		args  []any
	)
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		conds = append(conds, `status = $`+strconv.Itoa(len(args)))
	}
	if opts.ErrorState != "" {
		args = append(args, string(opts.ErrorState))
		conds = append(conds, `error_state = $`+strconv.Itoa(len(args)))
	}
	for i, cond := range conds {
		if i == 0 {
			sql += ` WHERE ` + cond
		} else {
			sql += ` AND ` + cond
		}
	}
	sql += ` ORDER BY run_id ASC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		sql += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		sql += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr("list checkpoints", err)
	}
	defer rows.Close()

	var cps []*checkpoint.Checkpoint
	for rows.Next() {
		cp, scanErr := scanCheckpoint(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		cps = append(cps, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list checkpoints", err)
	}
	return cps, nil
}

// CountCheckpoints returns the number of live checkpoints.
func (s *Store) CountCheckpoints(ctx context.Context, t tx.Tx) (int64, error) {
	q, err := s.runner(t)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM corda_checkpoints`).Scan(&count); err != nil {
		return 0, storageErr("count checkpoints", err)
	}
	return count, nil
}

// scanner covers pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (*checkpoint.Checkpoint, error) {
	var (
		rawRunID, rawID              string
		flowName, status, errorState string
		waitKey                      string
		version, suspendCount        int
		wakeAt                       *time.Time
		errsJSON, state              []byte
		createdAt, updatedAt         time.Time
	)
	err := row.Scan(&rawRunID, &rawID, &flowName, &version, &status, &waitKey,
		&wakeAt, &suspendCount, &errorState, &errsJSON, &state, &createdAt, &updatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, storageErr("scan checkpoint", err)
	}

	runID, err := id.ParseRunID(rawRunID)
	if err != nil {
		return nil, fmt.Errorf("corda/postgres: parse run id %q: %w: %w", rawRunID, corda.ErrDeserialization, err)
	}
	cpID, err := id.ParseCheckpointID(rawID)
	if err != nil {
		return nil, fmt.Errorf("corda/postgres: parse checkpoint id %q: %w: %w", rawID, corda.ErrDeserialization, err)
	}

	var flowErrs []flow.FlowError
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &flowErrs); err != nil {
			return nil, fmt.Errorf("corda/postgres: decode checkpoint errors: %w: %w", corda.ErrDeserialization, err)
		}
	}

	return &checkpoint.Checkpoint{
		Entity: corda.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           cpID,
		RunID:        runID,
		Flow:         flowName,
		Version:      version,
		Status:       flow.Status(status),
		WaitKey:      waitKey,
		WakeAt:       wakeAt,
		SuspendCount: suspendCount,
		ErrorState:   flow.ErrorState(errorState),
		Errors:       flowErrs,
		State:        state,
	}, nil
}
