package sqlite

import (
	"context"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/tx"
)

// PutCheckpoint inserts or replaces the checkpoint row for cp.RunID.
func (s *Store) PutCheckpoint(ctx context.Context, t tx.Tx, cp *checkpoint.Checkpoint) error {
	st, err := s.writeTx(t)
	if err != nil {
		return err
	}
	m, err := toCheckpointModel(cp)
	if err != nil {
		return err
	}

	_, err = st.tx.NewInsert().Model(m).
		On("CONFLICT (run_id) DO UPDATE").
		Set("id = EXCLUDED.id").
		Set("flow = EXCLUDED.flow").
		Set("version = EXCLUDED.version").
		Set("status = EXCLUDED.status").
		Set("wait_key = EXCLUDED.wait_key").
		Set("wake_at = EXCLUDED.wake_at").
		Set("suspend_count = EXCLUDED.suspend_count").
		Set("error_state = EXCLUDED.error_state").
		Set("errors = EXCLUDED.errors").
		Set("state = EXCLUDED.state").
		Set("created_at = EXCLUDED.created_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return storageErr("put checkpoint", err)
	}
	return nil
}

// GetCheckpoint retrieves the checkpoint for a run. Within a transaction
// the read sees that transaction's own staged writes.
func (s *Store) GetCheckpoint(ctx context.Context, t tx.Tx, runID id.RunID) (*checkpoint.Checkpoint, error) {
	idb, err := s.idb(t)
	if err != nil {
		return nil, err
	}

	m := new(checkpointModel)
	err = idb.NewSelect().Model(m).
		Where("run_id = ?", runID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, corda.ErrRunNotFound
		}
		return nil, storageErr("get checkpoint", err)
	}
	return fromCheckpointModel(m)
}

// RemoveCheckpoint deletes the checkpoint for a run.
func (s *Store) RemoveCheckpoint(ctx context.Context, t tx.Tx, runID id.RunID) error {
	st, err := s.writeTx(t)
	if err != nil {
		return err
	}

	res, err := st.tx.NewDelete().
		TableExpr("corda_checkpoints").
		Where("run_id = ?", runID.String()).
		Exec(ctx)
	if err != nil {
		return storageErr("remove checkpoint", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return corda.ErrRunNotFound
	}
	return nil
}

// ListCheckpoints returns checkpoints matching opts, RunID ascending.
func (s *Store) ListCheckpoints(ctx context.Context, t tx.Tx, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	idb, err := s.idb(t)
	if err != nil {
		return nil, err
	}

	var models []checkpointModel
	q := idb.NewSelect().Model(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.ErrorState != "" {
		q = q.Where("error_state = ?", string(opts.ErrorState))
	}

	q = q.Order("run_id ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, storageErr("list checkpoints", err)
	}

	cps := make([]*checkpoint.Checkpoint, 0, len(models))
	for i := range models {
		cp, convErr := fromCheckpointModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

// CountCheckpoints returns the number of live checkpoints.
func (s *Store) CountCheckpoints(ctx context.Context, t tx.Tx) (int64, error) {
	idb, err := s.idb(t)
	if err != nil {
		return 0, err
	}

	count, err := idb.NewSelect().Model((*checkpointModel)(nil)).Count(ctx)
	if err != nil {
		return 0, storageErr("count checkpoints", err)
	}
	return int64(count), nil
}
