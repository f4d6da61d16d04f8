package sqlite

import (
	"context"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/signal"
	"github.com/Lupupam/corda/tx"
)

// AppendSignal persists a new signal, unacked. The autoincrement seq
// column fixes publish order for restore-time re-delivery.
func (s *Store) AppendSignal(ctx context.Context, t tx.Tx, sig *signal.Signal) error {
	st, err := s.writeTx(t)
	if err != nil {
		return err
	}

	_, err = st.tx.NewInsert().Model(toSignalModel(sig)).Exec(ctx)
	if err != nil {
		return storageErr("append signal", err)
	}
	return nil
}

// ListSignals returns signals for a wait key in publish order. Acked
// signals are included only when includeAcked is set.
func (s *Store) ListSignals(ctx context.Context, t tx.Tx, key string, includeAcked bool) ([]*signal.Signal, error) {
	idb, err := s.idb(t)
	if err != nil {
		return nil, err
	}

	var models []signalModel
	q := idb.NewSelect().Model(&models).
		Where("\"key\" = ?", key)
	if !includeAcked {
		q = q.Where("acked = ?", false)
	}
	q = q.Order("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, storageErr("list signals", err)
	}

	sigs := make([]*signal.Signal, 0, len(models))
	for i := range models {
		sig, convErr := fromSignalModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// AckSignal marks a signal consumed.
func (s *Store) AckSignal(ctx context.Context, t tx.Tx, sigID id.SignalID) error {
	st, err := s.writeTx(t)
	if err != nil {
		return err
	}

	res, err := st.tx.NewUpdate().
		TableExpr("corda_signals").
		Set("acked = ?", true).
		Where("id = ?", sigID.String()).
		Exec(ctx)
	if err != nil {
		return storageErr("ack signal", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return corda.ErrSignalNotFound
	}
	return nil
}
