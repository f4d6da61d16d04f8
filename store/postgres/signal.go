package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/signal"
	"github.com/Lupupam/corda/tx"
)

// AppendSignal persists a new signal, unacked. The BIGSERIAL seq column
// fixes publish order for restore-time re-delivery.
func (s *Store) AppendSignal(ctx context.Context, t tx.Tx, sig *signal.Signal) error {
	pt, err := s.writeTx(t)
	if err != nil {
		return err
	}

	_, err = pt.tx.Exec(ctx, `
		INSERT INTO corda_signals (id, key, payload, acked, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sig.ID.String(), sig.Key, sig.Payload, sig.Acked, sig.CreatedAt,
	)
	if err != nil {
		return storageErr("append signal", err)
	}
	return nil
}

// ListSignals returns signals for a wait key in publish order. Acked
// signals are included only when includeAcked is set.
func (s *Store) ListSignals(ctx context.Context, t tx.Tx, key string, includeAcked bool) ([]*signal.Signal, error) {
	q, err := s.runner(t)
	if err != nil {
		return nil, err
	}

	sql := `SELECT id, key, payload, acked, created_at FROM corda_signals WHERE key = $1`
	if !includeAcked {
		sql += ` AND acked = FALSE`
	}
	sql += ` ORDER BY seq ASC`

	rows, err := q.Query(ctx, sql, key)
	if err != nil {
		return nil, storageErr("list signals", err)
	}
	defer rows.Close()

	var sigs []*signal.Signal
	for rows.Next() {
		var (
			rawID, sigKey string
			payload       []byte
			acked         bool
			createdAt     time.Time
		)
		if err := rows.Scan(&rawID, &sigKey, &payload, &acked, &createdAt); err != nil {
			return nil, storageErr("scan signal", err)
		}
		sigID, parseErr := id.ParseSignalID(rawID)
		if parseErr != nil {
			return nil, fmt.Errorf("corda/postgres: parse signal id %q: %w: %w", rawID, corda.ErrDeserialization, parseErr)
		}
		sigs = append(sigs, &signal.Signal{
			ID:        sigID,
			Key:       sigKey,
			Payload:   payload,
			Acked:     acked,
			CreatedAt: createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list signals", err)
	}
	return sigs, nil
}

// AckSignal marks a signal consumed.
func (s *Store) AckSignal(ctx context.Context, t tx.Tx, sigID id.SignalID) error {
	pt, err := s.writeTx(t)
	if err != nil {
		return err
	}

	tag, err := pt.tx.Exec(ctx,
		`UPDATE corda_signals SET acked = TRUE WHERE id = $1`, sigID.String())
	if err != nil {
		return storageErr("ack signal", err)
	}
	if tag.RowsAffected() == 0 {
		return corda.ErrSignalNotFound
	}
	return nil
}
