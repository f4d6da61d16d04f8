package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/tx"
)

// PutRecord stages an insert-if-absent. ON CONFLICT DO NOTHING resolves
// first-writer-wins at the row level: a concurrent transaction inserting
// the same key blocks on the winner's row lock and reports false once
// the winner commits.
func (s *Store) PutRecord(ctx context.Context, t tx.Tx, r *record.Record) (bool, error) {
	pt, err := s.writeTx(t)
	if err != nil {
		return false, err
	}

	tag, err := pt.tx.Exec(ctx, `
		INSERT INTO corda_records (key, id, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING`,
		r.Key, r.ID.String(), r.Payload, r.CreatedAt,
	)
	if err != nil {
		return false, storageErr("put record", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetRecord retrieves a record by key. Within a transaction it sees that
// transaction's own staged inserts.
func (s *Store) GetRecord(ctx context.Context, t tx.Tx, key string) (*record.Record, error) {
	q, err := s.runner(t)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx,
		`SELECT key, id, payload, created_at FROM corda_records WHERE key = $1`, key)
	rec, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, corda.ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListRecords returns all committed records, key ascending.
func (s *Store) ListRecords(ctx context.Context, t tx.Tx) ([]*record.Record, error) {
	q, err := s.runner(t)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT key, id, payload, created_at FROM corda_records ORDER BY key ASC`)
	if err != nil {
		return nil, storageErr("list records", err)
	}
	defer rows.Close()

	var recs []*record.Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list records", err)
	}
	return recs, nil
}

func scanRecord(row scanner) (*record.Record, error) {
	var (
		key, rawID string
		payload    []byte
		createdAt  time.Time
	)
	if err := row.Scan(&key, &rawID, &payload, &createdAt); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, storageErr("scan record", err)
	}

	recID, err := id.ParseRecordID(rawID)
	if err != nil {
		return nil, fmt.Errorf("corda/postgres: parse record id %q: %w: %w", rawID, corda.ErrDeserialization, err)
	}

	return &record.Record{
		ID:        recID,
		Key:       key,
		Payload:   payload,
		CreatedAt: createdAt,
	}, nil
}
