package sqlite

import (
	"context"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/tx"
)

// PutRecord stages an insert-if-absent. The primary key on the record
// key resolves first-writer-wins at the row level: ON CONFLICT DO
// NOTHING reports zero rows for a key that is already committed or
// already staged on this handle, and exactly one of two concurrent
// transactions inserting the same key sees a row inserted.
func (s *Store) PutRecord(ctx context.Context, t tx.Tx, r *record.Record) (bool, error) {
	st, err := s.writeTx(t)
	if err != nil {
		return false, err
	}

	res, err := st.tx.NewInsert().Model(toRecordModel(r)).
		On("CONFLICT (\"key\") DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, storageErr("put record", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows > 0, nil
}

// GetRecord retrieves a record by key. Within a transaction it sees that
// transaction's own staged inserts.
func (s *Store) GetRecord(ctx context.Context, t tx.Tx, key string) (*record.Record, error) {
	idb, err := s.idb(t)
	if err != nil {
		return nil, err
	}

	m := new(recordModel)
	err = idb.NewSelect().Model(m).
		Where("\"key\" = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, corda.ErrRecordNotFound
		}
		return nil, storageErr("get record", err)
	}
	return fromRecordModel(m)
}

// ListRecords returns all committed records, key ascending.
func (s *Store) ListRecords(ctx context.Context, t tx.Tx) ([]*record.Record, error) {
	idb, err := s.idb(t)
	if err != nil {
		return nil, err
	}

	var models []recordModel
	err = idb.NewSelect().Model(&models).
		Order("key ASC").
		Scan(ctx)
	if err != nil {
		return nil, storageErr("list records", err)
	}

	recs := make([]*record.Record, 0, len(models))
	for i := range models {
		r, convErr := fromRecordModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		recs = append(recs, r)
	}
	return recs, nil
}
