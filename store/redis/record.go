package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/tx"
)

const (
	// reserveTTL bounds how long a crashed holder can block a record
	// key. Live handles resolve far sooner and drop the reservation
	// themselves.
	reserveTTL = 30 * time.Second

	// reservePoll is how often a blocked writer re-checks a key held
	// by another handle.
	reservePoll = 25 * time.Millisecond
)

// PutRecord stages an insert-if-absent. The key is reserved in Redis
// with SETNX until this handle resolves; a concurrent transaction
// staging the same key waits here until then, so exactly one caller
// ever sees true, across processes too.
func (s *Store) PutRecord(ctx context.Context, t tx.Tx, r *record.Record) (bool, error) {
	rt, err := s.writeTx(t)
	if err != nil {
		return false, err
	}
	if _, staged := rt.putRecords[r.Key]; staged {
		return false, nil
	}

	for {
		exists, err := s.client.Exists(ctx, recordKey(r.Key)).Result()
		if err != nil {
			return false, storageErr("record exists", err)
		}
		if exists > 0 {
			return false, nil
		}

		ok, err := s.client.SetNX(ctx, reserveKey(r.Key), "1", reserveTTL).Result()
		if err != nil {
			return false, storageErr("reserve record", err)
		}
		if ok {
			// The prior holder may have committed between the exists
			// check and the reservation.
			exists, err = s.client.Exists(ctx, recordKey(r.Key)).Result()
			if err != nil {
				return false, storageErr("record exists", err)
			}
			if exists > 0 {
				s.client.Del(ctx, reserveKey(r.Key))
				return false, nil
			}
			rt.putRecords[r.Key] = r.Clone()
			rt.recordOrder = append(rt.recordOrder, r.Key)
			return true, nil
		}

		select {
		case <-time.After(reservePoll):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// GetRecord retrieves a record by key, seeing the handle's own staged
// inserts first.
func (s *Store) GetRecord(ctx context.Context, t tx.Tx, key string) (*record.Record, error) {
	view, err := s.readView(t)
	if err != nil {
		return nil, err
	}
	if view != nil {
		if r, ok := view.putRecords[key]; ok {
			return r.Clone(), nil
		}
	}

	vals, err := s.client.HGetAll(ctx, recordKey(key)).Result()
	if err != nil {
		return nil, storageErr("get record", err)
	}
	if len(vals) == 0 {
		return nil, corda.ErrRecordNotFound
	}
	return mapToRecord(vals)
}

// ListRecords returns all committed records, key ascending. Staged
// inserts on the handle are included for read-your-writes.
func (s *Store) ListRecords(ctx context.Context, t tx.Tx) ([]*record.Record, error) {
	view, err := s.readView(t)
	if err != nil {
		return nil, err
	}

	keys, err := s.client.SMembers(ctx, recordKeysKey).Result()
	if err != nil {
		return nil, storageErr("list records", err)
	}

	result := make([]*record.Record, 0, len(keys))
	for _, key := range keys {
		vals, getErr := s.client.HGetAll(ctx, recordKey(key)).Result()
		if getErr != nil {
			return nil, storageErr("list records", getErr)
		}
		if len(vals) == 0 {
			continue
		}
		r, convErr := mapToRecord(vals)
		if convErr != nil {
			return nil, convErr
		}
		result = append(result, r)
	}

	if view != nil {
		for _, r := range view.putRecords {
			result = append(result, r.Clone())
		}
	}

	sort.Slice(result, func(i, k int) bool { return result[i].Key < result[k].Key })
	return result, nil
}

// ── helpers ──

func recordToMap(r *record.Record) map[string]interface{} {
	return map[string]interface{}{
		"id":         r.ID.String(),
		"key":        r.Key,
		"payload":    string(r.Payload),
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func mapToRecord(m map[string]string) (*record.Record, error) {
	rID, err := id.ParseRecordID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("corda/redis: parse record id %q: %w: %w", m["id"], corda.ErrDeserialization, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, m["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corda/redis: parse created at %q: %w: %w", m["created_at"], corda.ErrDeserialization, err)
	}

	var payload []byte
	if v := m["payload"]; v != "" {
		payload = []byte(v)
	}
	return &record.Record{
		ID:        rID,
		Key:       m["key"],
		Payload:   payload,
		CreatedAt: createdAt,
	}, nil
}
