package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/signal"
	"github.com/Lupupam/corda/tx"
)

// AppendSignal stages a new signal.
func (s *Store) AppendSignal(_ context.Context, t tx.Tx, sig *signal.Signal) error {
	rt, err := s.writeTx(t)
	if err != nil {
		return err
	}
	rt.putSignals = append(rt.putSignals, sig.Clone())
	return nil
}

// ListSignals returns signals for a wait key in publish order. The
// per-key List is appended at commit time under the commit mutex, so
// its order is commit order.
func (s *Store) ListSignals(ctx context.Context, t tx.Tx, key string, includeAcked bool) ([]*signal.Signal, error) {
	view, err := s.readView(t)
	if err != nil {
		return nil, err
	}

	ids, err := s.client.LRange(ctx, signalListKey(key), 0, -1).Result()
	if err != nil {
		return nil, storageErr("list signals", err)
	}

	result := make([]*signal.Signal, 0, len(ids))
	for _, sID := range ids {
		vals, getErr := s.client.HGetAll(ctx, signalKey(sID)).Result()
		if getErr != nil {
			return nil, storageErr("list signals", getErr)
		}
		if len(vals) == 0 {
			continue
		}
		sig, convErr := mapToSignal(vals)
		if convErr != nil {
			return nil, convErr
		}

		acked := sig.Acked
		if view != nil {
			if _, staged := view.ackSignals[sID]; staged {
				acked = true
			}
		}
		if acked && !includeAcked {
			continue
		}
		sig.Acked = acked
		result = append(result, sig)
	}

	if view != nil {
		for _, sig := range view.putSignals {
			if sig.Key != key {
				continue
			}
			_, staged := view.ackSignals[sig.ID.String()]
			if staged && !includeAcked {
				continue
			}
			cp := sig.Clone()
			cp.Acked = cp.Acked || staged
			result = append(result, cp)
		}
	}

	return result, nil
}

// AckSignal stages marking a signal consumed.
func (s *Store) AckSignal(ctx context.Context, t tx.Tx, sigID id.SignalID) error {
	rt, err := s.writeTx(t)
	if err != nil {
		return err
	}
	sID := sigID.String()

	exists, err := s.client.Exists(ctx, signalKey(sID)).Result()
	if err != nil {
		return storageErr("signal exists", err)
	}
	found := exists > 0
	if !found {
		for _, sig := range rt.putSignals {
			if sig.ID.String() == sID {
				found = true
				break
			}
		}
	}
	if !found {
		return corda.ErrSignalNotFound
	}
	rt.ackSignals[sID] = struct{}{}
	return nil
}

// ── helpers ──

func signalToMap(sig *signal.Signal) map[string]interface{} {
	acked := "0"
	if sig.Acked {
		acked = "1"
	}
	return map[string]interface{}{
		"id":         sig.ID.String(),
		"key":        sig.Key,
		"payload":    string(sig.Payload),
		"acked":      acked,
		"created_at": sig.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func mapToSignal(m map[string]string) (*signal.Signal, error) {
	sID, err := id.ParseSignalID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("corda/redis: parse signal id %q: %w: %w", m["id"], corda.ErrDeserialization, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, m["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corda/redis: parse created at %q: %w: %w", m["created_at"], corda.ErrDeserialization, err)
	}

	var payload []byte
	if v := m["payload"]; v != "" {
		payload = []byte(v)
	}
	return &signal.Signal{
		ID:        sID,
		Key:       m["key"],
		Payload:   payload,
		Acked:     m["acked"] == "1",
		CreatedAt: createdAt,
	}, nil
}
