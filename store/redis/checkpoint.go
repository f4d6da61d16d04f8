package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/tx"
)

// PutCheckpoint stages an insert-or-replace of the run's checkpoint.
func (s *Store) PutCheckpoint(_ context.Context, t tx.Tx, cp *checkpoint.Checkpoint) error {
	rt, err := s.writeTx(t)
	if err != nil {
		return err
	}
	key := cp.RunID.String()
	rt.putCheckpoints[key] = cp.Clone()
	delete(rt.delCheckpoints, key)
	return nil
}

// GetCheckpoint retrieves the checkpoint for a run, seeing the handle's
// own staged writes first.
func (s *Store) GetCheckpoint(ctx context.Context, t tx.Tx, runID id.RunID) (*checkpoint.Checkpoint, error) {
	view, err := s.readView(t)
	if err != nil {
		return nil, err
	}
	key := runID.String()
	if view != nil {
		if cp, ok := view.putCheckpoints[key]; ok {
			return cp.Clone(), nil
		}
		if _, del := view.delCheckpoints[key]; del {
			return nil, corda.ErrRunNotFound
		}
	}

	vals, err := s.client.HGetAll(ctx, checkpointKey(key)).Result()
	if err != nil {
		return nil, storageErr("get checkpoint", err)
	}
	if len(vals) == 0 {
		return nil, corda.ErrRunNotFound
	}
	return mapToCheckpoint(vals)
}

// RemoveCheckpoint stages deletion of the run's checkpoint.
func (s *Store) RemoveCheckpoint(ctx context.Context, t tx.Tx, runID id.RunID) error {
	rt, err := s.writeTx(t)
	if err != nil {
		return err
	}
	key := runID.String()
	if _, staged := rt.putCheckpoints[key]; staged {
		delete(rt.putCheckpoints, key)
		rt.delCheckpoints[key] = struct{}{}
		return nil
	}

	exists, err := s.client.Exists(ctx, checkpointKey(key)).Result()
	if err != nil {
		return storageErr("checkpoint exists", err)
	}
	if exists == 0 {
		return corda.ErrRunNotFound
	}
	rt.delCheckpoints[key] = struct{}{}
	return nil
}

// ListCheckpoints returns checkpoints matching opts, RunID ascending.
func (s *Store) ListCheckpoints(ctx context.Context, t tx.Tx, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	view, err := s.readView(t)
	if err != nil {
		return nil, err
	}

	runs, err := s.client.SMembers(ctx, checkpointRunsKey).Result()
	if err != nil {
		return nil, storageErr("list checkpoints", err)
	}

	merged := make(map[string]*checkpoint.Checkpoint, len(runs))
	for _, key := range runs {
		vals, getErr := s.client.HGetAll(ctx, checkpointKey(key)).Result()
		if getErr != nil {
			return nil, storageErr("list checkpoints", getErr)
		}
		if len(vals) == 0 {
			// Removed between the index scan and the hash read.
			continue
		}
		cp, convErr := mapToCheckpoint(vals)
		if convErr != nil {
			return nil, convErr
		}
		merged[key] = cp
	}

	if view != nil {
		for key := range view.delCheckpoints {
			delete(merged, key)
		}
		for key, cp := range view.putCheckpoints {
			merged[key] = cp.Clone()
		}
	}

	result := make([]*checkpoint.Checkpoint, 0, len(merged))
	for _, cp := range merged {
		if opts.Status != "" && cp.Status != opts.Status {
			continue
		}
		if opts.ErrorState != "" && cp.ErrorState != opts.ErrorState {
			continue
		}
		result = append(result, cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].RunID.String() < result[k].RunID.String()
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountCheckpoints returns the number of live checkpoints.
func (s *Store) CountCheckpoints(ctx context.Context, t tx.Tx) (int64, error) {
	view, err := s.readView(t)
	if err != nil {
		return 0, err
	}

	count, err := s.client.SCard(ctx, checkpointRunsKey).Result()
	if err != nil {
		return 0, storageErr("count checkpoints", err)
	}

	if view != nil {
		for key := range view.delCheckpoints {
			member, memErr := s.client.SIsMember(ctx, checkpointRunsKey, key).Result()
			if memErr != nil {
				return 0, storageErr("count checkpoints", memErr)
			}
			if member {
				count--
			}
		}
		for key := range view.putCheckpoints {
			member, memErr := s.client.SIsMember(ctx, checkpointRunsKey, key).Result()
			if memErr != nil {
				return 0, storageErr("count checkpoints", memErr)
			}
			if !member {
				count++
			}
		}
	}
	return count, nil
}

// ── helpers ──

// checkpointToMap flattens a checkpoint into hash fields. Every field is
// always present so a replacing HSet fully overwrites the prior state.
func checkpointToMap(cp *checkpoint.Checkpoint) (map[string]interface{}, error) {
	var errsJSON string
	if len(cp.Errors) > 0 {
		b, err := json.Marshal(cp.Errors)
		if err != nil {
			return nil, fmt.Errorf("corda/redis: encode checkpoint errors: %w", err)
		}
		errsJSON = string(b)
	}
	wakeAt := ""
	if cp.WakeAt != nil {
		wakeAt = cp.WakeAt.UTC().Format(time.RFC3339Nano)
	}

	return map[string]interface{}{
		"id":            cp.ID.String(),
		"run_id":        cp.RunID.String(),
		"flow":          cp.Flow,
		"version":       strconv.Itoa(cp.Version),
		"status":        string(cp.Status),
		"wait_key":      cp.WaitKey,
		"wake_at":       wakeAt,
		"suspend_count": strconv.Itoa(cp.SuspendCount),
		"error_state":   string(cp.ErrorState),
		"errors":        errsJSON,
		"state":         string(cp.State),
		"created_at":    cp.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":    cp.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func mapToCheckpoint(m map[string]string) (*checkpoint.Checkpoint, error) {
	runID, err := id.ParseRunID(m["run_id"])
	if err != nil {
		return nil, fmt.Errorf("corda/redis: parse run id %q: %w: %w", m["run_id"], corda.ErrDeserialization, err)
	}
	cpID, err := id.ParseCheckpointID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("corda/redis: parse checkpoint id %q: %w: %w", m["id"], corda.ErrDeserialization, err)
	}
	version, err := strconv.Atoi(m["version"])
	if err != nil {
		return nil, fmt.Errorf("corda/redis: parse version %q: %w: %w", m["version"], corda.ErrDeserialization, err)
	}
	suspends, err := strconv.Atoi(m["suspend_count"])
	if err != nil {
		return nil, fmt.Errorf("corda/redis: parse suspend count %q: %w: %w", m["suspend_count"], corda.ErrDeserialization, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, m["created_at"])
	if err != nil {
		return nil, fmt.Errorf("corda/redis: parse created at %q: %w: %w", m["created_at"], corda.ErrDeserialization, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, m["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("corda/redis: parse updated at %q: %w: %w", m["updated_at"], corda.ErrDeserialization, err)
	}

	var wakeAt *time.Time
	if v := m["wake_at"]; v != "" {
		at, parseErr := time.Parse(time.RFC3339Nano, v)
		if parseErr != nil {
			return nil, fmt.Errorf("corda/redis: parse wake at %q: %w: %w", v, corda.ErrDeserialization, parseErr)
		}
		wakeAt = &at
	}
	var flowErrs []flow.FlowError
	if v := m["errors"]; v != "" {
		if unmarshalErr := json.Unmarshal([]byte(v), &flowErrs); unmarshalErr != nil {
			return nil, fmt.Errorf("corda/redis: decode checkpoint errors: %w: %w", corda.ErrDeserialization, unmarshalErr)
		}
	}
	var state []byte
	if v := m["state"]; v != "" {
		state = []byte(v)
	}

	return &checkpoint.Checkpoint{
		Entity: corda.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           cpID,
		RunID:        runID,
		Flow:         m["flow"],
		Version:      version,
		Status:       flow.Status(m["status"]),
		WaitKey:      m["wait_key"],
		WakeAt:       wakeAt,
		SuspendCount: suspends,
		ErrorState:   flow.ErrorState(m["error_state"]),
		Errors:       flowErrs,
		State:        state,
	}, nil
}
