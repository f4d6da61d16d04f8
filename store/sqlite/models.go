package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/Lupupam/corda"
	"github.com/Lupupam/corda/checkpoint"
	"github.com/Lupupam/corda/flow"
	"github.com/Lupupam/corda/id"
	"github.com/Lupupam/corda/record"
	"github.com/Lupupam/corda/signal"
)

// ── Checkpoint model ──────────────────────────────────────────────

type checkpointModel struct {
	bun.BaseModel `bun:"table:corda_checkpoints"`

	RunID        string     `bun:"run_id,pk"`
	ID           string     `bun:"id,notnull"`
	Flow         string     `bun:"flow,notnull"`
	Version      int        `bun:"version,notnull"`
	Status       string     `bun:"status,notnull"`
	WaitKey      string     `bun:"wait_key,notnull"`
	WakeAt       *time.Time `bun:"wake_at"`
	SuspendCount int        `bun:"suspend_count,notnull"`
	ErrorState   string     `bun:"error_state,notnull"`
	Errors       []byte     `bun:"errors"`
	State        []byte     `bun:"state"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
}

func toCheckpointModel(cp *checkpoint.Checkpoint) (*checkpointModel, error) {
	var errsJSON []byte
	if len(cp.Errors) > 0 {
		b, err := json.Marshal(cp.Errors)
		if err != nil {
			return nil, fmt.Errorf("corda/sqlite: encode checkpoint errors: %w", err)
		}
		errsJSON = b
	}

	return &checkpointModel{
		RunID:        cp.RunID.String(),
		ID:           cp.ID.String(),
		Flow:         cp.Flow,
		Version:      cp.Version,
		Status:       string(cp.Status),
		WaitKey:      cp.WaitKey,
		WakeAt:       cp.WakeAt,
		SuspendCount: cp.SuspendCount,
		ErrorState:   string(cp.ErrorState),
		Errors:       errsJSON,
		State:        cp.State,
		CreatedAt:    cp.CreatedAt,
		UpdatedAt:    cp.UpdatedAt,
	}, nil
}

func fromCheckpointModel(m *checkpointModel) (*checkpoint.Checkpoint, error) {
	parsedRunID, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("corda/sqlite: parse run id %q: %w: %w", m.RunID, corda.ErrDeserialization, err)
	}
	parsedID, err := id.ParseCheckpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("corda/sqlite: parse checkpoint id %q: %w: %w", m.ID, corda.ErrDeserialization, err)
	}

	var flowErrs []flow.FlowError
	if len(m.Errors) > 0 {
		if err := json.Unmarshal(m.Errors, &flowErrs); err != nil {
			return nil, fmt.Errorf("corda/sqlite: decode checkpoint errors: %w: %w", corda.ErrDeserialization, err)
		}
	}

	return &checkpoint.Checkpoint{
		Entity: corda.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		RunID:        parsedRunID,
		Flow:         m.Flow,
		Version:      m.Version,
		Status:       flow.Status(m.Status),
		WaitKey:      m.WaitKey,
		WakeAt:       m.WakeAt,
		SuspendCount: m.SuspendCount,
		ErrorState:   flow.ErrorState(m.ErrorState),
		Errors:       flowErrs,
		State:        m.State,
	}, nil
}

// ── Record model ──────────────────────────────────────────────────

type recordModel struct {
	bun.BaseModel `bun:"table:corda_records"`

	Key       string    `bun:"key,pk"`
	ID        string    `bun:"id,notnull"`
	Payload   []byte    `bun:"payload"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func toRecordModel(r *record.Record) *recordModel {
	return &recordModel{
		Key:       r.Key,
		ID:        r.ID.String(),
		Payload:   r.Payload,
		CreatedAt: r.CreatedAt,
	}
}

func fromRecordModel(m *recordModel) (*record.Record, error) {
	parsedID, err := id.ParseRecordID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("corda/sqlite: parse record id %q: %w: %w", m.ID, corda.ErrDeserialization, err)
	}

	return &record.Record{
		ID:        parsedID,
		Key:       m.Key,
		Payload:   m.Payload,
		CreatedAt: m.CreatedAt,
	}, nil
}

// ── Signal model ──────────────────────────────────────────────────

type signalModel struct {
	bun.BaseModel `bun:"table:corda_signals"`

	Seq       int64     `bun:"seq,pk,autoincrement"`
	ID        string    `bun:"id,notnull"`
	Key       string    `bun:"key,notnull"`
	Payload   []byte    `bun:"payload"`
	Acked     bool      `bun:"acked,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func toSignalModel(sig *signal.Signal) *signalModel {
	return &signalModel{
		ID:        sig.ID.String(),
		Key:       sig.Key,
		Payload:   sig.Payload,
		Acked:     sig.Acked,
		CreatedAt: sig.CreatedAt,
	}
}

func fromSignalModel(m *signalModel) (*signal.Signal, error) {
	parsedID, err := id.ParseSignalID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("corda/sqlite: parse signal id %q: %w: %w", m.ID, corda.ErrDeserialization, err)
	}

	return &signal.Signal{
		ID:        parsedID,
		Key:       m.Key,
		Payload:   m.Payload,
		Acked:     m.Acked,
		CreatedAt: m.CreatedAt,
	}, nil
}
