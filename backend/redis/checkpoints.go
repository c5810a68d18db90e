package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"github.com/redis/go-redis/v9"
)

// storedCheckpoint is the envelope written to the checkpoint list. State is
// serialized separately with the configured converter.
type storedCheckpoint struct {
	Sequence  int64     `json:"sequence"`
	State     []byte    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

func (rs *redisStore) AppendCheckpoint(ctx context.Context, runID string, state *core.WorkflowState, expectedSeq int64) (int64, error) {
	stateData, err := rs.options.Converter.To(state)
	if err != nil {
		return 0, fmt.Errorf("serializing state: %w", err)
	}

	key := checkpointsKey(rs.options.KeyPrefix, runID)

	var seq int64

	// Watch the checkpoint list so a concurrent append aborts the
	// transaction instead of writing a conflicting sequence.
	err = rs.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("querying latest sequence: %w", err)
		}

		if current != expectedSeq {
			if expectedSeq == 0 {
				return backend.ErrRunAlreadyExists
			}

			return fmt.Errorf("expected sequence %d, have %d: %w", expectedSeq, current, backend.ErrSequenceConflict)
		}

		seq = current + 1

		data, err := json.Marshal(&storedCheckpoint{
			Sequence:  seq,
			State:     stateData,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("serializing checkpoint: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.RPush(ctx, key, data)
			p.SAdd(ctx, runsKey(rs.options.KeyPrefix), runID)
			return nil
		})

		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return 0, fmt.Errorf("concurrent append for run %v: %w", runID, backend.ErrSequenceConflict)
	}

	if err != nil {
		return 0, err
	}

	return seq, nil
}

func (rs *redisStore) LatestCheckpoint(ctx context.Context, runID string) (*core.Checkpoint, error) {
	key := checkpointsKey(rs.options.KeyPrefix, runID)

	data, err := rs.rdb.LRange(ctx, key, -1, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("querying latest checkpoint: %w", err)
	}

	if len(data) == 0 {
		return nil, backend.ErrRunNotFound
	}

	return rs.toCheckpoint(runID, []byte(data[0]))
}

func (rs *redisStore) GetCheckpoints(ctx context.Context, runID string) ([]*core.Checkpoint, error) {
	key := checkpointsKey(rs.options.KeyPrefix, runID)

	data, err := rs.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}

	if len(data) == 0 {
		return nil, backend.ErrRunNotFound
	}

	cps := make([]*core.Checkpoint, 0, len(data))
	for _, d := range data {
		cp, err := rs.toCheckpoint(runID, []byte(d))
		if err != nil {
			return nil, err
		}

		cps = append(cps, cp)
	}

	return cps, nil
}

func (rs *redisStore) ListRunIDs(ctx context.Context) ([]string, error) {
	ids, err := rs.rdb.SMembers(ctx, runsKey(rs.options.KeyPrefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("querying run ids: %w", err)
	}

	sort.Strings(ids)

	return ids, nil
}

func (rs *redisStore) toCheckpoint(runID string, data []byte) (*core.Checkpoint, error) {
	var sc storedCheckpoint
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("deserializing checkpoint: %w", err)
	}

	var state core.WorkflowState
	if err := rs.options.Converter.From(sc.State, &state); err != nil {
		return nil, fmt.Errorf("deserializing state: %w", err)
	}

	return &core.Checkpoint{
		RunID:     runID,
		Sequence:  sc.Sequence,
		State:     &state,
		CreatedAt: sc.CreatedAt,
	}, nil
}
