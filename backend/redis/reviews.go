package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docflowlabs/docflow/core"
	"github.com/redis/go-redis/v9"
)

func (rs *redisStore) PutPendingReview(ctx context.Context, entry *core.ReviewQueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("serializing review entry: %w", err)
	}

	_, err = rs.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, reviewQueueKey(rs.options.KeyPrefix), redis.Z{
			Score:  float64(entry.CreatedAt.UTC().UnixNano()),
			Member: entry.RunID,
		})
		p.Set(ctx, reviewEntryKey(rs.options.KeyPrefix, entry.RunID), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upserting review entry: %w", err)
	}

	return nil
}

func (rs *redisStore) RemovePendingReview(ctx context.Context, runID string) error {
	_, err := rs.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, reviewQueueKey(rs.options.KeyPrefix), runID)
		p.Del(ctx, reviewEntryKey(rs.options.KeyPrefix, runID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting review entry: %w", err)
	}

	return nil
}

func (rs *redisStore) PendingReviews(ctx context.Context) ([]*core.ReviewQueueEntry, error) {
	runIDs, err := rs.rdb.ZRange(ctx, reviewQueueKey(rs.options.KeyPrefix), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("querying review queue: %w", err)
	}

	entries := make([]*core.ReviewQueueEntry, 0, len(runIDs))
	for _, runID := range runIDs {
		data, err := rs.rdb.Get(ctx, reviewEntryKey(rs.options.KeyPrefix, runID)).Bytes()
		if err != nil {
			// Entry removed between the range scan and the read
			if errors.Is(err, redis.Nil) {
				continue
			}

			return nil, fmt.Errorf("reading review entry: %w", err)
		}

		var entry core.ReviewQueueEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("deserializing review entry: %w", err)
		}

		entries = append(entries, &entry)
	}

	return entries, nil
}
