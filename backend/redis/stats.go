package redis

import (
	"context"
	"fmt"

	"github.com/docflowlabs/docflow/backend"
)

func (rs *redisStore) GetStats(ctx context.Context) (*backend.Stats, error) {
	s := &backend.Stats{}

	runIDs, err := rs.rdb.SMembers(ctx, runsKey(rs.options.KeyPrefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}

	s.Runs = int64(len(runIDs))

	for _, runID := range runIDs {
		n, err := rs.rdb.LLen(ctx, checkpointsKey(rs.options.KeyPrefix, runID)).Result()
		if err != nil {
			return nil, fmt.Errorf("querying checkpoint count: %w", err)
		}

		s.Checkpoints += n
	}

	pending, err := rs.rdb.ZCard(ctx, reviewQueueKey(rs.options.KeyPrefix)).Result()
	if err != nil {
		return nil, fmt.Errorf("querying review queue size: %w", err)
	}

	s.PendingReviews = pending

	return s, nil
}
