package cassandra

import (
	"context"
	"fmt"

	"github.com/docflowlabs/docflow/backend"
)

func (cb *cassandraStore) GetStats(ctx context.Context) (*backend.Stats, error) {
	s := &backend.Stats{}

	runIDs, err := cb.ListRunIDs(ctx)
	if err != nil {
		return nil, err
	}
	s.Runs = int64(len(runIDs))

	if err := cb.session.Query(
		`SELECT COUNT(*) FROM checkpoints`,
	).WithContext(ctx).Scan(&s.Checkpoints); err != nil {
		return nil, fmt.Errorf("querying checkpoint count: %w", err)
	}

	if err := cb.session.Query(
		`SELECT COUNT(*) FROM review_queue`,
	).WithContext(ctx).Scan(&s.PendingReviews); err != nil {
		return nil, fmt.Errorf("querying review queue size: %w", err)
	}

	return s, nil
}
