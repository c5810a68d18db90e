package sqlite

import (
	"context"
	"fmt"

	"github.com/docflowlabs/docflow/backend"
)

func (sb *sqliteStore) GetStats(ctx context.Context) (*backend.Stats, error) {
	s := &backend.Stats{}

	if err := sb.db.QueryRowContext(
		ctx, "SELECT COUNT(DISTINCT run_id), COUNT(*) FROM checkpoints",
	).Scan(&s.Runs, &s.Checkpoints); err != nil {
		return nil, fmt.Errorf("querying checkpoint stats: %w", err)
	}

	if err := sb.db.QueryRowContext(
		ctx, "SELECT COUNT(*) FROM review_queue",
	).Scan(&s.PendingReviews); err != nil {
		return nil, fmt.Errorf("querying review queue stats: %w", err)
	}

	return s, nil
}
