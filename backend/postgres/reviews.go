package postgres

import (
	"context"
	"fmt"

	"github.com/docflowlabs/docflow/core"
)

func (pb *postgresStore) PutPendingReview(ctx context.Context, entry *core.ReviewQueueEntry) error {
	if _, err := pb.db.ExecContext(
		ctx,
		`INSERT INTO review_queue (run_id, reason, priority, created_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (run_id) DO UPDATE SET reason = EXCLUDED.reason, priority = EXCLUDED.priority, created_at = EXCLUDED.created_at`,
		entry.RunID, entry.Reason, entry.Priority, entry.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("upserting review entry: %w", err)
	}

	return nil
}

func (pb *postgresStore) RemovePendingReview(ctx context.Context, runID string) error {
	if _, err := pb.db.ExecContext(ctx, "DELETE FROM review_queue WHERE run_id = $1", runID); err != nil {
		return fmt.Errorf("deleting review entry: %w", err)
	}

	return nil
}

func (pb *postgresStore) PendingReviews(ctx context.Context) ([]*core.ReviewQueueEntry, error) {
	rows, err := pb.db.QueryContext(
		ctx,
		"SELECT run_id, reason, priority, created_at FROM review_queue ORDER BY created_at, run_id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying review queue: %w", err)
	}
	defer rows.Close()

	var entries []*core.ReviewQueueEntry
	for rows.Next() {
		var entry core.ReviewQueueEntry
		if err := rows.Scan(&entry.RunID, &entry.Reason, &entry.Priority, &entry.CreatedAt); err != nil {
			return nil, err
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
