package mysql

import (
	"context"
	"fmt"

	"github.com/docflowlabs/docflow/core"
)

func (b *mysqlStore) PutPendingReview(ctx context.Context, entry *core.ReviewQueueEntry) error {
	if _, err := b.db.ExecContext(
		ctx,
		"INSERT INTO `review_queue` (`run_id`, `reason`, `priority`, `created_at`) VALUES (?, ?, ?, ?)"+
			" ON DUPLICATE KEY UPDATE `reason` = VALUES(`reason`), `priority` = VALUES(`priority`), `created_at` = VALUES(`created_at`)",
		entry.RunID, entry.Reason, entry.Priority, entry.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("upserting review entry: %w", err)
	}

	return nil
}

func (b *mysqlStore) RemovePendingReview(ctx context.Context, runID string) error {
	if _, err := b.db.ExecContext(ctx, "DELETE FROM `review_queue` WHERE `run_id` = ?", runID); err != nil {
		return fmt.Errorf("deleting review entry: %w", err)
	}

	return nil
}

func (b *mysqlStore) PendingReviews(ctx context.Context) ([]*core.ReviewQueueEntry, error) {
	rows, err := b.db.QueryContext(
		ctx,
		"SELECT `run_id`, `reason`, `priority`, `created_at` FROM `review_queue` ORDER BY `created_at`, `run_id`",
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
