package cassandra

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/docflowlabs/docflow/core"
)

func (cb *cassandraStore) PutPendingReview(ctx context.Context, entry *core.ReviewQueueEntry) error {
	if err := cb.session.Query(
		`INSERT INTO review_queue (run_id, reason, priority, created_at) VALUES (?, ?, ?, ?)`,
		entry.RunID, entry.Reason, entry.Priority, entry.CreatedAt.UTC(),
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("upserting review entry: %w", err)
	}

	return nil
}

func (cb *cassandraStore) RemovePendingReview(ctx context.Context, runID string) error {
	if err := cb.session.Query(
		`DELETE FROM review_queue WHERE run_id = ?`, runID,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("deleting review entry: %w", err)
	}

	return nil
}

func (cb *cassandraStore) PendingReviews(ctx context.Context) ([]*core.ReviewQueueEntry, error) {
	iter := cb.session.Query(
		`SELECT run_id, reason, priority, created_at FROM review_queue`,
	).WithContext(ctx).Iter()

	var entries []*core.ReviewQueueEntry

	var (
		runID     string
		reason    string
		priority  string
		createdAt time.Time
	)
	for iter.Scan(&runID, &reason, &priority, &createdAt) {
		entries = append(entries, &core.ReviewQueueEntry{
			RunID:     runID,
			Reason:    reason,
			Priority:  priority,
			CreatedAt: createdAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("querying review queue: %w", err)
	}

	// Partitions come back in token order, sort by age instead
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].RunID < entries[j].RunID
		}

		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return entries, nil
}
