package mongo

import (
	"context"
	"fmt"

	"github.com/docflowlabs/docflow/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (ms *mongoStore) PutPendingReview(ctx context.Context, entry *core.ReviewQueueEntry) error {
	doc := &reviewDoc{
		RunID:     entry.RunID,
		Reason:    entry.Reason,
		Priority:  entry.Priority,
		CreatedAt: entry.CreatedAt.UTC(),
	}

	_, err := ms.db.Collection(reviewsCollection).ReplaceOne(
		ctx,
		bson.M{"run_id": entry.RunID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upserting review entry: %w", err)
	}

	return nil
}

func (ms *mongoStore) RemovePendingReview(ctx context.Context, runID string) error {
	if _, err := ms.db.Collection(reviewsCollection).DeleteOne(ctx, bson.M{"run_id": runID}); err != nil {
		return fmt.Errorf("deleting review entry: %w", err)
	}

	return nil
}

func (ms *mongoStore) PendingReviews(ctx context.Context) ([]*core.ReviewQueueEntry, error) {
	cursor, err := ms.db.Collection(reviewsCollection).Find(
		ctx,
		bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "run_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("querying review queue: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*core.ReviewQueueEntry
	for cursor.Next(ctx) {
		var doc reviewDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding review entry: %w", err)
		}

		entries = append(entries, &core.ReviewQueueEntry{
			RunID:     doc.RunID,
			Reason:    doc.Reason,
			Priority:  doc.Priority,
			CreatedAt: doc.CreatedAt,
		})
	}

	return entries, cursor.Err()
}
