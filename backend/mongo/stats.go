package mongo

import (
	"context"
	"fmt"

	"github.com/docflowlabs/docflow/backend"
	"go.mongodb.org/mongo-driver/bson"
)

func (ms *mongoStore) GetStats(ctx context.Context) (*backend.Stats, error) {
	s := &backend.Stats{}

	ids, err := ms.db.Collection(checkpointsCollection).Distinct(ctx, "run_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	s.Runs = int64(len(ids))

	checkpoints, err := ms.db.Collection(checkpointsCollection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("querying checkpoint count: %w", err)
	}
	s.Checkpoints = checkpoints

	pending, err := ms.db.Collection(reviewsCollection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("querying review queue size: %w", err)
	}
	s.PendingReviews = pending

	return s, nil
}
