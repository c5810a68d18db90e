package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (ms *mongoStore) AppendCheckpoint(ctx context.Context, runID string, state *core.WorkflowState, expectedSeq int64) (int64, error) {
	data, err := ms.options.Converter.To(state)
	if err != nil {
		return 0, fmt.Errorf("serializing state: %w", err)
	}

	var current int64

	var latest checkpointDoc
	err = ms.db.Collection(checkpointsCollection).FindOne(
		ctx,
		bson.M{"run_id": runID},
		options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}}),
	).Decode(&latest)
	switch {
	case err == nil:
		current = latest.Sequence
	case errors.Is(err, mongo.ErrNoDocuments):
		current = 0
	default:
		return 0, fmt.Errorf("querying latest sequence: %w", err)
	}

	if current != expectedSeq {
		if expectedSeq == 0 {
			return 0, backend.ErrRunAlreadyExists
		}

		return 0, fmt.Errorf("expected sequence %d, have %d: %w", expectedSeq, current, backend.ErrSequenceConflict)
	}

	seq := current + 1

	_, err = ms.db.Collection(checkpointsCollection).InsertOne(ctx, &checkpointDoc{
		RunID:     runID,
		Sequence:  seq,
		State:     data,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		// A concurrent append won the race for this sequence
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("concurrent append for run %v: %w", runID, backend.ErrSequenceConflict)
		}

		return 0, fmt.Errorf("inserting checkpoint: %w", err)
	}

	return seq, nil
}

func (ms *mongoStore) LatestCheckpoint(ctx context.Context, runID string) (*core.Checkpoint, error) {
	var doc checkpointDoc
	err := ms.db.Collection(checkpointsCollection).FindOne(
		ctx,
		bson.M{"run_id": runID},
		options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, backend.ErrRunNotFound
		}

		return nil, fmt.Errorf("querying latest checkpoint: %w", err)
	}

	return ms.toCheckpoint(&doc)
}

func (ms *mongoStore) GetCheckpoints(ctx context.Context, runID string) ([]*core.Checkpoint, error) {
	cursor, err := ms.db.Collection(checkpointsCollection).Find(
		ctx,
		bson.M{"run_id": runID},
		options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer cursor.Close(ctx)

	var cps []*core.Checkpoint
	for cursor.Next(ctx) {
		var doc checkpointDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding checkpoint: %w", err)
		}

		cp, err := ms.toCheckpoint(&doc)
		if err != nil {
			return nil, err
		}

		cps = append(cps, cp)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	if len(cps) == 0 {
		return nil, backend.ErrRunNotFound
	}

	return cps, nil
}

func (ms *mongoStore) ListRunIDs(ctx context.Context) ([]string, error) {
	ids, err := ms.db.Collection(checkpointsCollection).Distinct(ctx, "run_id", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("querying run ids: %w", err)
	}

	runIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := id.(string); ok {
			runIDs = append(runIDs, s)
		}
	}

	return runIDs, nil
}

func (ms *mongoStore) toCheckpoint(doc *checkpointDoc) (*core.Checkpoint, error) {
	var state core.WorkflowState
	if err := ms.options.Converter.From(doc.State, &state); err != nil {
		return nil, fmt.Errorf("deserializing state: %w", err)
	}

	return &core.Checkpoint{
		RunID:     doc.RunID,
		Sequence:  doc.Sequence,
		State:     &state,
		CreatedAt: doc.CreatedAt,
	}, nil
}
