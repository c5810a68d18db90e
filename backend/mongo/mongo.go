package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	checkpointsCollection = "checkpoints"
	reviewsCollection     = "review_queue"
)

// checkpointDoc is the persisted form of a checkpoint. The unique compound
// index on (run_id, sequence) makes concurrent conflicting appends fail with
// a duplicate key error.
type checkpointDoc struct {
	RunID     string    `bson:"run_id"`
	Sequence  int64     `bson:"sequence"`
	State     []byte    `bson:"state"`
	CreatedAt time.Time `bson:"created_at"`
}

type reviewDoc struct {
	RunID     string    `bson:"run_id"`
	Reason    string    `bson:"reason"`
	Priority  string    `bson:"priority"`
	CreatedAt time.Time `bson:"created_at"`
}

type mongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	options backend.Options
}

var _ backend.Store = (*mongoStore)(nil)

func NewMongoStore(uri, database string, opts ...backend.BackendOption) (*mongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(
		ctx,
		options.Client().ApplyURI(uri),
		options.Client().SetAppName("docflow"),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	s := &mongoStore{
		client:  client,
		db:      client.Database(database),
		options: backend.ApplyOptions(opts...),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (ms *mongoStore) ensureIndexes(ctx context.Context) error {
	_, err := ms.db.Collection(checkpointsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}, {Key: "sequence", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating checkpoint index: %w", err)
	}

	_, err = ms.db.Collection(reviewsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating review queue index: %w", err)
	}

	return nil
}

func (ms *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return ms.client.Disconnect(ctx)
}
