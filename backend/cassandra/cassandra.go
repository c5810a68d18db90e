package cassandra

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"github.com/gocql/gocql"
)

type options struct {
	backend.Options
}

type option func(*options)

// WithBackendOptions allows to pass generic backend options.
func WithBackendOptions(opts ...backend.BackendOption) option {
	return func(o *options) {
		for _, opt := range opts {
			opt(&o.Options)
		}
	}
}

var _ backend.Store = (*cassandraStore)(nil)

func NewCassandraStore(hosts []string, keyspace string, opts ...option) *cassandraStore {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum

	session, err := cluster.CreateSession()
	if err != nil {
		panic(err)
	}

	options := &options{
		Options: backend.ApplyOptions(),
	}

	for _, opt := range opts {
		opt(options)
	}

	s := &cassandraStore{
		session: session,
		options: options,
	}

	if err := s.ensureSchema(); err != nil {
		panic(err)
	}

	return s
}

type cassandraStore struct {
	session *gocql.Session
	options *options
}

func (cb *cassandraStore) ensureSchema() error {
	// Clustering by sequence DESC makes "latest checkpoint" a LIMIT 1 read.
	if err := cb.session.Query(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			run_id text,
			sequence bigint,
			state blob,
			created_at timestamp,
			PRIMARY KEY (run_id, sequence)
		) WITH CLUSTERING ORDER BY (sequence DESC)`).Exec(); err != nil {
		return fmt.Errorf("creating checkpoints table: %w", err)
	}

	if err := cb.session.Query(`
		CREATE TABLE IF NOT EXISTS review_queue (
			run_id text PRIMARY KEY,
			reason text,
			priority text,
			created_at timestamp
		)`).Exec(); err != nil {
		return fmt.Errorf("creating review_queue table: %w", err)
	}

	return nil
}

func (cb *cassandraStore) Close() error {
	cb.session.Close()
	return nil
}

func (cb *cassandraStore) AppendCheckpoint(ctx context.Context, runID string, state *core.WorkflowState, expectedSeq int64) (int64, error) {
	data, err := cb.options.Converter.To(state)
	if err != nil {
		return 0, fmt.Errorf("serializing state: %w", err)
	}

	var current int64
	if err := cb.session.Query(
		`SELECT sequence FROM checkpoints WHERE run_id = ? LIMIT 1`, runID,
	).WithContext(ctx).Scan(&current); err != nil && err != gocql.ErrNotFound {
		return 0, fmt.Errorf("querying latest sequence: %w", err)
	}

	if current != expectedSeq {
		if expectedSeq == 0 {
			return 0, backend.ErrRunAlreadyExists
		}

		return 0, fmt.Errorf("expected sequence %d, have %d: %w", expectedSeq, current, backend.ErrSequenceConflict)
	}

	seq := current + 1

	// Lightweight transaction so concurrent appenders cannot both claim the
	// same sequence.
	applied, err := cb.session.Query(
		`INSERT INTO checkpoints (run_id, sequence, state, created_at) VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		runID, seq, data, time.Now().UTC(),
	).WithContext(ctx).ScanCAS()
	if err != nil {
		return 0, fmt.Errorf("inserting checkpoint: %w", err)
	}

	if !applied {
		return 0, fmt.Errorf("concurrent append for run %v: %w", runID, backend.ErrSequenceConflict)
	}

	return seq, nil
}

func (cb *cassandraStore) LatestCheckpoint(ctx context.Context, runID string) (*core.Checkpoint, error) {
	var (
		seq       int64
		data      []byte
		createdAt time.Time
	)

	if err := cb.session.Query(
		`SELECT sequence, state, created_at FROM checkpoints WHERE run_id = ? LIMIT 1`, runID,
	).WithContext(ctx).Scan(&seq, &data, &createdAt); err != nil {
		if err == gocql.ErrNotFound {
			return nil, backend.ErrRunNotFound
		}

		return nil, fmt.Errorf("querying latest checkpoint: %w", err)
	}

	return cb.toCheckpoint(runID, seq, data, createdAt)
}

func (cb *cassandraStore) GetCheckpoints(ctx context.Context, runID string) ([]*core.Checkpoint, error) {
	iter := cb.session.Query(
		`SELECT sequence, state, created_at FROM checkpoints WHERE run_id = ? ORDER BY sequence ASC`, runID,
	).WithContext(ctx).Iter()

	var cps []*core.Checkpoint

	var (
		seq       int64
		data      []byte
		createdAt time.Time
	)
	for iter.Scan(&seq, &data, &createdAt) {
		cp, err := cb.toCheckpoint(runID, seq, append([]byte(nil), data...), createdAt)
		if err != nil {
			iter.Close()
			return nil, err
		}

		cps = append(cps, cp)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}

	if len(cps) == 0 {
		return nil, backend.ErrRunNotFound
	}

	return cps, nil
}

func (cb *cassandraStore) ListRunIDs(ctx context.Context) ([]string, error) {
	iter := cb.session.Query(`SELECT DISTINCT run_id FROM checkpoints`).WithContext(ctx).Iter()

	var ids []string

	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("querying run ids: %w", err)
	}

	sort.Strings(ids)

	return ids, nil
}

func (cb *cassandraStore) toCheckpoint(runID string, seq int64, data []byte, createdAt time.Time) (*core.Checkpoint, error) {
	var state core.WorkflowState
	if err := cb.options.Converter.From(data, &state); err != nil {
		return nil, fmt.Errorf("deserializing state: %w", err)
	}

	return &core.Checkpoint{
		RunID:     runID,
		Sequence:  seq,
		State:     &state,
		CreatedAt: createdAt,
	}, nil
}
