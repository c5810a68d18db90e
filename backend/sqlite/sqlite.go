package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// NewInMemoryStore creates a store backed by an in-memory SQLite database.
// The connection pool is limited to a single connection, otherwise every new
// connection would see a fresh, empty database.
func NewInMemoryStore(opts ...backend.BackendOption) *sqliteStore {
	s := newSqliteStore("file::memory:?_pragma=journal_mode(memory)", opts...)

	s.db.SetMaxOpenConns(1)

	return s
}

func NewSqliteStore(path string, opts ...backend.BackendOption) *sqliteStore {
	return newSqliteStore(fmt.Sprintf("file:%v?_pragma=journal_mode(wal)&_pragma=busy_timeout(10000)", path), opts...)
}

func newSqliteStore(dsn string, opts ...backend.BackendOption) *sqliteStore {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	// Initialize database
	if _, err := db.Exec(schema); err != nil {
		panic(err)
	}

	return &sqliteStore{
		db:      db,
		options: backend.ApplyOptions(opts...),
	}
}

type sqliteStore struct {
	db      *sql.DB
	options backend.Options
}

var _ backend.Store = (*sqliteStore)(nil)

func (sb *sqliteStore) AppendCheckpoint(ctx context.Context, runID string, state *core.WorkflowState, expectedSeq int64) (int64, error) {
	data, err := sb.options.Converter.To(state)
	if err != nil {
		return 0, fmt.Errorf("serializing state: %w", err)
	}

	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(
		ctx, "SELECT COALESCE(MAX(sequence), 0) FROM checkpoints WHERE run_id = ?", runID,
	).Scan(&current); err != nil {
		return 0, fmt.Errorf("querying latest sequence: %w", err)
	}

	if current != expectedSeq {
		if expectedSeq == 0 {
			return 0, backend.ErrRunAlreadyExists
		}

		return 0, fmt.Errorf("expected sequence %d, have %d: %w", expectedSeq, current, backend.ErrSequenceConflict)
	}

	seq := current + 1

	if _, err := tx.ExecContext(
		ctx,
		"INSERT INTO checkpoints (run_id, sequence, state, created_at) VALUES (?, ?, ?, ?)",
		runID, seq, data, time.Now().UTC(),
	); err != nil {
		return 0, fmt.Errorf("inserting checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing checkpoint: %w", err)
	}

	return seq, nil
}

func (sb *sqliteStore) LatestCheckpoint(ctx context.Context, runID string) (*core.Checkpoint, error) {
	row := sb.db.QueryRowContext(
		ctx,
		"SELECT sequence, state, created_at FROM checkpoints WHERE run_id = ? ORDER BY sequence DESC LIMIT 1",
		runID,
	)

	cp, err := sb.scanCheckpoint(runID, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrRunNotFound
		}

		return nil, err
	}

	return cp, nil
}

func (sb *sqliteStore) GetCheckpoints(ctx context.Context, runID string) ([]*core.Checkpoint, error) {
	rows, err := sb.db.QueryContext(
		ctx,
		"SELECT sequence, state, created_at FROM checkpoints WHERE run_id = ? ORDER BY sequence",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []*core.Checkpoint
	for rows.Next() {
		cp, err := sb.scanCheckpoint(runID, rows)
		if err != nil {
			return nil, err
		}

		cps = append(cps, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(cps) == 0 {
		return nil, backend.ErrRunNotFound
	}

	return cps, nil
}

func (sb *sqliteStore) ListRunIDs(ctx context.Context) ([]string, error) {
	rows, err := sb.db.QueryContext(ctx, "SELECT DISTINCT run_id FROM checkpoints ORDER BY run_id")
	if err != nil {
		return nil, fmt.Errorf("querying run ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (sb *sqliteStore) Close() error {
	return sb.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func (sb *sqliteStore) scanCheckpoint(runID string, row scanner) (*core.Checkpoint, error) {
	var (
		seq       int64
		data      []byte
		createdAt time.Time
	)

	if err := row.Scan(&seq, &data, &createdAt); err != nil {
		return nil, err
	}

	var state core.WorkflowState
	if err := sb.options.Converter.From(data, &state); err != nil {
		return nil, fmt.Errorf("deserializing state: %w", err)
	}

	return &core.Checkpoint{
		RunID:     runID,
		Sequence:  seq,
		State:     &state,
		CreatedAt: createdAt,
	}, nil
}
