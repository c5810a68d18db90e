package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	_ "github.com/go-sql-driver/mysql"
)

//go:embed schema.sql
var schema string

func NewMysqlStore(host string, port int, user, password, database string, opts ...backend.BackendOption) *mysqlStore {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&interpolateParams=true", user, password, host, port, database)

	schemaDsn := dsn + "&multiStatements=true"
	db, err := sql.Open("mysql", schemaDsn)
	if err != nil {
		panic(err)
	}

	if _, err := db.Exec(schema); err != nil {
		panic(fmt.Errorf("initializing database: %w", err))
	}

	if err := db.Close(); err != nil {
		panic(err)
	}

	db, err = sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}

	return &mysqlStore{
		db:      db,
		options: backend.ApplyOptions(opts...),
	}
}

type mysqlStore struct {
	db      *sql.DB
	options backend.Options
}

var _ backend.Store = (*mysqlStore)(nil)

func (b *mysqlStore) AppendCheckpoint(ctx context.Context, runID string, state *core.WorkflowState, expectedSeq int64) (int64, error) {
	data, err := b.options.Converter.To(state)
	if err != nil {
		return 0, fmt.Errorf("serializing state: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the run's newest checkpoint row so concurrent appenders serialize
	var current int64
	if err := tx.QueryRowContext(
		ctx,
		"SELECT `sequence` FROM `checkpoints` WHERE `run_id` = ? ORDER BY `sequence` DESC LIMIT 1 FOR UPDATE",
		runID,
	).Scan(&current); err != nil && !errors.Is(err, sql.ErrNoRows) {
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
		"INSERT INTO `checkpoints` (`run_id`, `sequence`, `state`, `created_at`) VALUES (?, ?, ?, ?)",
		runID, seq, data, time.Now().UTC(),
	); err != nil {
		return 0, fmt.Errorf("inserting checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing checkpoint: %w", err)
	}

	return seq, nil
}

func (b *mysqlStore) LatestCheckpoint(ctx context.Context, runID string) (*core.Checkpoint, error) {
	row := b.db.QueryRowContext(
		ctx,
		"SELECT `sequence`, `state`, `created_at` FROM `checkpoints` WHERE `run_id` = ? ORDER BY `sequence` DESC LIMIT 1",
		runID,
	)

	cp, err := b.scanCheckpoint(runID, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrRunNotFound
		}

		return nil, err
	}

	return cp, nil
}

func (b *mysqlStore) GetCheckpoints(ctx context.Context, runID string) ([]*core.Checkpoint, error) {
	rows, err := b.db.QueryContext(
		ctx,
		"SELECT `sequence`, `state`, `created_at` FROM `checkpoints` WHERE `run_id` = ? ORDER BY `sequence`",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []*core.Checkpoint
	for rows.Next() {
		cp, err := b.scanCheckpoint(runID, rows)
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

func (b *mysqlStore) ListRunIDs(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT DISTINCT `run_id` FROM `checkpoints` ORDER BY `run_id`")
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

func (b *mysqlStore) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func (b *mysqlStore) scanCheckpoint(runID string, row scanner) (*core.Checkpoint, error) {
	var (
		seq       int64
		data      []byte
		createdAt time.Time
	)

	if err := row.Scan(&seq, &data, &createdAt); err != nil {
		return nil, err
	}

	var state core.WorkflowState
	if err := b.options.Converter.From(data, &state); err != nil {
		return nil, fmt.Errorf("deserializing state: %w", err)
	}

	return &core.Checkpoint{
		RunID:     runID,
		Sequence:  seq,
		State:     &state,
		CreatedAt: createdAt,
	}, nil
}
