package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

func NewPostgresStore(host string, port int, user, password, database string, opts ...option) *postgresStore {
	options := &options{
		Options:         backend.ApplyOptions(),
		ApplyMigrations: true,
		SSLMode:         "disable",
	}

	for _, opt := range opts {
		opt(options)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", host, port, user, password, database, options.SSLMode)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		panic(err)
	}

	if options.PostgresOptions != nil {
		options.PostgresOptions(db)
	}

	s := &postgresStore{
		dsn:            dsn,
		db:             db,
		options:        options,
		ownsConnection: true,
	}

	if options.ApplyMigrations {
		if err := s.Migrate(); err != nil {
			panic(err)
		}
	}

	return s
}

// NewPostgresStoreWithDB creates a store using an existing database
// connection. The store will not close the connection when Close() is
// called. Migrations can still be applied using WithApplyMigrations(true).
func NewPostgresStoreWithDB(db *sql.DB, opts ...option) *postgresStore {
	options := &options{
		Options:         backend.ApplyOptions(),
		ApplyMigrations: false,
	}

	for _, opt := range opts {
		opt(options)
	}

	s := &postgresStore{
		dsn:            "",
		db:             db,
		options:        options,
		ownsConnection: false,
	}

	if options.ApplyMigrations {
		if err := s.Migrate(); err != nil {
			panic(err)
		}
	}

	return s
}

type postgresStore struct {
	dsn            string
	db             *sql.DB
	options        *options
	ownsConnection bool
}

var _ backend.Store = (*postgresStore)(nil)

func (pb *postgresStore) Close() error {
	if !pb.ownsConnection {
		return nil
	}
	return pb.db.Close()
}

// Migrate applies any pending database migrations.
func (pb *postgresStore) Migrate() error {
	var db *sql.DB
	var needsClose bool

	if pb.dsn != "" {
		var err error
		db, err = sql.Open("pgx", pb.dsn)
		if err != nil {
			return fmt.Errorf("opening schema database: %w", err)
		}
		needsClose = true
	} else {
		db = pb.db
		needsClose = false
	}

	dbi, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "postgres", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	if needsClose {
		if err := db.Close(); err != nil {
			return fmt.Errorf("closing schema database: %w", err)
		}
	}

	return nil
}

func (pb *postgresStore) AppendCheckpoint(ctx context.Context, runID string, state *core.WorkflowState, expectedSeq int64) (int64, error) {
	data, err := pb.options.Converter.To(state)
	if err != nil {
		return 0, fmt.Errorf("serializing state: %w", err)
	}

	tx, err := pb.db.BeginTx(ctx, &sql.TxOptions{
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
		"SELECT sequence FROM checkpoints WHERE run_id = $1 ORDER BY sequence DESC LIMIT 1 FOR UPDATE",
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
		"INSERT INTO checkpoints (run_id, sequence, state, created_at) VALUES ($1, $2, $3, $4)",
		runID, seq, data, time.Now().UTC(),
	); err != nil {
		return 0, fmt.Errorf("inserting checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing checkpoint: %w", err)
	}

	return seq, nil
}

func (pb *postgresStore) LatestCheckpoint(ctx context.Context, runID string) (*core.Checkpoint, error) {
	row := pb.db.QueryRowContext(
		ctx,
		"SELECT sequence, state, created_at FROM checkpoints WHERE run_id = $1 ORDER BY sequence DESC LIMIT 1",
		runID,
	)

	cp, err := pb.scanCheckpoint(runID, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrRunNotFound
		}

		return nil, err
	}

	return cp, nil
}

func (pb *postgresStore) GetCheckpoints(ctx context.Context, runID string) ([]*core.Checkpoint, error) {
	rows, err := pb.db.QueryContext(
		ctx,
		"SELECT sequence, state, created_at FROM checkpoints WHERE run_id = $1 ORDER BY sequence",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []*core.Checkpoint
	for rows.Next() {
		cp, err := pb.scanCheckpoint(runID, rows)
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

func (pb *postgresStore) ListRunIDs(ctx context.Context) ([]string, error) {
	rows, err := pb.db.QueryContext(ctx, "SELECT DISTINCT run_id FROM checkpoints ORDER BY run_id")
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

type scanner interface {
	Scan(dest ...any) error
}

func (pb *postgresStore) scanCheckpoint(runID string, row scanner) (*core.Checkpoint, error) {
	var (
		seq       int64
		data      []byte
		createdAt time.Time
	)

	if err := row.Scan(&seq, &data, &createdAt); err != nil {
		return nil, err
	}

	var state core.WorkflowState
	if err := pb.options.Converter.From(data, &state); err != nil {
		return nil, fmt.Errorf("deserializing state: %w", err)
	}

	return &core.Checkpoint{
		RunID:     runID,
		Sequence:  seq,
		State:     &state,
		CreatedAt: createdAt,
	}, nil
}
