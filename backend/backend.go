package backend

import (
	"context"
	"errors"

	"github.com/docflowlabs/docflow/core"
)

var (
	ErrRunNotFound      = errors.New("run not found")
	ErrRunAlreadyExists = errors.New("run already exists")

	// ErrSequenceConflict is returned by AppendCheckpoint when the expected
	// sequence does not match the store's latest. It indicates a concurrent
	// writer for the same run.
	ErrSequenceConflict = errors.New("checkpoint sequence conflict")
)

const TracerName = "docflow"

// Store is the persistence contract for document runs. Checkpoints are
// append-only full snapshots; the highest sequence number is the
// authoritative state of a run. Implementations must be safe for concurrent
// use across different run IDs.
type Store interface {
	// AppendCheckpoint persists a snapshot of the given state and returns the
	// assigned sequence number. Sequences are 1-based and dense per run.
	//
	// expectedSeq is the sequence the caller believes to be the run's latest,
	// 0 for a run with no checkpoints. If a checkpoint with sequence
	// expectedSeq+1 already exists, nothing is written and either
	// ErrRunAlreadyExists (expectedSeq == 0) or ErrSequenceConflict is
	// returned.
	AppendCheckpoint(ctx context.Context, runID string, state *core.WorkflowState, expectedSeq int64) (int64, error)

	// LatestCheckpoint returns the checkpoint with the highest sequence
	// number, or ErrRunNotFound if the run has no checkpoints.
	LatestCheckpoint(ctx context.Context, runID string) (*core.Checkpoint, error)

	// GetCheckpoints returns all checkpoints of a run in ascending sequence
	// order, or ErrRunNotFound if there are none.
	GetCheckpoints(ctx context.Context, runID string) ([]*core.Checkpoint, error)

	// ListRunIDs returns the IDs of all runs with at least one checkpoint.
	ListRunIDs(ctx context.Context) ([]string, error)

	// PutPendingReview creates or replaces the review queue entry for the
	// entry's run.
	PutPendingReview(ctx context.Context, entry *core.ReviewQueueEntry) error

	// RemovePendingReview deletes the review queue entry for the given run.
	// Removing an absent entry is not an error.
	RemovePendingReview(ctx context.Context, runID string) error

	// PendingReviews returns all review queue entries, oldest first.
	PendingReviews(ctx context.Context) ([]*core.ReviewQueueEntry, error)

	// GetStats returns counts about the store's contents.
	GetStats(ctx context.Context) (*Stats, error)

	// Close closes any underlying resources
	Close() error
}
