package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrRunBusy is returned when another operation is already driving the
	// run. Operations on a run never queue; the caller retries.
	ErrRunBusy = errors.New("run is busy")

	// ErrNotPendingReview is returned by Resume and Reject when the run is
	// not suspended for human review.
	ErrNotPendingReview = errors.New("run is not pending review")
)

// ResumeError reports why a run could not be resumed or rejected. It wraps
// one of backend.ErrRunNotFound or ErrNotPendingReview.
type ResumeError struct {
	RunID string
	Err   error
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("resuming run %s: %s", e.RunID, e.Err.Error())
}

func (e *ResumeError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a checkpoint store failure. The run itself stays
// resumable from its last successful checkpoint.
type PersistenceError struct {
	// Op is the failed store operation, e.g. "append" or "load".
	Op    string
	RunID string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s for run %s: %s", e.Op, e.RunID, e.Err.Error())
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
