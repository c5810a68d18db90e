package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/internal/metrickeys"
	"github.com/docflowlabs/docflow/log"
	"github.com/docflowlabs/docflow/metrics"
	"github.com/docflowlabs/docflow/validate"
	"github.com/docflowlabs/docflow/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Resume continues a run that is suspended for human review. Corrections, if
// any, are merged key-by-key into the extracted data and checkpointed before
// validation re-runs, so they survive a crash between the two.
//
// If validation now passes the run proceeds to finalization, through the
// post-review node when one is configured. If it still fails, the run
// suspends again with the fresh reasons and the returned bool is true.
//
// Resuming an unknown run or one that is not suspended fails with a
// ResumeError.
func (e *Engine) Resume(ctx context.Context, runID string, corrections map[string]any) (*core.WorkflowState, bool, error) {
	ctx, span := e.tracer.Start(ctx, "Resume", trace.WithAttributes(
		attribute.String(log.RunIDKey, runID),
	))
	defer span.End()

	if !e.locks.tryAcquire(runID) {
		return nil, false, fmt.Errorf("resuming run %s: %w", runID, ErrRunBusy)
	}
	defer e.locks.release(runID)

	cp, err := e.store.LatestCheckpoint(ctx, runID)
	switch {
	case errors.Is(err, backend.ErrRunNotFound):
		return nil, false, &ResumeError{RunID: runID, Err: backend.ErrRunNotFound}
	case err != nil:
		return nil, false, &PersistenceError{Op: "loading latest checkpoint", RunID: runID, Err: err}
	}

	state := cp.State
	seq := cp.Sequence

	if state.Status != core.StatusPendingReview {
		return nil, false, &ResumeError{RunID: runID, Err: ErrNotPendingReview}
	}

	e.metrics.Counter(metrickeys.RunResumed, metrics.Tags{}, 1)
	e.logger.Debug("Resuming run", log.RunIDKey, runID)

	if len(corrections) > 0 {
		if state.ExtractedData == nil {
			state.ExtractedData = map[string]any{}
		}
		maps.Copy(state.ExtractedData, corrections)

		now := e.clock.Now()
		state.AppendHistory(fmt.Sprintf("Human review completed at %s", workflow.Timestamp(now)))
		state.Touch(now)

		seq, err = e.appendCheckpoint(ctx, state, seq)
		if err != nil {
			e.publishRunError(runID, "", err.Error())
			return nil, false, err
		}

		e.publishStateUpdated(state, seq)
	}

	result := validate.Route(state.ExtractedData)
	if result.Decision == validate.DecisionAwaitReview {
		return e.suspendForReview(ctx, state, seq, result.Reasons)
	}

	if e.options.PostReviewNode != nil {
		newSeq, failed, err := e.runNode(ctx, e.options.PostReviewNode, state, seq)
		if err != nil {
			return nil, false, err
		}
		if failed {
			return state, false, nil
		}

		seq = newSeq
	}

	return e.finalize(ctx, state, seq)
}

// Reject ends a suspended run without processing it further. The run moves to
// StatusError with a rejection message and its review queue entry is removed.
func (e *Engine) Reject(ctx context.Context, runID string) (*core.WorkflowState, error) {
	ctx, span := e.tracer.Start(ctx, "Reject", trace.WithAttributes(
		attribute.String(log.RunIDKey, runID),
	))
	defer span.End()

	if !e.locks.tryAcquire(runID) {
		return nil, fmt.Errorf("rejecting run %s: %w", runID, ErrRunBusy)
	}
	defer e.locks.release(runID)

	cp, err := e.store.LatestCheckpoint(ctx, runID)
	switch {
	case errors.Is(err, backend.ErrRunNotFound):
		return nil, &ResumeError{RunID: runID, Err: backend.ErrRunNotFound}
	case err != nil:
		return nil, &PersistenceError{Op: "loading latest checkpoint", RunID: runID, Err: err}
	}

	state := cp.State

	if state.Status != core.StatusPendingReview {
		return nil, &ResumeError{RunID: runID, Err: ErrNotPendingReview}
	}

	now := e.clock.Now()

	if err := state.Transition(core.StatusError, now); err != nil {
		return nil, err
	}

	state.ErrorMessage = "Rejected by human reviewer"
	state.AppendHistory(fmt.Sprintf("Run rejected by human reviewer at %s", workflow.Timestamp(now)))

	seq, err := e.appendCheckpoint(ctx, state, cp.Sequence)
	if err != nil {
		e.publishRunError(runID, "", err.Error())
		return nil, err
	}

	e.publishStateUpdated(state, seq)
	e.publishRunError(runID, "", state.ErrorMessage)
	e.hub.CloseRun(runID)

	if err := e.store.RemovePendingReview(ctx, runID); err != nil {
		e.logger.Error("Removing review queue entry failed", log.RunIDKey, runID, "error", err)
	}

	e.metrics.Counter(metrickeys.RunRejected, metrics.Tags{}, 1)
	e.logger.Debug("Run rejected", log.RunIDKey, runID)

	return state, nil
}
