package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/internal/metrickeys"
	im "github.com/docflowlabs/docflow/internal/metrics"
	"github.com/docflowlabs/docflow/internal/runerrors"
	"github.com/docflowlabs/docflow/log"
	"github.com/docflowlabs/docflow/metrics"
	"github.com/docflowlabs/docflow/validate"
	"github.com/docflowlabs/docflow/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type runOptions struct {
	runID string
}

type RunOption func(*runOptions)

// WithRunID fixes the run's ID instead of generating one. Useful for
// idempotent submission: starting the same ID twice fails with
// backend.ErrRunAlreadyExists.
func WithRunID(runID string) RunOption {
	return func(o *runOptions) {
		o.runID = runID
	}
}

// Run starts a new document run and drives it until it finalizes, fails, or
// suspends for human review. The returned bool is true when the run is
// suspended; the caller continues it later with Resume.
//
// The initial checkpoint is written before the first node executes, so even a
// run that crashes immediately is recoverable.
func (e *Engine) Run(ctx context.Context, documentContent string, opts ...RunOption) (*core.WorkflowState, bool, error) {
	ro := &runOptions{
		runID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(ro)
	}

	runID := ro.runID

	ctx, span := e.tracer.Start(ctx, "Run", trace.WithAttributes(
		attribute.String(log.RunIDKey, runID),
	))
	defer span.End()

	if !e.locks.tryAcquire(runID) {
		return nil, false, fmt.Errorf("starting run %s: %w", runID, ErrRunBusy)
	}
	defer e.locks.release(runID)

	// A run ID is creatable exactly once.
	_, err := e.store.LatestCheckpoint(ctx, runID)
	switch {
	case err == nil:
		return nil, false, fmt.Errorf("starting run %s: %w", runID, backend.ErrRunAlreadyExists)
	case !errors.Is(err, backend.ErrRunNotFound):
		return nil, false, &PersistenceError{Op: "loading latest checkpoint", RunID: runID, Err: err}
	}

	state := core.NewWorkflowState(runID, documentContent, e.clock.Now())

	seq, err := e.appendCheckpoint(ctx, state, 0)
	if err != nil {
		return nil, false, err
	}

	e.metrics.Counter(metrickeys.RunStarted, metrics.Tags{}, 1)
	e.logger.Debug("Started run", log.RunIDKey, runID)

	e.publish(runID, "", core.NewEvent(core.EventRunStarted, map[string]any{
		"status": string(state.Status),
	}))

	return e.drive(ctx, state, seq)
}

type step int

const (
	stepDone step = iota
	stepSuspend
	stepIntake
	stepExtract
	stepFinalize
	stepAwaitReview
)

// nextStep picks the next node purely from the persisted state, so a reloaded
// checkpoint continues exactly where the run left off.
func nextStep(state *core.WorkflowState) (step, []string) {
	switch state.Status {
	case core.StatusReceived:
		return stepIntake, nil

	case core.StatusProcessing:
		if state.ExtractedData == nil {
			return stepExtract, nil
		}

		result := validate.Route(state.ExtractedData)
		if result.Decision == validate.DecisionFinalize {
			return stepFinalize, nil
		}

		return stepAwaitReview, result.Reasons

	case core.StatusPendingReview:
		return stepSuspend, nil

	default:
		return stepDone, nil
	}
}

// drive advances the run node by node until it reaches a terminal status or
// suspends. Each iteration either returns or writes a checkpoint that moves
// the state forward, so the loop is bounded.
func (e *Engine) drive(ctx context.Context, state *core.WorkflowState, seq int64) (*core.WorkflowState, bool, error) {
	for {
		step, reasons := nextStep(state)

		switch step {
		case stepDone:
			return state, false, nil

		case stepSuspend:
			return state, true, nil

		case stepIntake:
			newSeq, failed, err := e.runNode(ctx, workflow.NewIntake(e.clock), state, seq)
			if err != nil {
				return nil, false, err
			}
			if failed {
				return state, false, nil
			}

			seq = newSeq

		case stepExtract:
			newSeq, failed, err := e.runNode(ctx, workflow.NewExtract(e.extractor, e.clock), state, seq)
			if err != nil {
				return nil, false, err
			}
			if failed {
				return state, false, nil
			}

			seq = newSeq

		case stepFinalize:
			return e.finalize(ctx, state, seq)

		case stepAwaitReview:
			return e.suspendForReview(ctx, state, seq, reasons)
		}
	}
}

// runNode executes one node under the engine's node protocol: execute with a
// timeout and panic recovery, publish the node's events, checkpoint, publish
// state_updated. Outcomes:
//
//   - (newSeq, false, nil): the node succeeded and its effect is persisted.
//   - (newSeq, true, nil): the node failed and the run was moved to
//     StatusError; the error checkpoint is persisted and the stream closed.
//   - (0, false, err): the caller's context ended or the store failed;
//     nothing new is persisted and the run continues from its last
//     checkpoint.
func (e *Engine) runNode(ctx context.Context, node workflow.Node, state *core.WorkflowState, expectedSeq int64) (int64, bool, error) {
	nodeCtx, span := e.tracer.Start(ctx, fmt.Sprintf("Node: %s", node.Name()), trace.WithAttributes(
		attribute.String(log.RunIDKey, state.RunID),
		attribute.String(log.NodeNameKey, node.Name()),
	))
	defer span.End()

	timer := im.NewTimer(e.metrics, metrickeys.NodeDuration, metrics.Tags{metrickeys.NodeName: node.Name()})
	defer timer.Stop()

	if e.options.NodeTimeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(nodeCtx, e.options.NodeTimeout)
		defer cancel()
	}

	events, err := e.executeNode(nodeCtx, node, state)

	if err != nil && ctx.Err() != nil {
		// The caller's context ended mid-node. Nothing is persisted, so the
		// run recovers from the previous checkpoint.
		return 0, false, err
	}

	if err != nil {
		return e.failRun(ctx, node.Name(), state, expectedSeq, err)
	}

	e.metrics.Counter(metrickeys.NodeExecuted, metrics.Tags{metrickeys.NodeName: node.Name()}, 1)

	for _, evt := range events {
		e.publish(state.RunID, node.Name(), evt)
	}

	seq, err := e.appendCheckpoint(ctx, state, expectedSeq)
	if err != nil {
		e.publishRunError(state.RunID, node.Name(), err.Error())
		return 0, false, err
	}

	e.publishStateUpdated(state, seq)

	return seq, false, nil
}

func (e *Engine) executeNode(ctx context.Context, node workflow.Node, state *core.WorkflowState) (events []*core.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := runerrors.FromPanic(r)

			e.logger.Error("Node panicked",
				log.RunIDKey, state.RunID,
				log.NodeNameKey, node.Name(),
				"error", pe,
				"stacktrace", pe.Stacktrace(),
			)

			err = pe
		}
	}()

	return node.Execute(ctx, state)
}

// failRun moves the run to StatusError, persists the error checkpoint, and
// closes the run's stream. A node failure is a terminal run outcome, not an
// engine error, so the caller gets failed=true and a nil error.
func (e *Engine) failRun(ctx context.Context, nodeName string, state *core.WorkflowState, expectedSeq int64, nodeErr error) (int64, bool, error) {
	now := e.clock.Now()

	if err := state.Transition(core.StatusError, now); err != nil {
		return 0, false, err
	}

	state.ErrorMessage = nodeErr.Error()
	state.AppendHistory(fmt.Sprintf("Node %s failed at %s: %s", nodeName, workflow.Timestamp(now), nodeErr.Error()))

	seq, err := e.appendCheckpoint(ctx, state, expectedSeq)
	if err != nil {
		e.publishRunError(state.RunID, nodeName, err.Error())
		return 0, false, err
	}

	e.publishStateUpdated(state, seq)
	e.publishRunError(state.RunID, nodeName, nodeErr.Error())
	e.hub.CloseRun(state.RunID)

	if err := e.store.RemovePendingReview(ctx, state.RunID); err != nil {
		e.logger.Error("Removing review queue entry failed", log.RunIDKey, state.RunID, "error", err)
	}

	e.metrics.Counter(metrickeys.RunFailed, metrics.Tags{metrickeys.NodeName: nodeName}, 1)
	e.logger.Error("Run failed", log.RunIDKey, state.RunID, log.NodeNameKey, nodeName, "error", nodeErr)

	return seq, true, nil
}

// finalize runs the finalize node, drops any stale review queue entry, and
// closes the run's stream with a run_finished event.
func (e *Engine) finalize(ctx context.Context, state *core.WorkflowState, seq int64) (*core.WorkflowState, bool, error) {
	node := workflow.NewFinalize(e.options.ResultWriter, e.clock, e.logger)

	_, failed, err := e.runNode(ctx, node, state, seq)
	if err != nil {
		return nil, false, err
	}
	if failed {
		return state, false, nil
	}

	if err := e.store.RemovePendingReview(ctx, state.RunID); err != nil {
		e.logger.Error("Removing review queue entry failed", log.RunIDKey, state.RunID, "error", err)
	}

	e.publish(state.RunID, "", core.NewEvent(core.EventRunFinished, map[string]any{
		"status": string(state.Status),
	}))
	e.hub.CloseRun(state.RunID)

	e.metrics.Counter(metrickeys.RunFinalized, metrics.Tags{}, 1)
	e.logger.Debug("Run finalized", log.RunIDKey, state.RunID, log.DecisionKey, "finalize", log.DocumentTypeKey, state.DocumentType)

	return state, false, nil
}

// suspendForReview runs the await-review node and files the run in the review
// queue. The queue entry is a derived projection of the checkpointed state;
// if writing it fails the run is still correctly suspended, so the failure is
// logged rather than returned.
func (e *Engine) suspendForReview(ctx context.Context, state *core.WorkflowState, seq int64, reasons []string) (*core.WorkflowState, bool, error) {
	node := workflow.NewAwaitReview(reasons, e.clock)

	_, failed, err := e.runNode(ctx, node, state, seq)
	if err != nil {
		return nil, false, err
	}
	if failed {
		return state, false, nil
	}

	entry := &core.ReviewQueueEntry{
		RunID:     state.RunID,
		Reason:    state.ReasonForReview,
		Priority:  validate.Priority(reasons),
		CreatedAt: e.clock.Now().UTC(),
	}

	if err := e.store.PutPendingReview(ctx, entry); err != nil {
		e.logger.Error("Writing review queue entry failed", log.RunIDKey, state.RunID, "error", err)
	}

	e.metrics.Counter(metrickeys.RunSuspended, metrics.Tags{}, 1)
	e.logger.Debug("Run suspended for review",
		log.RunIDKey, state.RunID,
		log.DecisionKey, "await_review",
		log.ReviewReasonKey, state.ReasonForReview,
		log.ReviewPriorityKey, entry.Priority,
	)

	return state, true, nil
}
