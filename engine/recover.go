package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/internal/metrickeys"
	"github.com/docflowlabs/docflow/log"
	"github.com/docflowlabs/docflow/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Recover reloads a run from its latest checkpoint and continues driving it.
// A run that already finished returns immediately; a suspended run returns
// with the bool set, same as Run. Recovering after a crash replays no work:
// every completed node left a checkpoint, so the loop picks up at the first
// node that did not finish.
func (e *Engine) Recover(ctx context.Context, runID string) (*core.WorkflowState, bool, error) {
	ctx, span := e.tracer.Start(ctx, "Recover", trace.WithAttributes(
		attribute.String(log.RunIDKey, runID),
	))
	defer span.End()

	if !e.locks.tryAcquire(runID) {
		return nil, false, fmt.Errorf("recovering run %s: %w", runID, ErrRunBusy)
	}
	defer e.locks.release(runID)

	cp, err := e.store.LatestCheckpoint(ctx, runID)
	switch {
	case errors.Is(err, backend.ErrRunNotFound):
		return nil, false, fmt.Errorf("recovering run %s: %w", runID, err)
	case err != nil:
		return nil, false, &PersistenceError{Op: "loading latest checkpoint", RunID: runID, Err: err}
	}

	e.metrics.Counter(metrickeys.RunRecovered, metrics.Tags{}, 1)
	e.logger.Debug("Recovering run", log.RunIDKey, runID, log.StatusKey, cp.State.Status, log.SequenceKey, cp.Sequence)

	return e.drive(ctx, cp.State, cp.Sequence)
}

// RecoveredRun is the outcome of recovering one run during RecoverAll.
type RecoveredRun struct {
	RunID     string
	State     *core.WorkflowState
	Suspended bool
	Err       error
}

// RecoverAll recovers every run in the store, typically once at process
// start. Runs that are busy on this engine are skipped; per-run failures are
// reported in the result rather than aborting the sweep.
func (e *Engine) RecoverAll(ctx context.Context) ([]*RecoveredRun, error) {
	runIDs, err := e.store.ListRunIDs(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "listing runs", RunID: "", Err: err}
	}

	recovered := make([]*RecoveredRun, 0, len(runIDs))

	for _, runID := range runIDs {
		state, suspended, err := e.Recover(ctx, runID)
		if errors.Is(err, ErrRunBusy) {
			continue
		}

		recovered = append(recovered, &RecoveredRun{
			RunID:     runID,
			State:     state,
			Suspended: suspended,
			Err:       err,
		})
	}

	return recovered, nil
}
