// Package engine drives document runs through the processing graph. It owns
// the loop that picks the next node from the persisted state, executes it,
// checkpoints the result, and publishes the run's events. Every decision is
// derived from the latest checkpoint, so a run can be interrupted at any
// point and continue on another engine instance backed by the same store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/extract"
	"github.com/docflowlabs/docflow/internal/metrickeys"
	im "github.com/docflowlabs/docflow/internal/metrics"
	"github.com/docflowlabs/docflow/log"
	"github.com/docflowlabs/docflow/metrics"
	"github.com/docflowlabs/docflow/stream"
	"go.opentelemetry.io/otel/trace"
)

type Engine struct {
	store     backend.Store
	extractor extract.Extractor

	options *Options

	logger  *slog.Logger
	metrics metrics.Client
	tracer  trace.Tracer
	clock   clock.Clock

	hub   *stream.Hub
	cache *stateCache
	locks *runLocks
}

// New creates an engine on top of the given checkpoint store and extraction
// capability. The engine does not take ownership of the store; the caller
// closes it after Close.
func New(store backend.Store, extractor extract.Extractor, opts ...Option) *Engine {
	options := ApplyOptions(opts...)

	hubOpts := []stream.HubOption{
		stream.WithLogger(options.Logger),
		stream.WithMetrics(options.Metrics),
		stream.WithTTL(options.StreamTTL),
	}
	if options.Sink != nil {
		hubOpts = append(hubOpts, stream.WithSink(options.Sink))
	}

	return &Engine{
		store:     store,
		extractor: extractor,
		options:   &options,
		logger:    options.Logger,
		metrics:   options.Metrics,
		tracer:    options.TracerProvider.Tracer(backend.TracerName),
		clock:     options.Clock,
		hub:       stream.NewHub(hubOpts...),
		cache:     newStateCache(options.Metrics, options.StateCacheSize, options.StateCacheTTL),
		locks:     newRunLocks(),
	}
}

// GetRun returns the latest persisted state of a run, or an error wrapping
// backend.ErrRunNotFound.
func (e *Engine) GetRun(ctx context.Context, runID string) (*core.WorkflowState, error) {
	if state := e.cache.get(runID); state != nil {
		return state, nil
	}

	cp, err := e.store.LatestCheckpoint(ctx, runID)
	if err != nil {
		if errors.Is(err, backend.ErrRunNotFound) {
			return nil, fmt.Errorf("getting run %s: %w", runID, err)
		}

		return nil, &PersistenceError{Op: "loading latest checkpoint", RunID: runID, Err: err}
	}

	e.cache.put(cp.State)

	return cp.State, nil
}

// History returns all checkpoints of a run in ascending sequence order.
func (e *Engine) History(ctx context.Context, runID string) ([]*core.Checkpoint, error) {
	cps, err := e.store.GetCheckpoints(ctx, runID)
	if err != nil {
		if errors.Is(err, backend.ErrRunNotFound) {
			return nil, fmt.Errorf("getting history of run %s: %w", runID, err)
		}

		return nil, &PersistenceError{Op: "loading checkpoints", RunID: runID, Err: err}
	}

	return cps, nil
}

// PendingReviews returns the review queue, oldest entry first.
func (e *Engine) PendingReviews(ctx context.Context) ([]*core.ReviewQueueEntry, error) {
	entries, err := e.store.PendingReviews(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "loading review queue", RunID: "", Err: err}
	}

	return entries, nil
}

// Subscribe attaches to a run's event stream. The subscription is valid
// before the run exists; events published later are delivered in order.
func (e *Engine) Subscribe(runID string) *stream.Subscription {
	return e.hub.Subscribe(runID)
}

// Stats returns counts about the underlying store.
func (e *Engine) Stats(ctx context.Context) (*backend.Stats, error) {
	return e.store.GetStats(ctx)
}

// Close releases the engine's in-process resources: the event hub and the
// state cache. In-flight operations are not interrupted; cancel their
// contexts first. The store stays open.
func (e *Engine) Close() {
	e.hub.Close()
	e.cache.stop()

	e.logger.Debug("Engine closed")
}

func (e *Engine) publish(runID, nodeName string, evt *core.Event) {
	evt.RunID = runID
	evt.Node = nodeName
	evt.Timestamp = e.clock.Now().UTC()

	e.hub.Publish(evt)
}

func (e *Engine) publishStateUpdated(state *core.WorkflowState, seq int64) {
	e.publish(state.RunID, "", core.NewEvent(core.EventStateUpdated, map[string]any{
		"sequence": seq,
		"status":   string(state.Status),
	}))
}

func (e *Engine) publishRunError(runID, nodeName, message string) {
	e.publish(runID, nodeName, core.NewEvent(core.EventRunError, map[string]any{
		"error": message,
	}))
}

// appendCheckpoint persists a snapshot, refreshes the state cache, and
// reports the new sequence number.
func (e *Engine) appendCheckpoint(ctx context.Context, state *core.WorkflowState, expectedSeq int64) (int64, error) {
	timer := im.NewTimer(e.metrics, metrickeys.CheckpointDuration, metrics.Tags{})
	defer timer.Stop()

	seq, err := e.store.AppendCheckpoint(ctx, state.RunID, state, expectedSeq)
	if err != nil {
		return 0, &PersistenceError{Op: "appending checkpoint", RunID: state.RunID, Err: err}
	}

	e.metrics.Counter(metrickeys.CheckpointAppended, metrics.Tags{}, 1)
	e.cache.put(state)

	e.logger.Debug("Appended checkpoint", log.RunIDKey, state.RunID, log.SequenceKey, seq, log.StatusKey, state.Status)

	return seq, nil
}
