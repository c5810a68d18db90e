// Package tester is a self-contained harness for testing document workflows
// without a real store or extraction backend. It drives an engine over an
// in-memory store with a simulated clock and a scripted extractor, and
// exposes assertion helpers for the common run outcomes.
package tester

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/backend/memory"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/engine"
	"github.com/docflowlabs/docflow/stream"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type options struct {
	engineOptions []engine.Option
}

type Option func(*options)

// WithEngineOptions forwards options to the harness engine, for instance a
// post-review node or a node timeout.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOptions = append(o.engineOptions, opts...)
	}
}

// RunTester drives a single document run through a test engine.
type RunTester struct {
	t *testing.T

	engine    *engine.Engine
	store     backend.Store
	clock     *clock.Mock
	extractor *scriptedExtractor

	runID string
	sub   *stream.Subscription

	state     *core.WorkflowState
	suspended bool
	err       error
}

// NewRunTester creates a harness with an in-memory store and a simulated
// clock starting at a fixed instant.
func NewRunTester(t *testing.T, opts ...Option) *RunTester {
	t.Helper()

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	mc := clock.NewMock()
	mc.Set(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))

	extractor := &scriptedExtractor{}
	store := memory.NewMemoryStore()

	engineOpts := append([]engine.Option{engine.WithClock(mc)}, o.engineOptions...)

	e := engine.New(store, extractor, engineOpts...)
	t.Cleanup(e.Close)

	runID := uuid.NewString()

	return &RunTester{
		t:         t,
		engine:    e,
		store:     store,
		clock:     mc,
		extractor: extractor,
		runID:     runID,
		sub:       e.Subscribe(runID),
	}
}

// Now returns the current time of the simulated clock.
func (rt *RunTester) Now() time.Time {
	return rt.clock.Now()
}

// AdvanceTime moves the simulated clock forward.
func (rt *RunTester) AdvanceTime(d time.Duration) {
	rt.clock.Add(d)
}

// ScriptExtraction scripts the next extraction result. Calls queue up in
// order; an unscripted extraction fails, which routes the run to review.
func (rt *RunTester) ScriptExtraction(fields map[string]any, err error) {
	rt.extractor.push(fields, err)
}

// RunID returns the ID of the run under test.
func (rt *RunTester) RunID() string {
	return rt.runID
}

// Execute starts the run with the given document and drives it until it
// settles.
func (rt *RunTester) Execute(documentContent string) {
	rt.t.Helper()

	rt.state, rt.suspended, rt.err = rt.engine.Run(context.Background(), documentContent, engine.WithRunID(rt.runID))
}

// ResumeWith continues the suspended run with the reviewer's corrections.
func (rt *RunTester) ResumeWith(corrections map[string]any) {
	rt.t.Helper()

	rt.state, rt.suspended, rt.err = rt.engine.Resume(context.Background(), rt.runID, corrections)
}

// Reject ends the suspended run with a rejection.
func (rt *RunTester) Reject() {
	rt.t.Helper()

	rt.state, rt.err = rt.engine.Reject(context.Background(), rt.runID)
	rt.suspended = false
}

// State returns the run state recorded by the last operation.
func (rt *RunTester) State() *core.WorkflowState {
	return rt.state
}

// Err returns the error recorded by the last operation.
func (rt *RunTester) Err() error {
	return rt.err
}

// Events drains the events delivered so far. It returns once the stream
// closes or no further event arrives within a short quiet window.
func (rt *RunTester) Events() []*core.Event {
	var events []*core.Event

	for {
		select {
		case evt, ok := <-rt.sub.C:
			if !ok {
				return events
			}

			events = append(events, evt)
		case <-time.After(200 * time.Millisecond):
			return events
		}
	}
}

// PendingReviews returns the store's review queue.
func (rt *RunTester) PendingReviews() []*core.ReviewQueueEntry {
	rt.t.Helper()

	entries, err := rt.engine.PendingReviews(context.Background())
	require.NoError(rt.t, err)

	return entries
}

// Checkpoints returns all checkpoints persisted for the run.
func (rt *RunTester) Checkpoints() []*core.Checkpoint {
	rt.t.Helper()

	cps, err := rt.store.GetCheckpoints(context.Background(), rt.runID)
	require.NoError(rt.t, err)

	return cps
}

// AssertFinalized fails the test unless the run finalized cleanly.
func (rt *RunTester) AssertFinalized() {
	rt.t.Helper()

	require.NoError(rt.t, rt.err)
	require.False(rt.t, rt.suspended, "run is suspended, not finalized")
	require.NotNil(rt.t, rt.state)
	require.Equal(rt.t, core.StatusFinalized, rt.state.Status)
}

// AssertPendingReview fails the test unless the run is suspended. When
// reasons are given, they must match the recorded review reason in order.
func (rt *RunTester) AssertPendingReview(reasons ...string) {
	rt.t.Helper()

	require.NoError(rt.t, rt.err)
	require.True(rt.t, rt.suspended, "run is not suspended")
	require.NotNil(rt.t, rt.state)
	require.Equal(rt.t, core.StatusPendingReview, rt.state.Status)

	if len(reasons) > 0 {
		require.Equal(rt.t, strings.Join(reasons, "; "), rt.state.ReasonForReview)
	}
}

// AssertError fails the test unless the run ended in StatusError with the
// given message fragment.
func (rt *RunTester) AssertError(contains string) {
	rt.t.Helper()

	require.NoError(rt.t, rt.err)
	require.NotNil(rt.t, rt.state)
	require.Equal(rt.t, core.StatusError, rt.state.Status)
	require.Contains(rt.t, rt.state.ErrorMessage, contains)
}

type scriptedResult struct {
	fields map[string]any
	err    error
}

// scriptedExtractor replays queued results in FIFO order.
type scriptedExtractor struct {
	mu    sync.Mutex
	queue []scriptedResult
}

func (s *scriptedExtractor) push(fields map[string]any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, scriptedResult{fields: fields, err: err})
}

func (s *scriptedExtractor) Extract(context.Context, string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, errors.New("no extraction scripted")
	}

	next := s.queue[0]
	s.queue = s.queue[1:]

	return next.fields, next.err
}
