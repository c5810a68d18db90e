package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/backend/memory"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/extract"
	"github.com/docflowlabs/docflow/stream"
	"github.com/stretchr/testify/require"
)

const (
	invoiceDoc   = "INVOICE #12345\nVendor: Acme Corp\nTotal Amount: $450.00"
	expensiveDoc = "INVOICE #99001\nVendor: BigSpend Ltd\nTotal Amount: $8,500.00"
	irateDoc     = "Support ticket from Dana Smith. This outage is unacceptable!"
)

type fixture struct {
	engine *Engine
	store  backend.Store
	clock  *clock.Mock
}

func newFixture(t *testing.T, extractor extract.Extractor, opts ...Option) *fixture {
	t.Helper()

	mc := clock.NewMock()
	mc.Set(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	store := memory.NewMemoryStore()

	opts = append([]Option{
		WithClock(mc),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)

	e := New(store, extractor, opts...)
	t.Cleanup(e.Close)

	return &fixture{engine: e, store: store, clock: mc}
}

// contentExtractor derives fields from the document the way the production
// extractor would, but deterministically.
func contentExtractor() extract.Extractor {
	return extract.ExtractorFunc(func(_ context.Context, documentContent string) (map[string]any, error) {
		switch {
		case strings.Contains(documentContent, "8,500"):
			return map[string]any{
				"vendor_name":  "BigSpend Ltd",
				"invoice_id":   "99001",
				"due_date":     "2024-04-01",
				"total_amount": "$8,500.00",
			}, nil
		case strings.Contains(documentContent, "INVOICE"):
			return map[string]any{
				"vendor_name":  "Acme Corp",
				"invoice_id":   "12345",
				"due_date":     "2024-04-01",
				"total_amount": "$450.00",
			}, nil
		default:
			return map[string]any{
				"customer_name": "Dana Smith",
				"email":         nil,
				"topic":         "Outage",
				"sentiment":     "Irate",
				"urgency":       "High",
			}, nil
		}
	})
}

func failingExtractor(err error) extract.Extractor {
	return extract.ExtractorFunc(func(context.Context, string) (map[string]any, error) {
		return nil, err
	})
}

// collectEvents drains the subscription until the stream closes.
func collectEvents(t *testing.T, sub *stream.Subscription) []*core.Event {
	t.Helper()

	var events []*core.Event
	timeout := time.After(5 * time.Second)

	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return events
			}

			events = append(events, evt)
		case <-timeout:
			t.Fatal("timed out waiting for the event stream to close")
		}
	}
}

// drainEvents reads exactly n events from a stream that stays open.
func drainEvents(t *testing.T, sub *stream.Subscription, n int) []*core.Event {
	t.Helper()

	events := make([]*core.Event, 0, n)

	for len(events) < n {
		select {
		case evt, ok := <-sub.C:
			require.True(t, ok, "stream closed after %d of %d events", len(events), n)
			events = append(events, evt)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}

	return events
}

func eventTypes(events []*core.Event) []core.EventType {
	types := make([]core.EventType, len(events))
	for i, evt := range events {
		types[i] = evt.Type
	}

	return types
}

func Test_Run_FinalizesCleanInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	sub := f.engine.Subscribe("run-1")
	defer sub.Cancel()

	state, suspended, err := f.engine.Run(ctx, invoiceDoc, WithRunID("run-1"))
	require.NoError(t, err)
	require.False(t, suspended)

	require.Equal(t, core.StatusFinalized, state.Status)
	require.Equal(t, core.DocumentTypeInvoice, state.DocumentType)
	require.Equal(t, "Acme Corp", state.ExtractedData["vendor_name"])
	require.Empty(t, state.ErrorMessage)
	require.Empty(t, state.ReasonForReview)

	require.Equal(t, []string{
		"Document received at 2024-03-01T10:00:00Z",
		"Data extracted at 2024-03-01T10:00:00Z",
		"Workflow finalized at 2024-03-01T10:00:00Z",
	}, state.History)

	cps, err := f.store.GetCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 4)

	statuses := make([]core.Status, len(cps))
	for i, cp := range cps {
		require.Equal(t, int64(i+1), cp.Sequence)
		statuses[i] = cp.State.Status
	}
	require.Equal(t, []core.Status{
		core.StatusReceived,
		core.StatusProcessing,
		core.StatusProcessing,
		core.StatusFinalized,
	}, statuses)

	require.Nil(t, cps[1].State.ExtractedData, "extraction lands in the third checkpoint")
	require.NotNil(t, cps[2].State.ExtractedData)

	events := collectEvents(t, sub)
	require.Equal(t, []core.EventType{
		core.EventRunStarted,
		core.EventProgress,
		core.EventProgress,
		core.EventStateUpdated,
		core.EventProgress,
		core.EventToolResult,
		core.EventStateUpdated,
		core.EventProgress,
		core.EventStateUpdated,
		core.EventRunFinished,
	}, eventTypes(events))

	for _, evt := range events {
		require.Equal(t, "run-1", evt.RunID)
		require.NotEmpty(t, evt.ID)
		require.False(t, evt.Timestamp.IsZero())
	}

	require.Empty(t, events[0].Node, "run_started is an engine level event")
	require.Equal(t, "intake", events[1].Node)
	require.Equal(t, "Processing document intake", events[1].Payload["message"])
	require.Equal(t, "Detected document type: invoice", events[2].Payload["message"])
	require.Equal(t, "extract", events[5].Node)
}

func Test_Run_DuplicateRunID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	_, _, err := f.engine.Run(ctx, invoiceDoc, WithRunID("run-1"))
	require.NoError(t, err)

	_, _, err = f.engine.Run(ctx, invoiceDoc, WithRunID("run-1"))
	require.ErrorIs(t, err, backend.ErrRunAlreadyExists)
}

func Test_Run_GeneratesRunID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	state, suspended, err := f.engine.Run(ctx, invoiceDoc)
	require.NoError(t, err)
	require.False(t, suspended)
	require.NotEmpty(t, state.RunID)
}

func Test_Run_SuspendsOverThresholdInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	sub := f.engine.Subscribe("run-1")
	defer sub.Cancel()

	state, suspended, err := f.engine.Run(ctx, expensiveDoc, WithRunID("run-1"))
	require.NoError(t, err)
	require.True(t, suspended)

	require.Equal(t, core.StatusPendingReview, state.Status)
	require.Equal(t, "Amount exceeds $1000 threshold", state.ReasonForReview)
	require.Equal(t,
		"Workflow paused for human review at 2024-03-01T10:00:00Z: Amount exceeds $1000 threshold",
		state.History[len(state.History)-1])

	entries, err := f.engine.PendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "run-1", entries[0].RunID)
	require.Equal(t, "Amount exceeds $1000 threshold", entries[0].Reason)
	require.Equal(t, core.PriorityHigh, entries[0].Priority)

	cps, err := f.store.GetCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 4)
	require.Equal(t, core.StatusPendingReview, cps[3].State.Status)

	// The stream stays open while the run is suspended.
	events := drainEvents(t, sub, 9)
	require.Equal(t, []core.EventType{
		core.EventRunStarted,
		core.EventProgress,
		core.EventProgress,
		core.EventStateUpdated,
		core.EventProgress,
		core.EventToolResult,
		core.EventStateUpdated,
		core.EventReviewRequired,
		core.EventStateUpdated,
	}, eventTypes(events))

	review := events[7]
	require.Equal(t, "await_review", review.Node)
	require.Equal(t, "Amount exceeds $1000 threshold", review.Payload["reason"])
	require.Equal(t, []string{"Amount exceeds $1000 threshold"}, review.Payload["reasons"])
	require.NotNil(t, review.Payload["extracted_data"])
}

func Test_Run_AbsorbsExtractionFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failingExtractor(errors.New("llm unavailable")))

	state, suspended, err := f.engine.Run(ctx, invoiceDoc, WithRunID("run-1"))
	require.NoError(t, err)
	require.True(t, suspended, "an extraction failure routes to review, not to a terminal error")

	require.Equal(t, core.StatusPendingReview, state.Status)
	require.Equal(t, map[string]any{"error": "llm unavailable"}, state.ExtractedData)
	require.Equal(t, "Missing or invalid extracted data", state.ReasonForReview)
	require.Contains(t, state.History, "Extraction failed at 2024-03-01T10:00:00Z: llm unavailable")

	entries, err := f.engine.PendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.PriorityNormal, entries[0].Priority)
}

func Test_Run_NodeTimeoutFailsRun(t *testing.T) {
	ctx := context.Background()

	blocked := extract.ExtractorFunc(func(ctx context.Context, _ string) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	f := newFixture(t, blocked, WithNodeTimeout(50*time.Millisecond))

	sub := f.engine.Subscribe("run-1")
	defer sub.Cancel()

	state, suspended, err := f.engine.Run(ctx, invoiceDoc, WithRunID("run-1"))
	require.NoError(t, err, "a node failure is a run outcome, not an engine error")
	require.False(t, suspended)

	require.Equal(t, core.StatusError, state.Status)
	require.Contains(t, state.ErrorMessage, "context deadline exceeded")
	require.Contains(t, state.History[len(state.History)-1], "Node extract failed at")

	cps, err := f.store.GetCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	require.Equal(t, core.StatusError, cps[2].State.Status)

	events := collectEvents(t, sub)
	types := eventTypes(events)
	require.Equal(t, core.EventRunError, types[len(types)-1])
}

func Test_Run_RecoversFromNodePanic(t *testing.T) {
	ctx := context.Background()

	angry := extract.ExtractorFunc(func(context.Context, string) (map[string]any, error) {
		panic("extractor exploded")
	})

	f := newFixture(t, angry)

	state, suspended, err := f.engine.Run(ctx, invoiceDoc, WithRunID("run-1"))
	require.NoError(t, err)
	require.False(t, suspended)

	require.Equal(t, core.StatusError, state.Status)
	require.Contains(t, state.ErrorMessage, "panic in node: extractor exploded")

	loaded, err := f.engine.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, core.StatusError, loaded.Status)
}

func Test_Run_CancellationLeavesCheckpointIntact(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cancelling := extract.ExtractorFunc(func(c context.Context, _ string) (map[string]any, error) {
		cancel()
		<-c.Done()
		return nil, c.Err()
	})

	f := newFixture(t, cancelling)

	_, _, err := f.engine.Run(ctx, invoiceDoc, WithRunID("run-1"))
	require.ErrorIs(t, err, context.Canceled)

	cp, err := f.store.LatestCheckpoint(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), cp.Sequence, "nothing is persisted for the interrupted node")
	require.Equal(t, core.StatusProcessing, cp.State.Status)
	require.Nil(t, cp.State.ExtractedData)

	// A second engine over the same store picks the run up where it stopped.
	e2 := New(f.store, contentExtractor(), WithClock(f.clock), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer e2.Close()

	state, suspended, err := e2.Recover(context.Background(), "run-1")
	require.NoError(t, err)
	require.False(t, suspended)
	require.Equal(t, core.StatusFinalized, state.Status)

	cps, err := f.store.GetCheckpoints(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 4)
}

func Test_GetRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	_, err := f.engine.GetRun(ctx, "missing")
	require.ErrorIs(t, err, backend.ErrRunNotFound)

	_, _, err = f.engine.Run(ctx, invoiceDoc, WithRunID("run-1"))
	require.NoError(t, err)

	first, err := f.engine.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, core.StatusFinalized, first.Status)

	// Mutating a returned state must not leak into later reads.
	first.ExtractedData["vendor_name"] = "tampered"

	second, err := f.engine.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", second.ExtractedData["vendor_name"])
}

func Test_History(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	_, err := f.engine.History(ctx, "missing")
	require.ErrorIs(t, err, backend.ErrRunNotFound)

	_, _, err = f.engine.Run(ctx, invoiceDoc, WithRunID("run-1"))
	require.NoError(t, err)

	cps, err := f.engine.History(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 4)

	for i, cp := range cps {
		require.Equal(t, int64(i+1), cp.Sequence)
		require.Equal(t, "run-1", cp.RunID)
	}
}

func Test_NextStep(t *testing.T) {
	received := core.NewWorkflowState("r", "doc", time.Now())

	processing := received.Clone()
	processing.Status = core.StatusProcessing

	extracted := processing.Clone()
	extracted.ExtractedData = map[string]any{
		"vendor_name":  "Acme",
		"invoice_id":   "1",
		"total_amount": "400",
	}

	invalid := processing.Clone()
	invalid.ExtractedData = map[string]any{
		"vendor_name":  "Acme",
		"invoice_id":   "1",
		"total_amount": "4000",
	}

	pending := invalid.Clone()
	pending.Status = core.StatusPendingReview

	finalized := extracted.Clone()
	finalized.Status = core.StatusFinalized

	failed := extracted.Clone()
	failed.Status = core.StatusError

	tests := []struct {
		name        string
		state       *core.WorkflowState
		wantStep    step
		wantReasons []string
	}{
		{"received runs intake", received, stepIntake, nil},
		{"processing without data runs extract", processing, stepExtract, nil},
		{"valid data finalizes", extracted, stepFinalize, nil},
		{"invalid data suspends", invalid, stepAwaitReview, []string{"Amount exceeds $1000 threshold"}},
		{"pending review suspends", pending, stepSuspend, nil},
		{"finalized is done", finalized, stepDone, nil},
		{"error is done", failed, stepDone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStep, gotReasons := nextStep(tt.state)
			require.Equal(t, tt.wantStep, gotStep)
			require.Equal(t, tt.wantReasons, gotReasons)
		})
	}
}
