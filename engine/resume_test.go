package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/workflow"
	"github.com/stretchr/testify/require"
)

func Test_Resume_WithCorrectionsFinalizes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	sub := f.engine.Subscribe("run-1")
	defer sub.Cancel()

	_, suspended, err := f.engine.Run(ctx, expensiveDoc, WithRunID("run-1"))
	require.NoError(t, err)
	require.True(t, suspended)

	drainEvents(t, sub, 9)

	f.clock.Add(5 * time.Minute)

	state, suspended, err := f.engine.Resume(ctx, "run-1", map[string]any{
		"total_amount": "$950.00",
	})
	require.NoError(t, err)
	require.False(t, suspended)

	require.Equal(t, core.StatusFinalized, state.Status)
	require.Equal(t, "$950.00", state.ExtractedData["total_amount"])
	require.Equal(t, "BigSpend Ltd", state.ExtractedData["vendor_name"], "untouched fields survive the merge")

	require.Equal(t, []string{
		"Document received at 2024-03-01T10:00:00Z",
		"Data extracted at 2024-03-01T10:00:00Z",
		"Workflow paused for human review at 2024-03-01T10:00:00Z: Amount exceeds $1000 threshold",
		"Human review completed at 2024-03-01T10:05:00Z",
		"Workflow finalized at 2024-03-01T10:05:00Z",
	}, state.History)

	entries, err := f.engine.PendingReviews(ctx)
	require.NoError(t, err)
	require.Empty(t, entries, "finalizing removes the review queue entry")

	cps, err := f.store.GetCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 6)
	require.Equal(t, core.StatusPendingReview, cps[4].State.Status, "the merge is persisted before validation re-runs")
	require.Equal(t, "$950.00", cps[4].State.ExtractedData["total_amount"])
	require.Equal(t, core.StatusFinalized, cps[5].State.Status)

	events := collectEvents(t, sub)
	require.Equal(t, []core.EventType{
		core.EventStateUpdated,
		core.EventProgress,
		core.EventStateUpdated,
		core.EventRunFinished,
	}, eventTypes(events))
}

func Test_Resume_StillInvalidSuspendsAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	_, suspended, err := f.engine.Run(ctx, irateDoc, WithRunID("run-1"))
	require.NoError(t, err)
	require.True(t, suspended)

	f.clock.Add(time.Minute)

	// The correction does not address the sentiment finding.
	state, suspended, err := f.engine.Resume(ctx, "run-1", map[string]any{
		"email": "dana@example.com",
	})
	require.NoError(t, err)
	require.True(t, suspended)

	require.Equal(t, core.StatusPendingReview, state.Status)
	require.Equal(t, "Customer sentiment is irate", state.ReasonForReview)
	require.Equal(t, "dana@example.com", state.ExtractedData["email"])

	require.Equal(t, []string{
		"Document received at 2024-03-01T10:00:00Z",
		"Data extracted at 2024-03-01T10:00:00Z",
		"Workflow paused for human review at 2024-03-01T10:00:00Z: Customer sentiment is irate",
		"Human review completed at 2024-03-01T10:01:00Z",
		"Workflow paused for human review at 2024-03-01T10:01:00Z: Customer sentiment is irate",
	}, state.History)

	entries, err := f.engine.PendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC), entries[0].CreatedAt)

	cps, err := f.store.GetCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 6)
}

func Test_Resume_WithoutCorrectionsAddsOneHistoryEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	before, suspended, err := f.engine.Run(ctx, irateDoc, WithRunID("run-1"))
	require.NoError(t, err)
	require.True(t, suspended)
	require.Len(t, before.History, 3)

	state, suspended, err := f.engine.Resume(ctx, "run-1", nil)
	require.NoError(t, err)
	require.True(t, suspended)

	require.Len(t, state.History, 4, "a no-op resume records exactly the new suspension")
	require.NotContains(t, state.History, "Human review completed at 2024-03-01T10:00:00Z")

	cps, err := f.store.GetCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 5, "no merge checkpoint without corrections")
}

func Test_Resume_ErrorConditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	_, _, err := f.engine.Resume(ctx, "missing", nil)
	require.ErrorIs(t, err, backend.ErrRunNotFound)

	var re *ResumeError
	require.ErrorAs(t, err, &re)
	require.Equal(t, "missing", re.RunID)

	_, _, err = f.engine.Run(ctx, invoiceDoc, WithRunID("done"))
	require.NoError(t, err)

	_, _, err = f.engine.Resume(ctx, "done", nil)
	require.ErrorIs(t, err, ErrNotPendingReview)
}

// stampNode is a post-review step that annotates the state without changing
// its status.
type stampNode struct {
	clock clock.Clock
	calls int
}

func (n *stampNode) Name() string {
	return "approval_stamp"
}

func (n *stampNode) Execute(_ context.Context, state *core.WorkflowState) ([]*core.Event, error) {
	n.calls++

	state.ExtractedData["approved_by"] = "reviewer"
	state.AppendHistory(fmt.Sprintf("Approval recorded at %s", workflow.Timestamp(n.clock.Now())))
	state.Touch(n.clock.Now())

	return []*core.Event{
		core.NewEvent(core.EventProgress, map[string]any{"message": "Approval recorded"}),
	}, nil
}

func Test_Resume_RunsPostReviewNode(t *testing.T) {
	ctx := context.Background()

	mc := clock.NewMock()
	mc.Set(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	node := &stampNode{clock: mc}
	f := newFixture(t, contentExtractor(), WithClock(mc), WithPostReviewNode(node))

	_, suspended, err := f.engine.Run(ctx, irateDoc, WithRunID("run-1"))
	require.NoError(t, err)
	require.True(t, suspended)

	// A resume that still fails validation must not reach the node.
	_, suspended, err = f.engine.Resume(ctx, "run-1", nil)
	require.NoError(t, err)
	require.True(t, suspended)
	require.Zero(t, node.calls)

	state, suspended, err := f.engine.Resume(ctx, "run-1", map[string]any{
		"sentiment": "Neutral",
		"email":     "dana@example.com",
	})
	require.NoError(t, err)
	require.False(t, suspended)
	require.Equal(t, 1, node.calls)

	require.Equal(t, core.StatusFinalized, state.Status)
	require.Equal(t, "reviewer", state.ExtractedData["approved_by"])
	require.Contains(t, state.History, "Approval recorded at 2024-03-01T10:00:00Z")

	cps, err := f.store.GetCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 8, "the post-review step writes its own checkpoint")
}

func Test_Reject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	sub := f.engine.Subscribe("run-1")
	defer sub.Cancel()

	_, suspended, err := f.engine.Run(ctx, expensiveDoc, WithRunID("run-1"))
	require.NoError(t, err)
	require.True(t, suspended)

	drainEvents(t, sub, 9)

	f.clock.Add(2 * time.Minute)

	state, err := f.engine.Reject(ctx, "run-1")
	require.NoError(t, err)

	require.Equal(t, core.StatusError, state.Status)
	require.Equal(t, "Rejected by human reviewer", state.ErrorMessage)
	require.Equal(t,
		"Run rejected by human reviewer at 2024-03-01T10:02:00Z",
		state.History[len(state.History)-1])

	entries, err := f.engine.PendingReviews(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	cps, err := f.store.GetCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 5)

	events := collectEvents(t, sub)
	require.Equal(t, []core.EventType{
		core.EventStateUpdated,
		core.EventRunError,
	}, eventTypes(events))
	require.Equal(t, "Rejected by human reviewer", events[1].Payload["error"])

	// Terminal runs cannot be rejected again.
	_, err = f.engine.Reject(ctx, "run-1")
	require.ErrorIs(t, err, ErrNotPendingReview)

	_, err = f.engine.Reject(ctx, "missing")
	require.ErrorIs(t, err, backend.ErrRunNotFound)
}
