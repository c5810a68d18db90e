package test

import (
	"context"
	"testing"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// StoreTest runs the conformance suite shared by all store implementations.
// setup must return an empty store; teardown, if given, is called after each
// subtest.
func StoreTest(t *testing.T, setup func() backend.Store, teardown func(s backend.Store)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, s backend.Store)
	}{
		{
			name: "AppendCheckpoint_FirstReturnsSequenceOne",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()

				seq, err := s.AppendCheckpoint(ctx, runID, testState(runID), 0)
				require.NoError(t, err)
				require.Equal(t, int64(1), seq)
			},
		},
		{
			name: "AppendCheckpoint_SequencesAreDense",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()
				state := testState(runID)

				for want := int64(1); want <= 4; want++ {
					seq, err := s.AppendCheckpoint(ctx, runID, state, want-1)
					require.NoError(t, err)
					require.Equal(t, want, seq)
				}
			},
		},
		{
			name: "AppendCheckpoint_ExistingRunErrorsWhenExpectingNone",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()

				_, err := s.AppendCheckpoint(ctx, runID, testState(runID), 0)
				require.NoError(t, err)

				_, err = s.AppendCheckpoint(ctx, runID, testState(runID), 0)
				require.ErrorIs(t, err, backend.ErrRunAlreadyExists)
			},
		},
		{
			name: "AppendCheckpoint_StaleSequenceErrors",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()
				state := testState(runID)

				_, err := s.AppendCheckpoint(ctx, runID, state, 0)
				require.NoError(t, err)
				_, err = s.AppendCheckpoint(ctx, runID, state, 1)
				require.NoError(t, err)

				// stale writer still believes sequence 1 is latest
				_, err = s.AppendCheckpoint(ctx, runID, state, 1)
				require.ErrorIs(t, err, backend.ErrSequenceConflict)

				cp, err := s.LatestCheckpoint(ctx, runID)
				require.NoError(t, err)
				require.Equal(t, int64(2), cp.Sequence, "conflicting append must not write")
			},
		},
		{
			name: "AppendCheckpoint_RoundTripsFullState",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()

				state := testState(runID)
				state.Status = core.StatusPendingReview
				state.DocumentType = core.DocumentTypeInvoice
				state.ExtractedData = map[string]any{
					"vendor_name":  "Acme Corp",
					"invoice_id":   "INV-001",
					"total_amount": "$1,500.00",
					"line_items":   []any{map[string]any{"description": "Widgets", "amount": 1500.0}},
				}
				state.ReasonForReview = "Amount exceeds $1000 threshold"
				state.AppendHistory("Document received at 2024-03-01T12:00:00Z")
				state.AppendHistory("Data extracted at 2024-03-01T12:00:01Z")

				_, err := s.AppendCheckpoint(ctx, runID, state, 0)
				require.NoError(t, err)

				cp, err := s.LatestCheckpoint(ctx, runID)
				require.NoError(t, err)

				got := cp.State
				require.Equal(t, runID, got.RunID)
				require.Equal(t, state.DocumentContent, got.DocumentContent)
				require.Equal(t, core.DocumentTypeInvoice, got.DocumentType)
				require.Equal(t, core.StatusPendingReview, got.Status)
				require.Equal(t, "Acme Corp", got.ExtractedData["vendor_name"])
				require.Equal(t, "$1,500.00", got.ExtractedData["total_amount"])
				require.Equal(t, state.ReasonForReview, got.ReasonForReview)
				require.Equal(t, state.History, got.History)
				require.True(t, state.UpdatedAt.Equal(got.UpdatedAt))
				require.False(t, cp.CreatedAt.IsZero())
			},
		},
		{
			name: "LatestCheckpoint_UnknownRunErrors",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				_, err := s.LatestCheckpoint(ctx, uuid.NewString())
				require.ErrorIs(t, err, backend.ErrRunNotFound)
			},
		},
		{
			name: "LatestCheckpoint_ReturnsHighestSequence",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()

				first := testState(runID)
				first.Status = core.StatusReceived
				_, err := s.AppendCheckpoint(ctx, runID, first, 0)
				require.NoError(t, err)

				second := testState(runID)
				second.Status = core.StatusProcessing
				_, err = s.AppendCheckpoint(ctx, runID, second, 1)
				require.NoError(t, err)

				cp, err := s.LatestCheckpoint(ctx, runID)
				require.NoError(t, err)
				require.Equal(t, int64(2), cp.Sequence)
				require.Equal(t, core.StatusProcessing, cp.State.Status)
			},
		},
		{
			name: "GetCheckpoints_AscendingOrder",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()
				state := testState(runID)

				for i := int64(0); i < 3; i++ {
					_, err := s.AppendCheckpoint(ctx, runID, state, i)
					require.NoError(t, err)
				}

				cps, err := s.GetCheckpoints(ctx, runID)
				require.NoError(t, err)
				require.Len(t, cps, 3)
				for i, cp := range cps {
					require.Equal(t, int64(i+1), cp.Sequence)
					require.Equal(t, runID, cp.RunID)
				}
			},
		},
		{
			name: "GetCheckpoints_UnknownRunErrors",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				_, err := s.GetCheckpoints(ctx, uuid.NewString())
				require.ErrorIs(t, err, backend.ErrRunNotFound)
			},
		},
		{
			name: "ListRunIDs_ReturnsAllRuns",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				first := uuid.NewString()
				second := uuid.NewString()

				_, err := s.AppendCheckpoint(ctx, first, testState(first), 0)
				require.NoError(t, err)
				_, err = s.AppendCheckpoint(ctx, second, testState(second), 0)
				require.NoError(t, err)

				ids, err := s.ListRunIDs(ctx)
				require.NoError(t, err)
				require.Contains(t, ids, first)
				require.Contains(t, ids, second)
			},
		},
		{
			name: "ConcurrentAppends_DifferentRunsAllSucceed",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				var g errgroup.Group

				runIDs := make([]string, 8)
				for i := range runIDs {
					runIDs[i] = uuid.NewString()
				}

				for _, runID := range runIDs {
					g.Go(func() error {
						state := testState(runID)
						for i := int64(0); i < 3; i++ {
							if _, err := s.AppendCheckpoint(ctx, runID, state, i); err != nil {
								return err
							}
						}
						return nil
					})
				}

				require.NoError(t, g.Wait())

				for _, runID := range runIDs {
					cp, err := s.LatestCheckpoint(ctx, runID)
					require.NoError(t, err)
					require.Equal(t, int64(3), cp.Sequence)
				}
			},
		},
		{
			name: "PutPendingReview_Listed",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()

				err := s.PutPendingReview(ctx, &core.ReviewQueueEntry{
					RunID:     runID,
					Reason:    "Missing vendor name",
					Priority:  core.PriorityNormal,
					CreatedAt: time.Now().UTC(),
				})
				require.NoError(t, err)

				entries, err := s.PendingReviews(ctx)
				require.NoError(t, err)
				require.Len(t, entries, 1)
				require.Equal(t, runID, entries[0].RunID)
				require.Equal(t, "Missing vendor name", entries[0].Reason)
				require.Equal(t, core.PriorityNormal, entries[0].Priority)
			},
		},
		{
			name: "PutPendingReview_OverwritesExisting",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()
				now := time.Now().UTC()

				err := s.PutPendingReview(ctx, &core.ReviewQueueEntry{
					RunID: runID, Reason: "Missing vendor name", Priority: core.PriorityNormal, CreatedAt: now,
				})
				require.NoError(t, err)

				err = s.PutPendingReview(ctx, &core.ReviewQueueEntry{
					RunID: runID, Reason: "Amount exceeds $1000 threshold", Priority: core.PriorityHigh, CreatedAt: now,
				})
				require.NoError(t, err)

				entries, err := s.PendingReviews(ctx)
				require.NoError(t, err)
				require.Len(t, entries, 1)
				require.Equal(t, "Amount exceeds $1000 threshold", entries[0].Reason)
				require.Equal(t, core.PriorityHigh, entries[0].Priority)
			},
		},
		{
			name: "RemovePendingReview_Removes",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()

				err := s.PutPendingReview(ctx, &core.ReviewQueueEntry{
					RunID: runID, Reason: "Missing invoice ID", Priority: core.PriorityNormal, CreatedAt: time.Now().UTC(),
				})
				require.NoError(t, err)

				require.NoError(t, s.RemovePendingReview(ctx, runID))

				entries, err := s.PendingReviews(ctx)
				require.NoError(t, err)
				require.Empty(t, entries)
			},
		},
		{
			name: "RemovePendingReview_AbsentIsNoError",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				require.NoError(t, s.RemovePendingReview(ctx, uuid.NewString()))
			},
		},
		{
			name: "PendingReviews_OldestFirst",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				base := time.Now().UTC().Truncate(time.Second)

				newest := uuid.NewString()
				oldest := uuid.NewString()
				middle := uuid.NewString()

				for _, e := range []*core.ReviewQueueEntry{
					{RunID: newest, Reason: "r", Priority: core.PriorityNormal, CreatedAt: base.Add(2 * time.Second)},
					{RunID: oldest, Reason: "r", Priority: core.PriorityNormal, CreatedAt: base},
					{RunID: middle, Reason: "r", Priority: core.PriorityNormal, CreatedAt: base.Add(time.Second)},
				} {
					require.NoError(t, s.PutPendingReview(ctx, e))
				}

				entries, err := s.PendingReviews(ctx)
				require.NoError(t, err)
				require.Len(t, entries, 3)
				require.Equal(t, oldest, entries[0].RunID)
				require.Equal(t, middle, entries[1].RunID)
				require.Equal(t, newest, entries[2].RunID)
			},
		},
		{
			name: "GetStats_Counts",
			f: func(t *testing.T, ctx context.Context, s backend.Store) {
				runID := uuid.NewString()
				state := testState(runID)

				_, err := s.AppendCheckpoint(ctx, runID, state, 0)
				require.NoError(t, err)
				_, err = s.AppendCheckpoint(ctx, runID, state, 1)
				require.NoError(t, err)

				other := uuid.NewString()
				_, err = s.AppendCheckpoint(ctx, other, testState(other), 0)
				require.NoError(t, err)

				require.NoError(t, s.PutPendingReview(ctx, &core.ReviewQueueEntry{
					RunID: runID, Reason: "r", Priority: core.PriorityNormal, CreatedAt: time.Now().UTC(),
				}))

				stats, err := s.GetStats(ctx)
				require.NoError(t, err)
				require.Equal(t, int64(2), stats.Runs)
				require.Equal(t, int64(3), stats.Checkpoints)
				require.Equal(t, int64(1), stats.PendingReviews)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup()
			ctx := context.Background()
			tt.f(t, ctx, s)
			if teardown != nil {
				teardown(s)
			}
		})
	}
}

func testState(runID string) *core.WorkflowState {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	state := core.NewWorkflowState(runID, "INVOICE #1\nVendor: Acme Corp\nTotal: $42.00", now)
	state.AppendHistory("Document received at " + now.Format(time.RFC3339))

	return state
}
