package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/backend/memory"
	"github.com/docflowlabs/docflow/core"
	"github.com/stretchr/testify/require"
)

// flakyStore wraps a store and fails checkpoint appends after a set number
// of successful writes, simulating a crash mid-run.
type flakyStore struct {
	backend.Store

	mu        sync.Mutex
	remaining int
	healthy   bool
}

func newFlakyStore(inner backend.Store, successfulAppends int) *flakyStore {
	return &flakyStore{Store: inner, remaining: successfulAppends}
}

func (s *flakyStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.healthy = true
}

func (s *flakyStore) AppendCheckpoint(ctx context.Context, runID string, state *core.WorkflowState, expectedSeq int64) (int64, error) {
	s.mu.Lock()
	if !s.healthy {
		if s.remaining == 0 {
			s.mu.Unlock()
			return 0, errors.New("disk full")
		}

		s.remaining--
	}
	s.mu.Unlock()

	return s.Store.AppendCheckpoint(ctx, runID, state, expectedSeq)
}

func Test_Recover_ContinuesAfterPersistenceFailure(t *testing.T) {
	ctx := context.Background()

	mc := clock.NewMock()
	mc.Set(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Two appends succeed (initial checkpoint and intake), then the
	// extraction checkpoint fails.
	store := newFlakyStore(memory.NewMemoryStore(), 2)
	e := New(store, contentExtractor(), WithClock(mc), WithLogger(quiet))
	defer e.Close()

	_, _, err := e.Run(ctx, invoiceDoc, WithRunID("run-crash"))

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "appending checkpoint", pe.Op)
	require.Equal(t, "run-crash", pe.RunID)

	cp, err := store.LatestCheckpoint(ctx, "run-crash")
	require.NoError(t, err)
	require.Equal(t, int64(2), cp.Sequence)
	require.Nil(t, cp.State.ExtractedData, "the failed node left no checkpoint")

	store.heal()

	state, suspended, err := e.Recover(ctx, "run-crash")
	require.NoError(t, err)
	require.False(t, suspended)
	require.Equal(t, core.StatusFinalized, state.Status)

	// The recovered run is indistinguishable from one that never crashed.
	control := newFixture(t, contentExtractor())
	want, _, err := control.engine.Run(ctx, invoiceDoc, WithRunID("run-crash"))
	require.NoError(t, err)

	require.Equal(t, want.Status, state.Status)
	require.Equal(t, want.History, state.History)
	require.Equal(t, want.ExtractedData, state.ExtractedData)
}

func Test_Recover_TerminalRunReturnsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	_, _, err := f.engine.Run(ctx, invoiceDoc, WithRunID("run-1"))
	require.NoError(t, err)

	state, suspended, err := f.engine.Recover(ctx, "run-1")
	require.NoError(t, err)
	require.False(t, suspended)
	require.Equal(t, core.StatusFinalized, state.Status)

	cps, err := f.store.GetCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 4, "recovering a finished run writes nothing")
}

func Test_Recover_SuspendedRunStaysSuspended(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	_, suspended, err := f.engine.Run(ctx, expensiveDoc, WithRunID("run-1"))
	require.NoError(t, err)
	require.True(t, suspended)

	state, suspended, err := f.engine.Recover(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, suspended)
	require.Equal(t, core.StatusPendingReview, state.Status)

	cps, err := f.store.GetCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 4)

	entries, err := f.engine.PendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func Test_Recover_UnknownRun(t *testing.T) {
	f := newFixture(t, contentExtractor())

	_, _, err := f.engine.Recover(context.Background(), "missing")
	require.ErrorIs(t, err, backend.ErrRunNotFound)
}

func Test_RecoverAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	_, _, err := f.engine.Run(ctx, invoiceDoc, WithRunID("a-finalized"))
	require.NoError(t, err)

	_, suspended, err := f.engine.Run(ctx, expensiveDoc, WithRunID("b-suspended"))
	require.NoError(t, err)
	require.True(t, suspended)

	// A run that crashed right after submission has only its initial
	// checkpoint.
	stuck := core.NewWorkflowState("c-stuck", invoiceDoc, f.clock.Now())
	_, err = f.store.AppendCheckpoint(ctx, "c-stuck", stuck, 0)
	require.NoError(t, err)

	recovered, err := f.engine.RecoverAll(ctx)
	require.NoError(t, err)
	require.Len(t, recovered, 3)

	require.Equal(t, "a-finalized", recovered[0].RunID)
	require.NoError(t, recovered[0].Err)
	require.False(t, recovered[0].Suspended)
	require.Equal(t, core.StatusFinalized, recovered[0].State.Status)

	require.Equal(t, "b-suspended", recovered[1].RunID)
	require.True(t, recovered[1].Suspended)
	require.Equal(t, core.StatusPendingReview, recovered[1].State.Status)

	require.Equal(t, "c-stuck", recovered[2].RunID)
	require.False(t, recovered[2].Suspended)
	require.Equal(t, core.StatusFinalized, recovered[2].State.Status, "the stuck run is driven to completion")

	cps, err := f.store.GetCheckpoints(ctx, "c-stuck")
	require.NoError(t, err)
	require.Len(t, cps, 4)
}

func Test_RecoverAll_SkipsBusyRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, contentExtractor())

	_, _, err := f.engine.Run(ctx, invoiceDoc, WithRunID("a-idle"))
	require.NoError(t, err)

	_, _, err = f.engine.Run(ctx, invoiceDoc, WithRunID("b-busy"))
	require.NoError(t, err)

	require.True(t, f.engine.locks.tryAcquire("b-busy"))
	defer f.engine.locks.release("b-busy")

	recovered, err := f.engine.RecoverAll(ctx)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, "a-idle", recovered[0].RunID)
}
