package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/core"
	"github.com/stretchr/testify/require"
)

func Test_AwaitReview(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	reasons := []string{"Missing vendor name", "Amount exceeds $1000 threshold"}
	node := NewAwaitReview(reasons, mc)

	require.Equal(t, "await_review", node.Name())

	state := processingState(t, mc, "doc")
	state.ExtractedData = map[string]any{"total_amount": "$2,000"}

	events, err := node.Execute(context.Background(), state)
	require.NoError(t, err)

	require.Equal(t, core.StatusPendingReview, state.Status)
	require.Equal(t, "Missing vendor name; Amount exceeds $1000 threshold", state.ReasonForReview)
	require.Equal(t, []string{
		"Workflow paused for human review at 2024-03-01T10:00:00Z: Missing vendor name; Amount exceeds $1000 threshold",
	}, state.History)

	require.Len(t, events, 1)
	require.Equal(t, core.EventReviewRequired, events[0].Type)
	require.Equal(t, "Missing vendor name; Amount exceeds $1000 threshold", events[0].Payload["reason"])
	require.Equal(t, reasons, events[0].Payload["reasons"])
	require.Equal(t, state.ExtractedData, events[0].Payload["extracted_data"])
}

func Test_AwaitReview_NoReasonsFallback(t *testing.T) {
	mc := clock.NewMock()

	state := processingState(t, mc, "doc")

	_, err := NewAwaitReview(nil, mc).Execute(context.Background(), state)
	require.NoError(t, err)

	require.Equal(t, "Unknown validation issue", state.ReasonForReview)
}

func Test_AwaitReview_SelfLoopFromPendingReview(t *testing.T) {
	mc := clock.NewMock()

	state := processingState(t, mc, "doc")
	require.NoError(t, state.Transition(core.StatusPendingReview, mc.Now()))

	_, err := NewAwaitReview([]string{"Missing invoice ID"}, mc).Execute(context.Background(), state)
	require.NoError(t, err)

	require.Equal(t, core.StatusPendingReview, state.Status)
	require.Equal(t, "Missing invoice ID", state.ReasonForReview)
}
