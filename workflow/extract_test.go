package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/extract"
	"github.com/stretchr/testify/require"
)

func processingState(t *testing.T, mc *clock.Mock, content string) *core.WorkflowState {
	t.Helper()

	state := core.NewWorkflowState("run-1", content, mc.Now())
	require.NoError(t, state.Transition(core.StatusProcessing, mc.Now()))

	return state
}

func Test_Extract_Success(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	fields := map[string]any{"vendor_name": "Acme Corp", "total_amount": "100"}
	node := NewExtract(extract.ExtractorFunc(func(_ context.Context, content string) (map[string]any, error) {
		require.Equal(t, "some invoice", content)
		return fields, nil
	}), mc)

	require.Equal(t, "extract", node.Name())

	state := processingState(t, mc, "some invoice")

	events, err := node.Execute(context.Background(), state)
	require.NoError(t, err)

	require.Equal(t, fields, state.ExtractedData)
	require.Equal(t, core.StatusProcessing, state.Status)
	require.Equal(t, []string{"Data extracted at 2024-03-01T10:00:00Z"}, state.History)

	require.Len(t, events, 2)
	require.Equal(t, core.EventProgress, events[0].Type)
	require.Equal(t, core.EventToolResult, events[1].Type)
	require.Equal(t, fields, events[1].Payload["fields"])
}

func Test_Extract_FailureIsAbsorbed(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	node := NewExtract(extract.ExtractorFunc(func(_ context.Context, _ string) (map[string]any, error) {
		return nil, errors.New("model unavailable")
	}), mc)

	state := processingState(t, mc, "doc")

	events, err := node.Execute(context.Background(), state)
	require.NoError(t, err)

	require.Equal(t, map[string]any{"error": "model unavailable"}, state.ExtractedData)
	require.Equal(t, core.StatusProcessing, state.Status)
	require.Equal(t, []string{
		"Extraction failed at 2024-03-01T10:00:00Z: model unavailable",
	}, state.History)

	require.Len(t, events, 2)
	require.Equal(t, "Extraction failed: model unavailable", events[1].Payload["message"])
}

func Test_Extract_CancellationAborts(t *testing.T) {
	mc := clock.NewMock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	node := NewExtract(extract.ExtractorFunc(func(ctx context.Context, _ string) (map[string]any, error) {
		return nil, ctx.Err()
	}), mc)

	state := processingState(t, mc, "doc")

	_, err := node.Execute(ctx, state)
	require.ErrorIs(t, err, context.Canceled)

	require.Nil(t, state.ExtractedData)
	require.Empty(t, state.History)
}
