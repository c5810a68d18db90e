package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/core"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	state *core.WorkflowState
	err   error
}

func (w *recordingWriter) WriteResult(_ context.Context, state *core.WorkflowState) error {
	w.state = state
	return w.err
}

func Test_Finalize(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	writer := &recordingWriter{}
	node := NewFinalize(writer, mc, nil)

	require.Equal(t, "finalize", node.Name())

	state := processingState(t, mc, "doc")

	events, err := node.Execute(context.Background(), state)
	require.NoError(t, err)

	require.Equal(t, core.StatusFinalized, state.Status)
	require.Equal(t, []string{"Workflow finalized at 2024-03-01T10:00:00Z"}, state.History)
	require.Same(t, state, writer.state)

	require.Len(t, events, 1)
	require.Equal(t, "Workflow finalized", events[0].Payload["message"])
}

func Test_Finalize_WriterErrorDoesNotFailTheRun(t *testing.T) {
	mc := clock.NewMock()

	writer := &recordingWriter{err: errors.New("disk full")}
	node := NewFinalize(writer, mc, nil)

	state := processingState(t, mc, "doc")

	_, err := node.Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, core.StatusFinalized, state.Status)
}

func Test_Finalize_WithoutWriter(t *testing.T) {
	mc := clock.NewMock()

	state := processingState(t, mc, "doc")

	_, err := NewFinalize(nil, mc, nil).Execute(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, core.StatusFinalized, state.Status)
}

func Test_JSONResultWriter(t *testing.T) {
	dir := t.TempDir()

	state := core.NewWorkflowState("run-9", "doc", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	state.DocumentType = core.DocumentTypeInvoice
	state.ExtractedData = map[string]any{"vendor_name": "Acme Corp"}
	state.AppendHistory("Document received at 2024-03-01T10:00:00Z")

	w := &JSONResultWriter{Dir: dir}
	require.NoError(t, w.WriteResult(context.Background(), state))

	data, err := os.ReadFile(filepath.Join(dir, "output_run-9.json"))
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	require.Equal(t, "run-9", result["run_id"])
	require.Equal(t, "invoice", result["document_type"])
	require.Equal(t, map[string]any{"vendor_name": "Acme Corp"}, result["extracted_data"])
	require.Equal(t, []any{"Document received at 2024-03-01T10:00:00Z"}, result["history"])
	require.NotEmpty(t, result["finalized_at"])
}
