package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docflowlabs/docflow/core"
)

// ResultWriter receives the final state of a finalized run.
type ResultWriter interface {
	WriteResult(ctx context.Context, state *core.WorkflowState) error
}

// JSONResultWriter writes one output_<run_id>.json file per finalized run.
type JSONResultWriter struct {
	// Dir is the target directory; the working directory when empty.
	Dir string
}

var _ ResultWriter = (*JSONResultWriter)(nil)

func (w *JSONResultWriter) WriteResult(_ context.Context, state *core.WorkflowState) error {
	result := map[string]any{
		"run_id":         state.RunID,
		"document_type":  state.DocumentType,
		"extracted_data": state.ExtractedData,
		"history":        state.History,
		"finalized_at":   state.UpdatedAt,
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	path := filepath.Join(w.Dir, fmt.Sprintf("output_%s.json", state.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}

	return nil
}
