package workflow

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/extract"
)

// Extract runs the extraction capability against the document content. An
// extraction failure does not fail the run: the error is recorded on the
// state as an error marker so validation routes the run to a human instead.
// Only a cancelled context aborts the node.
type Extract struct {
	extractor extract.Extractor
	clock     clock.Clock
}

func NewExtract(extractor extract.Extractor, c clock.Clock) *Extract {
	if c == nil {
		c = clock.New()
	}

	return &Extract{extractor: extractor, clock: c}
}

func (n *Extract) Name() string {
	return NodeExtract
}

func (n *Extract) Execute(ctx context.Context, state *core.WorkflowState) ([]*core.Event, error) {
	events := []*core.Event{
		progressEvent("Extracting structured data"),
	}

	fields, err := n.extractor.Extract(ctx, state.DocumentContent)
	now := n.clock.Now()

	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}

		state.ExtractedData = map[string]any{"error": err.Error()}
		state.AppendHistory(fmt.Sprintf("Extraction failed at %s: %s", Timestamp(now), err.Error()))
		state.Touch(now)

		events = append(events, progressEvent("Extraction failed: "+err.Error()))

		return events, nil
	}

	// A nil result still marks extraction as done; validation treats the
	// empty map as missing data.
	if fields == nil {
		fields = map[string]any{}
	}

	state.ExtractedData = fields
	state.AppendHistory(fmt.Sprintf("Data extracted at %s", Timestamp(now)))
	state.Touch(now)

	events = append(events, core.NewEvent(core.EventToolResult, map[string]any{
		"fields": fields,
	}))

	return events, nil
}
