package workflow

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/core"
)

// Intake is the entry node. It moves a freshly created run into processing
// and classifies the document from its content.
type Intake struct {
	clock clock.Clock
}

func NewIntake(c clock.Clock) *Intake {
	if c == nil {
		c = clock.New()
	}

	return &Intake{clock: c}
}

func (n *Intake) Name() string {
	return NodeIntake
}

func (n *Intake) Execute(_ context.Context, state *core.WorkflowState) ([]*core.Event, error) {
	now := n.clock.Now()

	if err := state.Transition(core.StatusProcessing, now); err != nil {
		return nil, err
	}

	state.DocumentType = DetectDocumentType(state.DocumentContent)
	state.AppendHistory(fmt.Sprintf("Document received at %s", Timestamp(now)))

	return []*core.Event{
		progressEvent("Processing document intake"),
		progressEvent(fmt.Sprintf("Detected document type: %s", state.DocumentType)),
	}, nil
}
