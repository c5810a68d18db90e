package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/core"
)

// AwaitReview pauses the run for a human reviewer. The engine stops
// advancing after this node, so the checkpoint written for it is the one a
// later Resume starts from.
type AwaitReview struct {
	reasons []string
	clock   clock.Clock
}

// NewAwaitReview creates the pause node for one suspension. reasons are the
// validation findings that triggered it.
func NewAwaitReview(reasons []string, c clock.Clock) *AwaitReview {
	if c == nil {
		c = clock.New()
	}

	return &AwaitReview{reasons: reasons, clock: c}
}

func (n *AwaitReview) Name() string {
	return NodeAwaitReview
}

func (n *AwaitReview) Execute(_ context.Context, state *core.WorkflowState) ([]*core.Event, error) {
	now := n.clock.Now()

	reason := "Unknown validation issue"
	if len(n.reasons) > 0 {
		reason = strings.Join(n.reasons, "; ")
	}

	if err := state.Transition(core.StatusPendingReview, now); err != nil {
		return nil, err
	}

	state.ReasonForReview = reason
	state.AppendHistory(fmt.Sprintf("Workflow paused for human review at %s: %s", Timestamp(now), reason))

	return []*core.Event{
		core.NewEvent(core.EventReviewRequired, map[string]any{
			"reason":         reason,
			"reasons":        n.reasons,
			"extracted_data": state.ExtractedData,
		}),
	}, nil
}
