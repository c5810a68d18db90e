package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/log"
)

// Finalize is the terminal success node. If a ResultWriter is configured it
// receives the finalized state; delivery is best effort and a failed write
// does not fail the already finalized run.
type Finalize struct {
	writer ResultWriter
	clock  clock.Clock
	logger *slog.Logger
}

// NewFinalize creates the finalize node. writer may be nil when no result
// side effect is wanted.
func NewFinalize(writer ResultWriter, c clock.Clock, logger *slog.Logger) *Finalize {
	if c == nil {
		c = clock.New()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Finalize{writer: writer, clock: c, logger: logger}
}

func (n *Finalize) Name() string {
	return NodeFinalize
}

func (n *Finalize) Execute(ctx context.Context, state *core.WorkflowState) ([]*core.Event, error) {
	now := n.clock.Now()

	if err := state.Transition(core.StatusFinalized, now); err != nil {
		return nil, err
	}

	state.AppendHistory(fmt.Sprintf("Workflow finalized at %s", Timestamp(now)))

	if n.writer != nil {
		if err := n.writer.WriteResult(ctx, state); err != nil {
			n.logger.Error("Writing workflow result failed", log.RunIDKey, state.RunID, "error", err)
		}
	}

	return []*core.Event{
		progressEvent("Workflow finalized"),
	}, nil
}
