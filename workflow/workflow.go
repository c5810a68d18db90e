// Package workflow contains the processing nodes a document run moves
// through: intake, extraction, the human-review pause, and finalization.
// Nodes mutate the run state in place and return the events describing what
// happened; persisting the state and delivering the events is the engine's
// job, so a node that returned is a node whose effect can be checkpointed
// atomically.
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/docflowlabs/docflow/core"
)

// Node is a single processing step of a document run.
type Node interface {
	Name() string

	// Execute mutates state and returns the events describing what
	// happened. Nodes never touch the store or the stream; the engine
	// persists and publishes after each node returns.
	Execute(ctx context.Context, state *core.WorkflowState) ([]*core.Event, error)
}

// Node names as they appear in events and history entries.
const (
	NodeIntake      = "intake"
	NodeExtract     = "extract"
	NodeAwaitReview = "await_review"
	NodeFinalize    = "finalize"
)

// Timestamp renders history times in a stable, sortable form. The engine
// uses it for the history entries it writes itself, so node-written and
// engine-written entries read the same.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// DetectDocumentType classifies a document from keywords in its content.
// Invoices win over tickets when both vocabularies appear.
func DetectDocumentType(content string) core.DocumentType {
	lower := strings.ToLower(content)

	switch {
	case strings.Contains(lower, "invoice"):
		return core.DocumentTypeInvoice
	case strings.Contains(lower, "ticket") || strings.Contains(lower, "customer") || strings.Contains(lower, "support"):
		return core.DocumentTypeTicket
	default:
		return core.DocumentTypeUnknown
	}
}

func progressEvent(message string) *core.Event {
	return core.NewEvent(core.EventProgress, map[string]any{"message": message})
}
