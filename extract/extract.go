// Package extract turns raw document text into the structured field map
// that validation operates on. The engine treats extraction as a pluggable
// capability: anything that can produce fields from text satisfies
// Extractor, from the deterministic TextScanner to a metered external
// service wrapped in the retry and rate-limit decorators.
package extract

import "context"

// Extractor produces structured fields from document text.
//
// A returned error marks the extraction as failed for this run; the engine
// absorbs it into the run's state and routes the document to human review
// rather than crashing the run. Context cancellation errors are the
// exception and abort the run.
type Extractor interface {
	Extract(ctx context.Context, documentContent string) (map[string]any, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, documentContent string) (map[string]any, error)

func (f ExtractorFunc) Extract(ctx context.Context, documentContent string) (map[string]any, error) {
	return f(ctx, documentContent)
}
