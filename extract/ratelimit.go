package extract

import (
	"context"

	"golang.org/x/time/rate"
)

// WithRateLimit wraps an extractor so every call first acquires a token
// from the limiter, blocking until one is available. Useful when the
// underlying capability is a metered external API shared across runs.
func WithRateLimit(e Extractor, limiter *rate.Limiter) Extractor {
	return &rateLimitedExtractor{inner: e, limiter: limiter}
}

type rateLimitedExtractor struct {
	inner   Extractor
	limiter *rate.Limiter
}

func (r *rateLimitedExtractor) Extract(ctx context.Context, documentContent string) (map[string]any, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return r.inner.Extract(ctx, documentContent)
}
