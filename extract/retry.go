package extract

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// WithRetry wraps an extractor so transient failures are retried according
// to the given backoff policy. Errors wrapped with backoff.Permanent stop
// the retries immediately, and cancelling the context stops them with the
// context's error. The policy is reset at the start of every Extract call.
func WithRetry(e Extractor, policy backoff.BackOff) Extractor {
	return &retryExtractor{inner: e, policy: policy}
}

type retryExtractor struct {
	inner  Extractor
	policy backoff.BackOff
}

func (r *retryExtractor) Extract(ctx context.Context, documentContent string) (map[string]any, error) {
	return backoff.RetryWithData(func() (map[string]any, error) {
		return r.inner.Extract(ctx, documentContent)
	}, backoff.WithContext(r.policy, ctx))
}
