package stream

import (
	"log/slog"
	"time"

	im "github.com/docflowlabs/docflow/internal/metrics"
	"github.com/docflowlabs/docflow/metrics"
)

type options struct {
	Logger *slog.Logger

	Metrics metrics.Client

	// TTL is how long an idle run's stream entry survives without any
	// publish or subscribe activity before it is evicted and its
	// subscribers closed.
	TTL time.Duration

	Sink EventSink
}

type HubOption func(o *options)

func WithLogger(logger *slog.Logger) HubOption {
	return func(o *options) {
		o.Logger = logger
	}
}

func WithMetrics(client metrics.Client) HubOption {
	return func(o *options) {
		o.Metrics = client
	}
}

func WithTTL(ttl time.Duration) HubOption {
	return func(o *options) {
		o.TTL = ttl
	}
}

// WithSink forwards every published event, synchronously and in order, to
// the given sink in addition to the per-run subscribers.
func WithSink(sink EventSink) HubOption {
	return func(o *options) {
		o.Sink = sink
	}
}

func applyOptions(opts ...HubOption) *options {
	o := &options{
		Logger:  slog.Default(),
		Metrics: im.NewNoopMetricsClient(),
		TTL:     time.Minute * 30,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	return o
}
