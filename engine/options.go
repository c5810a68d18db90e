package engine

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	mi "github.com/docflowlabs/docflow/internal/metrics"
	"github.com/docflowlabs/docflow/metrics"
	"github.com/docflowlabs/docflow/stream"
	"github.com/docflowlabs/docflow/workflow"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Options struct {
	Logger *slog.Logger

	Metrics metrics.Client

	TracerProvider trace.TracerProvider

	// Clock drives every timestamp the engine writes. Tests inject a mock.
	Clock clock.Clock

	// StateCacheSize and StateCacheTTL bound the in-memory cache of latest
	// run states that backs GetRun.
	StateCacheSize int
	StateCacheTTL  time.Duration

	// StreamTTL is how long an idle run's event stream survives before its
	// subscribers are closed.
	StreamTTL time.Duration

	// Sink receives every published event in addition to subscribers.
	Sink stream.EventSink

	// PostReviewNode, when set, runs after a resume whose validation
	// passed, before the finalize node.
	PostReviewNode workflow.Node

	// ResultWriter receives the final state of finalized runs.
	ResultWriter workflow.ResultWriter

	// NodeTimeout bounds a single node execution.
	NodeTimeout time.Duration
}

var DefaultOptions Options = Options{
	Logger:         slog.Default(),
	Metrics:        mi.NewNoopMetricsClient(),
	TracerProvider: noop.NewTracerProvider(),
	Clock:          clock.New(),
	StateCacheSize: 128,
	StateCacheTTL:  time.Minute * 30,
	StreamTTL:      time.Minute * 30,
	NodeTimeout:    time.Second * 60,
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithMetrics(client metrics.Client) Option {
	return func(o *Options) {
		o.Metrics = client
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

func WithStateCache(size int, ttl time.Duration) Option {
	return func(o *Options) {
		o.StateCacheSize = size
		o.StateCacheTTL = ttl
	}
}

func WithStreamTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.StreamTTL = ttl
	}
}

func WithSink(sink stream.EventSink) Option {
	return func(o *Options) {
		o.Sink = sink
	}
}

func WithPostReviewNode(node workflow.Node) Option {
	return func(o *Options) {
		o.PostReviewNode = node
	}
}

func WithResultWriter(writer workflow.ResultWriter) Option {
	return func(o *Options) {
		o.ResultWriter = writer
	}
}

func WithNodeTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.NodeTimeout = timeout
	}
}

func ApplyOptions(opts ...Option) Options {
	options := DefaultOptions

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	if options.Clock == nil {
		options.Clock = clock.New()
	}

	return options
}
