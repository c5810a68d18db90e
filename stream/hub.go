// Package stream delivers run events from the engine to external consumers.
// Each run has an ordered stream; subscribers receive every event published
// after they attach, in emission order, and a closed channel marks the end
// of the stream.
package stream

import (
	"context"
	"sync"

	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/internal/metrickeys"
	"github.com/docflowlabs/docflow/log"
	"github.com/docflowlabs/docflow/metrics"
	"github.com/jellydator/ttlcache/v3"
)

// EventSink receives every event published through a hub, before fan-out to
// subscribers. Used to bridge the stream onto an external transport.
type EventSink interface {
	HandleEvent(evt *core.Event)
}

// Subscription is one consumer's attachment to a run's event stream.
type Subscription struct {
	// C delivers the run's events in emission order. It is closed when the
	// run terminates, the subscription is cancelled, or the stream entry is
	// evicted after sitting idle.
	C <-chan *core.Event

	// Cancel detaches the subscription; after Cancel, C is closed. Safe to
	// call more than once.
	Cancel func()
}

type runStream struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

// Hub fans events out to per-run subscribers. Publishing never blocks:
// every subscriber has its own buffer drained by its own goroutine. Stream
// entries for idle runs are evicted after a TTL so abandoned runs do not
// accumulate.
type Hub struct {
	options *options

	mu        sync.Mutex
	runs      *ttlcache.Cache[string, *runStream]
	closeOnce sync.Once
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		options: applyOptions(opts...),
	}

	h.runs = ttlcache.New(
		ttlcache.WithTTL[string, *runStream](h.options.TTL),
	)

	h.runs.OnEviction(func(_ context.Context, er ttlcache.EvictionReason, i *ttlcache.Item[string, *runStream]) {
		i.Value().closeAll()

		reason := ""
		switch er {
		case ttlcache.EvictionReasonExpired:
			reason = "expired"
		case ttlcache.EvictionReasonCapacityReached:
			reason = "capacity"
		case ttlcache.EvictionReasonDeleted:
			reason = "deleted"
		}

		h.options.Logger.Debug("Evicted idle run stream", log.RunIDKey, i.Key())
		h.options.Metrics.Counter(metrickeys.StreamEviction, metrics.Tags{metrickeys.EvictionReason: reason}, 1)
	})

	go h.runs.Start()

	return h
}

// Subscribe attaches a consumer to the run's stream. If the run already
// terminated the returned channel is closed immediately.
func (h *Hub) Subscribe(runID string) *Subscription {
	rs := h.stream(runID)

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()

		ch := make(chan *core.Event)
		close(ch)

		return &Subscription{C: ch, Cancel: func() {}}
	}

	s := newSubscriber()
	id := rs.nextID
	rs.nextID++
	rs.subs[id] = s
	count := len(rs.subs)
	rs.mu.Unlock()

	h.options.Logger.Debug("Stream subscriber attached", log.RunIDKey, runID, log.SubscriberCountKey, count)

	return &Subscription{
		C: s.ch,
		Cancel: func() {
			rs.mu.Lock()
			delete(rs.subs, id)
			rs.mu.Unlock()

			s.cancel()
		},
	}
}

// Publish delivers the event to the sink and to every subscriber of the
// event's run. It never blocks on consumers. Events published after
// CloseRun are dropped.
func (h *Hub) Publish(evt *core.Event) {
	if h.options.Sink != nil {
		h.options.Sink.HandleEvent(evt)
	}

	rs := h.stream(evt.RunID)

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return
	}

	for _, s := range rs.subs {
		s.enqueue(evt)
	}
	rs.mu.Unlock()

	h.options.Metrics.Counter(metrickeys.EventPublished, metrics.Tags{}, 1)
	h.options.Logger.Debug("Published event", log.RunIDKey, evt.RunID, log.EventTypeKey, string(evt.Type))
}

// CloseRun marks the run's stream as terminated. Subscribers receive every
// already published event, then their channels close. The entry stays
// until TTL eviction so late subscribers observe an immediately closed
// channel rather than a stream that never ends.
func (h *Hub) CloseRun(runID string) {
	rs := h.stream(runID)
	rs.closeAll()
}

// Close shuts the hub down: the eviction janitor stops and every
// subscriber channel is closed. Safe to call more than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.runs.Stop()

		h.mu.Lock()
		defer h.mu.Unlock()

		for _, item := range h.runs.Items() {
			item.Value().closeAll()
		}
	})
}

func (h *Hub) stream(runID string) *runStream {
	h.mu.Lock()
	defer h.mu.Unlock()

	if item := h.runs.Get(runID); item != nil {
		return item.Value()
	}

	rs := &runStream{subs: map[int]*subscriber{}}
	h.runs.Set(runID, rs, ttlcache.DefaultTTL)

	h.options.Metrics.Gauge(metrickeys.StreamRuns, metrics.Tags{}, int64(h.runs.Len()))

	return rs
}

func (rs *runStream) closeAll() {
	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return
	}

	rs.closed = true
	subs := rs.subs
	rs.subs = map[int]*subscriber{}
	rs.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
