package engine

import (
	"context"
	"sync"
	"time"

	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/internal/metrickeys"
	"github.com/docflowlabs/docflow/metrics"
	"github.com/jellydator/ttlcache/v3"
)

// stateCache keeps the latest state of recently touched runs in memory so
// GetRun does not hit the store for every status poll. Entries are refreshed
// on every checkpoint append; stale entries age out via TTL.
type stateCache struct {
	metrics metrics.Client

	mu       sync.Mutex
	cache    *ttlcache.Cache[string, *core.WorkflowState]
	stopOnce sync.Once
}

func newStateCache(mc metrics.Client, size int, ttl time.Duration) *stateCache {
	cache := ttlcache.New(
		ttlcache.WithCapacity[string, *core.WorkflowState](uint64(size)),
		ttlcache.WithTTL[string, *core.WorkflowState](ttl),
	)

	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, *core.WorkflowState]) {
		var reasonTag string

		switch reason {
		case ttlcache.EvictionReasonExpired:
			reasonTag = "expired"
		case ttlcache.EvictionReasonCapacityReached:
			reasonTag = "capacity"
		default:
			return
		}

		mc.Counter(metrickeys.StateCacheEviction, metrics.Tags{metrickeys.EvictionReason: reasonTag}, 1)
	})

	sc := &stateCache{
		metrics: mc,
		cache:   cache,
	}

	go sc.cache.Start()

	return sc
}

// get returns a copy of the cached state, or nil on a miss. Copies keep
// callers from mutating the cached snapshot.
func (sc *stateCache) get(runID string) *core.WorkflowState {
	sc.mu.Lock()
	item := sc.cache.Get(runID)
	sc.mu.Unlock()

	if item == nil {
		sc.metrics.Counter(metrickeys.StateCacheMiss, metrics.Tags{}, 1)
		return nil
	}

	sc.metrics.Counter(metrickeys.StateCacheHit, metrics.Tags{}, 1)

	return item.Value().Clone()
}

func (sc *stateCache) put(state *core.WorkflowState) {
	sc.mu.Lock()
	sc.cache.Set(state.RunID, state.Clone(), ttlcache.DefaultTTL)
	size := sc.cache.Len()
	sc.mu.Unlock()

	sc.metrics.Gauge(metrickeys.StateCacheSize, metrics.Tags{}, int64(size))
}

func (sc *stateCache) stop() {
	sc.stopOnce.Do(sc.cache.Stop)
}
