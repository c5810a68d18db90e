package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
)

// memoryStore keeps checkpoints as serialized snapshots so that reads return
// exactly what a durable store would return after a round-trip through the
// configured converter.
type memoryStore struct {
	options backend.Options

	mu          sync.RWMutex
	checkpoints map[string][]*storedCheckpoint
	reviews     map[string]*core.ReviewQueueEntry
}

type storedCheckpoint struct {
	sequence  int64
	state     []byte
	createdAt time.Time
}

var _ backend.Store = (*memoryStore)(nil)

func NewMemoryStore(opts ...backend.BackendOption) *memoryStore {
	return &memoryStore{
		options:     backend.ApplyOptions(opts...),
		checkpoints: map[string][]*storedCheckpoint{},
		reviews:     map[string]*core.ReviewQueueEntry{},
	}
}

func (ms *memoryStore) AppendCheckpoint(ctx context.Context, runID string, state *core.WorkflowState, expectedSeq int64) (int64, error) {
	data, err := ms.options.Converter.To(state)
	if err != nil {
		return 0, fmt.Errorf("serializing state: %w", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	current := int64(len(ms.checkpoints[runID]))
	if current != expectedSeq {
		if expectedSeq == 0 {
			return 0, backend.ErrRunAlreadyExists
		}

		return 0, fmt.Errorf("expected sequence %d, have %d: %w", expectedSeq, current, backend.ErrSequenceConflict)
	}

	cp := &storedCheckpoint{
		sequence:  current + 1,
		state:     data,
		createdAt: time.Now().UTC(),
	}
	ms.checkpoints[runID] = append(ms.checkpoints[runID], cp)

	return cp.sequence, nil
}

func (ms *memoryStore) LatestCheckpoint(ctx context.Context, runID string) (*core.Checkpoint, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	cps := ms.checkpoints[runID]
	if len(cps) == 0 {
		return nil, backend.ErrRunNotFound
	}

	return ms.toCheckpoint(runID, cps[len(cps)-1])
}

func (ms *memoryStore) GetCheckpoints(ctx context.Context, runID string) ([]*core.Checkpoint, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	cps := ms.checkpoints[runID]
	if len(cps) == 0 {
		return nil, backend.ErrRunNotFound
	}

	result := make([]*core.Checkpoint, 0, len(cps))
	for _, sc := range cps {
		cp, err := ms.toCheckpoint(runID, sc)
		if err != nil {
			return nil, err
		}

		result = append(result, cp)
	}

	return result, nil
}

func (ms *memoryStore) ListRunIDs(ctx context.Context) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := make([]string, 0, len(ms.checkpoints))
	for id := range ms.checkpoints {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

func (ms *memoryStore) PutPendingReview(ctx context.Context, entry *core.ReviewQueueEntry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e := *entry
	ms.reviews[entry.RunID] = &e

	return nil
}

func (ms *memoryStore) RemovePendingReview(ctx context.Context, runID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.reviews, runID)

	return nil
}

func (ms *memoryStore) PendingReviews(ctx context.Context) ([]*core.ReviewQueueEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	entries := make([]*core.ReviewQueueEntry, 0, len(ms.reviews))
	for _, entry := range ms.reviews {
		e := *entry
		entries = append(entries, &e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].RunID < entries[j].RunID
		}

		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return entries, nil
}

func (ms *memoryStore) GetStats(ctx context.Context) (*backend.Stats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	s := &backend.Stats{
		Runs:           int64(len(ms.checkpoints)),
		PendingReviews: int64(len(ms.reviews)),
	}

	for _, cps := range ms.checkpoints {
		s.Checkpoints += int64(len(cps))
	}

	return s, nil
}

func (ms *memoryStore) Close() error {
	return nil
}

func (ms *memoryStore) toCheckpoint(runID string, sc *storedCheckpoint) (*core.Checkpoint, error) {
	var state core.WorkflowState
	if err := ms.options.Converter.From(sc.state, &state); err != nil {
		return nil, fmt.Errorf("deserializing state: %w", err)
	}

	return &core.Checkpoint{
		RunID:     runID,
		Sequence:  sc.sequence,
		State:     &state,
		CreatedAt: sc.createdAt,
	}, nil
}
