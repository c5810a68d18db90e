package engine

import "sync"

// runLocks tracks which runs have an operation in flight. Operations on the
// same run never queue behind each other; acquiring a busy run fails and the
// caller sees ErrRunBusy.
type runLocks struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newRunLocks() *runLocks {
	return &runLocks{
		active: map[string]struct{}{},
	}
}

func (l *runLocks) tryAcquire(runID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.active[runID]; busy {
		return false
	}

	l.active[runID] = struct{}{}

	return true
}

func (l *runLocks) release(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.active, runID)
}
