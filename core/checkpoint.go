package core

import "time"

// Checkpoint is one persisted snapshot of a run. Sequence numbers are 1-based
// and dense per run; the highest sequence is the authoritative state.
type Checkpoint struct {
	RunID string `json:"run_id"`

	Sequence int64 `json:"sequence"`

	State *WorkflowState `json:"state"`

	// CreatedAt is when the checkpoint was written, not when the state last
	// changed. See WorkflowState.UpdatedAt for the latter.
	CreatedAt time.Time `json:"created_at"`
}
