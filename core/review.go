package core

import "time"

// Review queue priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// ReviewQueueEntry is the work-queue projection of a run suspended for human
// review. An entry exists exactly while the run's status is
// StatusPendingReview; it is created when the run pauses and removed on
// resume, finalization, or rejection.
type ReviewQueueEntry struct {
	RunID string `json:"run_id"`

	// Reason is the joined list of validation reasons that paused the run.
	Reason string `json:"reason"`

	// Priority is PriorityHigh for threshold or security findings,
	// PriorityNormal otherwise.
	Priority string `json:"priority"`

	CreatedAt time.Time `json:"created_at"`
}
