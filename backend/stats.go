package backend

type Stats struct {
	// Runs is the number of runs with at least one checkpoint.
	Runs int64

	// Checkpoints is the total number of checkpoints across all runs.
	Checkpoints int64

	// PendingReviews is the number of runs currently waiting for human
	// review.
	PendingReviews int64
}
