package redis

import "fmt"

// checkpointsKey returns the key for the LIST holding a run's checkpoints in
// sequence order. The list length equals the latest sequence number.
func checkpointsKey(keyPrefix, runID string) string {
	return fmt.Sprintf("%vcheckpoints:%v", keyPrefix, runID)
}

// runsKey returns the key for the SET of all run IDs with checkpoints.
func runsKey(keyPrefix string) string {
	return keyPrefix + "runs"
}

// reviewQueueKey returns the key for the ZSET of pending reviews. The score is
// the entry creation time, so a range scan returns the oldest entry first.
func reviewQueueKey(keyPrefix string) string {
	return keyPrefix + "review-queue"
}

// reviewEntryKey returns the key holding the serialized review queue entry
// for a run.
func reviewEntryKey(keyPrefix, runID string) string {
	return fmt.Sprintf("%vreview-entry:%v", keyPrefix, runID)
}
