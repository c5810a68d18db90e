package metrickeys

const (
	Prefix = "docflow."

	// Runs
	RunStarted   = Prefix + "run.started"
	RunFinalized = Prefix + "run.finalized"
	RunSuspended = Prefix + "run.suspended"
	RunFailed    = Prefix + "run.failed"
	RunResumed   = Prefix + "run.resumed"
	RunRejected  = Prefix + "run.rejected"
	RunRecovered = Prefix + "run.recovered"

	NodeExecuted = Prefix + "node.executed"
	NodeDuration = Prefix + "node.duration"

	CheckpointAppended = Prefix + "checkpoint.appended"
	CheckpointDuration = Prefix + "checkpoint.duration"

	EventPublished = Prefix + "event.published"

	StateCacheHit      = Prefix + "state_cache.hit"
	StateCacheMiss     = Prefix + "state_cache.miss"
	StateCacheEviction = Prefix + "state_cache.eviction"
	StateCacheSize     = Prefix + "state_cache.size"

	StreamEviction = Prefix + "stream.eviction"
	StreamRuns     = Prefix + "stream.runs"
)

// Tag names
const (
	// Backend being used
	Backend = "backend"

	NodeName = "node"

	Decision = "decision"

	// Reason for evicting an entry from the state cache
	EvictionReason = "reason"
)
