package log

const (
	NamespaceKey = "docflow"

	RunIDKey = NamespaceKey + ".run.id"

	NodeNameKey = NamespaceKey + ".node.name"

	StatusKey       = NamespaceKey + ".status"
	DocumentTypeKey = NamespaceKey + ".document.type"

	SequenceKey = NamespaceKey + ".checkpoint.sequence"

	EventTypeKey = NamespaceKey + ".event.type"
	EventIDKey   = NamespaceKey + ".event.id"

	ReviewReasonKey   = NamespaceKey + ".review.reason"
	ReviewPriorityKey = NamespaceKey + ".review.priority"

	DecisionKey = NamespaceKey + ".decision"

	SubscriberCountKey = NamespaceKey + ".stream.subscribers"

	AttemptKey  = NamespaceKey + ".attempt"
	DurationKey = NamespaceKey + ".duration_ms"

	BackendKey = NamespaceKey + ".backend"
)
