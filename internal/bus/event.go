package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the core. Subscribers filter by namespace
// prefix, e.g. "inbox." or "mutation.".
const (
	KindInboxCreated  = "inbox.created"
	KindInboxArchived = "inbox.archived"
	KindInboxRestored = "inbox.restored"
	KindInboxDeleted  = "inbox.deleted"
	KindInboxPurged   = "inbox.purged"

	KindConvertSucceeded = "convert.succeeded"
	KindConvertFailed    = "convert.failed"

	KindMutationPending  = "mutation.pending"
	KindMutationFailed   = "mutation.failed"
	KindMutationResolved = "mutation.resolved"

	KindSyncStatusChanged = "sync.status_changed"
)
