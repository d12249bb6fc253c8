package ports

import "time"

const (
	LedgerSubscriptionRetryDelay = 10 * time.Second // Delay before retrying the event subscription
	EventDedupWindow             = 4096             // Max tx hashes remembered for event deduplication
)
