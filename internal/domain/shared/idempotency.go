package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed keys (inbound message ids, notified
// event ids) for a bounded window.
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Forget removes a key so that it can be processed again
	Forget(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// Compactor is implemented by stores whose expired entries stay resident until
// removed. Expiry is still enforced on read; compaction only frees memory.
type Compactor interface {
	Compact(ctx context.Context) (int, error)
}
