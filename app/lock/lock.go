// Package lock provides the mutual exclusion guard that keeps a feed from
// being processed by more than one worker at a time.
package lock

import "context"

// ProcessingLock guards per-feed processing. Acquire is non-blocking and
// atomic: exactly one concurrent caller gets true. Locks carry a TTL so a
// crashed worker cannot wedge a feed; an explicit Release is an optimization,
// not a requirement.
type ProcessingLock interface {
	// Acquire returns true iff this call created the lock. A failure to reach
	// the backing store reads as "already locked" so a feed is never
	// double-processed.
	Acquire(ctx context.Context, feedID string) bool

	// Release deletes the lock. Idempotent; safe after expiry. Errors are
	// logged and swallowed since the lock self-expires.
	Release(ctx context.Context, feedID string)
}

func lockKey(feedID string) string {
	return "processing-" + feedID
}
