package lock

import (
	"context"
	"sync"
	"time"
)

var _ ProcessingLock = (*MemoryLock)(nil)

// MemoryLock implements ProcessingLock with a local map for single-node
// deployments and tests. Semantics match RedisLock, including TTL expiry.
type MemoryLock struct {
	mu      sync.Mutex
	expires map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryLock(ttl time.Duration) *MemoryLock {
	return &MemoryLock{
		expires: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *MemoryLock) Acquire(_ context.Context, feedID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := lockKey(feedID)
	if deadline, held := l.expires[key]; held && l.now().Before(deadline) {
		return false
	}
	l.expires[key] = l.now().Add(l.ttl)
	return true
}

func (l *MemoryLock) Release(_ context.Context, feedID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, lockKey(feedID))
}
