package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLock(t *testing.T, ttl time.Duration) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	l, err := NewRedisLock(mr.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return l, mr
}

func TestRedisLock_AcquireIsExclusive(t *testing.T) {
	l, _ := newTestRedisLock(t, 5*time.Minute)
	ctx := context.Background()

	assert.True(t, l.Acquire(ctx, "feed-1"))
	assert.False(t, l.Acquire(ctx, "feed-1"), "second acquire must fail while held")
	assert.True(t, l.Acquire(ctx, "feed-2"), "locks are per feed")
}

func TestRedisLock_ConcurrentAcquire(t *testing.T) {
	l, _ := newTestRedisLock(t, 5*time.Minute)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Acquire(ctx, "feed-1")
		}()
	}
	wg.Wait()
	close(results)

	acquired := 0
	for ok := range results {
		if ok {
			acquired++
		}
	}
	assert.Equal(t, 1, acquired, "exactly one concurrent acquire must succeed")
}

func TestRedisLock_ReleaseAllowsReacquire(t *testing.T) {
	l, _ := newTestRedisLock(t, 5*time.Minute)
	ctx := context.Background()

	require.True(t, l.Acquire(ctx, "feed-1"))
	l.Release(ctx, "feed-1")
	assert.True(t, l.Acquire(ctx, "feed-1"))
}

func TestRedisLock_ReleaseIsIdempotent(t *testing.T) {
	l, _ := newTestRedisLock(t, 5*time.Minute)
	ctx := context.Background()

	l.Release(ctx, "feed-1")
	l.Release(ctx, "feed-1")
	assert.True(t, l.Acquire(ctx, "feed-1"))
}

func TestRedisLock_ReleaseOnlyDeletesOwnLock(t *testing.T) {
	first, mr := newTestRedisLock(t, 5*time.Minute)
	ctx := context.Background()

	second, err := NewRedisLock(mr.Addr(), 5*time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	require.True(t, first.Acquire(ctx, "feed-1"))
	mr.FastForward(5*time.Minute + time.Second)
	require.True(t, second.Acquire(ctx, "feed-1"), "expired lock must be reacquirable")

	// The first holder's lock expired and another node took it over; its
	// late release must not free the new holder's lock.
	first.Release(ctx, "feed-1")
	assert.False(t, first.Acquire(ctx, "feed-1"), "lock must still be held by the second node")

	second.Release(ctx, "feed-1")
	assert.True(t, first.Acquire(ctx, "feed-1"))
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	l, mr := newTestRedisLock(t, 5*time.Minute)
	ctx := context.Background()

	require.True(t, l.Acquire(ctx, "feed-1"))
	mr.FastForward(5*time.Minute + time.Second)
	assert.True(t, l.Acquire(ctx, "feed-1"), "lock must self-expire")
}

func TestRedisLock_FailsClosedWhenStoreUnreachable(t *testing.T) {
	l, mr := newTestRedisLock(t, 5*time.Minute)
	ctx := context.Background()

	mr.Close()
	assert.False(t, l.Acquire(ctx, "feed-1"), "unreachable store must read as locked")

	// Release on a dead store must not panic or propagate.
	l.Release(ctx, "feed-1")
}

func TestNewRedisLock_ConnectionFailure(t *testing.T) {
	_, err := NewRedisLock("127.0.0.1:1", time.Minute)
	require.Error(t, err)
}

func TestMemoryLock_MatchesRedisSemantics(t *testing.T) {
	l := NewMemoryLock(5 * time.Minute)
	ctx := context.Background()

	assert.True(t, l.Acquire(ctx, "feed-1"))
	assert.False(t, l.Acquire(ctx, "feed-1"))
	assert.True(t, l.Acquire(ctx, "feed-2"))

	l.Release(ctx, "feed-1")
	assert.True(t, l.Acquire(ctx, "feed-1"))
}

func TestMemoryLock_Expiry(t *testing.T) {
	l := NewMemoryLock(time.Minute)
	current := time.Unix(1700000000, 0)
	l.now = func() time.Time { return current }
	ctx := context.Background()

	require.True(t, l.Acquire(ctx, "feed-1"))
	current = current.Add(61 * time.Second)
	assert.True(t, l.Acquire(ctx, "feed-1"), "expired lock must be reacquirable")
}

func TestMemoryLock_ConcurrentAcquire(t *testing.T) {
	l := NewMemoryLock(time.Minute)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Acquire(ctx, "feed-1")
		}()
	}
	wg.Wait()
	close(results)

	acquired := 0
	for ok := range results {
		if ok {
			acquired++
		}
	}
	assert.Equal(t, 1, acquired)
}
