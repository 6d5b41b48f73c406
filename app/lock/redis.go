package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ ProcessingLock = (*RedisLock)(nil)

// RedisLock implements ProcessingLock on a shared Redis instance, so
// multiple scheduler nodes can coordinate.
type RedisLock struct {
	client *redis.Client
	token  string
	ttl    time.Duration
}

// NewRedisLock connects to Redis and verifies the connection.
func NewRedisLock(addr string, ttl time.Duration) (*RedisLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &RedisLock{
		client: client,
		token:  uuid.NewString(),
		ttl:    ttl,
	}, nil
}

// Acquire sets the lock key only if absent. SET NX is a single atomic
// operation; there is no separate existence check to race against.
func (l *RedisLock) Acquire(ctx context.Context, feedID string) bool {
	created, err := l.client.SetNX(ctx, lockKey(feedID), l.token, l.ttl).Result()
	if err != nil {
		slog.Error("Lock store unreachable, treating feed as locked",
			"feed_id", feedID, "error", err)
		return false
	}
	return created
}

// releaseScript deletes the lock only while it still carries this node's
// token. A lock that expired and was re-acquired by another node keeps that
// node's token, so a late release cannot steal it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Release deletes the lock key if this node still holds it.
func (l *RedisLock) Release(ctx context.Context, feedID string) {
	if err := releaseScript.Run(ctx, l.client, []string{lockKey(feedID)}, l.token).Err(); err != nil {
		slog.Warn("Failed to release processing lock, relying on TTL expiry",
			"feed_id", feedID, "error", err)
	}
}

// Close closes the Redis connection.
func (l *RedisLock) Close() error {
	return l.client.Close()
}
