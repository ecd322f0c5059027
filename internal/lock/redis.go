package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only when it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

const redisRetryDelay = 25 * time.Millisecond

// redisClient is the subset of *redis.Client the locker needs.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker is a lease-based Locker shared by every node pointing at the same Redis.
type RedisLocker struct {
	client redisClient
}

func NewRedisLocker(client redisClient) *RedisLocker {
	return &RedisLocker{client: client}
}

type redisHandle struct {
	client redisClient
	key    string
	token  string
	once   sync.Once
}

// Acquire issues SET NX PX until granted, ctx is done or wait elapses.
func (l *RedisLocker) Acquire(ctx context.Context, key string, lease, wait time.Duration) (Handle, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %q: %w", key, err)
		}
		if ok {
			return &redisHandle{client: l.client, key: key, token: token}, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNotAcquired
		}
		if err := sleepCtx(ctx, minDuration(remaining, redisRetryDelay)); err != nil {
			return nil, err
		}
	}
}

// Release runs the compare-and-delete script once. An expired lease is a no-op.
func (h *redisHandle) Release() {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// on error the lease expires on its own
		_ = h.client.Eval(ctx, releaseScript, []string{h.key}, h.token).Err()
	})
}
