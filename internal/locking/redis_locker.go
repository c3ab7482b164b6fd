package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/accessmod/lead-marketplace/pkg/logging"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker is a lease-based lock shared by every API instance.
type RedisLocker struct {
	client redisClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *logging.Logger
}

func NewRedisLocker(client redisClient, ttl time.Duration, logger *logging.Logger) *RedisLocker {
	if client == nil {
		panic("locking: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		prefix: "lock:",
		logger: logger,
	}
}

// WithRetryInterval sets the polling interval used while the lock is held elsewhere.
func (l *RedisLocker) WithRetryInterval(d time.Duration) *RedisLocker {
	if d > 0 {
		l.retry = d
	}
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("locking: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("lock release failed", "key", key, "error", err)
			}
		})
	}, nil
}
