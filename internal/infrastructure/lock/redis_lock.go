package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock key only when it still holds our token,
// so a lock that expired and was re-acquired elsewhere is never released
// by the old holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// RedisLock is a best-effort leader lock for the verification scheduler.
// The TTL must comfortably exceed one sweep; a crashed holder frees the
// lock when the TTL lapses.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLock creates a leader lock with a process-unique token
func NewRedisLock(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		token:  uuid.New().String(),
		ttl:    ttl,
		logger: logger,
	}
}

// TryLock attempts to acquire the lock without blocking. It returns
// false when another replica holds it.
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire leader lock: %w", err)
	}
	if acquired {
		l.logger.Debug("Leader lock acquired", zap.String("key", l.key))
	}
	return acquired, nil
}

// Unlock releases the lock if this process still holds it
func (l *RedisLock) Unlock(ctx context.Context) error {
	released, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release leader lock: %w", err)
	}
	if released == 0 {
		l.logger.Warn("Leader lock already expired or taken over", zap.String("key", l.key))
	}
	return nil
}
