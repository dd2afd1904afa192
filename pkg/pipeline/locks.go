package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/perundhu/platform/pkg/common/logger"
	"github.com/perundhu/platform/pkg/schedule"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if it still holds our token,
// so an expired lock reacquired by another worker is never released by
// the original holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker provides the two advisory locks the pipeline uses: a
// non-blocking per-contribution claim and a blocking per-route lock.
// Both carry TTLs so a dead worker cannot wedge a key forever; the
// database guards (status claim, unique index) remain the correctness
// backstop.
type RedisLocker struct {
	client        *redis.Client
	claimTTL      time.Duration
	routeTTL      time.Duration
	retryInterval time.Duration
}

func NewRedisLocker(client *redis.Client, claimTTL, routeTTL, retryInterval time.Duration) *RedisLocker {
	if claimTTL <= 0 {
		claimTTL = 10 * time.Minute
	}
	if routeTTL <= 0 {
		routeTTL = 30 * time.Second
	}
	if retryInterval <= 0 {
		retryInterval = 100 * time.Millisecond
	}
	return &RedisLocker{
		client:        client,
		claimTTL:      claimTTL,
		routeTTL:      routeTTL,
		retryInterval: retryInterval,
	}
}

// LockContribution attempts a non-blocking claim. A held lock means
// another worker is already processing the contribution and the caller
// should drop the event.
func (l *RedisLocker) LockContribution(ctx context.Context, id string) (func(), bool, error) {
	key := "lock:contribution:" + id
	token := uuid.New().String()

	acquired, err := l.client.SetNX(ctx, key, token, l.claimTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring contribution lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return l.releaseFunc(key, token), true, nil
}

// LockRoute blocks until the route lock is acquired or the context
// expires. Route locks are short-lived, held for one duplicate check
// plus insert.
func (l *RedisLocker) LockRoute(ctx context.Context, fromID, toID string, timingType schedule.TimingType) (func(), error) {
	key := fmt.Sprintf("lock:route:%s:%s:%s", fromID, toID, timingType)
	token := uuid.New().String()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.routeTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring route lock: %w", err)
		}
		if acquired {
			return l.releaseFunc(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
}

func (l *RedisLocker) releaseFunc(key, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			logger.Log.WithError(err).WithField("key", key).Warn("failed to release lock")
		}
	}
}
