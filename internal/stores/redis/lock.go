package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"checkout-service/pkg/logkey"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("timed out waiting for lock")

// release only deletes the key if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short lived exclusive locks keyed by string.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

func NewLocker(client *redis.Client, ttl, wait time.Duration) *Locker {
	return &Locker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		poll:   50 * time.Millisecond,
	}
}

// Lock blocks until the lock is acquired, the wait budget is spent or ctx is done.
// The returned release func is safe to call once the lock has expired.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	key = lockKey(key)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx failed: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}

	release := func() {
		// the caller's ctx may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			slog.Error("failed to release lock", slog.String("key", key), slog.String(logkey.ERROR, err.Error()))
		}
	}
	return release, nil
}

func lockKey(key string) string {
	return fmt.Sprintf("checkout:lock:%s", key)
}
