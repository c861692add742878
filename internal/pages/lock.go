package pages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises index mutations across processes. Unlock must be called
// with the token returned by Lock.
type Locker interface {
	Lock(ctx context.Context, key string) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (string, error) { return "", nil }
func (nopLocker) Unlock(context.Context, string, string) error { return nil }

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL expired cannot drop somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lock with a random owner token.
type RedisLocker struct {
	Rdb    *redis.Client
	Prefix string
	TTL    time.Duration
	Retry  time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{Rdb: rdb, Prefix: "webbuilder:lock:", TTL: ttl, Retry: 50 * time.Millisecond}
}

// Lock retries until the key is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	retry := l.Retry
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	for {
		ok, err := l.Rdb.SetNX(ctx, l.Prefix+key, token, l.TTL).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, key, ctx.Err())
		case <-time.After(retry):
		}
	}
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.Rdb, []string{l.Prefix + key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("unlock %s: %w", key, err)
	}
	return nil
}
