package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// unlockScript deletes the key only while it still holds the caller's token,
// so an expired lock taken over by another instance is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only while the caller still owns
// the key.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a SET NX PX lock shared by every instance using the same
// Redis. A held lock is renewed every ttl/3 until it is released, so a batch
// may outlive ttl while a crashed holder still frees the key after ttl.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retry   time.Duration
	refresh time.Duration
	logger  zerolog.Logger
}

// NewRedisLocker returns a locker whose keys expire ttl after the holder's
// last renewal. Waiters poll every retry interval.
func NewRedisLocker(client *redis.Client, ttl, retry time.Duration, logger zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &RedisLocker{client: client, ttl: ttl, retry: retry, refresh: ttl / 3, logger: logger}
}

// Lock blocks until the key is acquired or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := unlockScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.Warn().Err(err).Str("key", key).Msg("failed to release redis lock")
			}
		})
	}, nil
}

// keepAlive renews key until stop is closed or the key is no longer ours.
func (r *RedisLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			// The key lives until ttl; try again on the next tick.
			r.logger.Warn().Err(err).Str("key", key).Msg("failed to renew redis lock")
			continue
		}
		if n == 0 {
			r.logger.Error().Str("key", key).Msg("redis lock lost before release")
			return
		}
	}
}
