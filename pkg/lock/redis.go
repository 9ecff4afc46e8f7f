package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix = "lock:order:"
	pollInterval   = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still carries our token.
// KEYS[1] = lock key, ARGV[1] = token
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only while the key still carries our token.
// KEYS[1] = lock key, ARGV[1] = token, ARGV[2] = ttl in milliseconds
var refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every process talking to the same Redis.
// The TTL bounds how long a crashed holder can keep a key; a live holder
// refreshes it every third of the TTL until release.
type Redis struct {
	client *redis.Client
	wait   time.Duration
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis builds a Redis locker.
func NewRedis(client *redis.Client, wait, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, wait: wait, ttl: ttl, logger: logger}
}

// Acquire polls SET NX until it wins, the wait elapses or ctx ends.
func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	var deadline time.Time
	if r.wait > 0 {
		deadline = time.Now().Add(r.wait)
	}

	for {
		acquired, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if acquired {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	keepCtx, stopKeep := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.keepAlive(keepCtx, key, redisKey, token)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stopKeep()
			<-done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
				r.logger.Warn("failed to release order lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

// refreshInterval is how often a held lock's TTL is extended.
func refreshInterval(ttl time.Duration) time.Duration {
	every := ttl / 3
	if every < 10*time.Millisecond {
		every = 10 * time.Millisecond
	}
	return every
}

func (r *Redis) keepAlive(ctx context.Context, key, redisKey, token string) {
	ticker := time.NewTicker(refreshInterval(r.ttl))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			kept, err := refreshScript.Run(ctx, r.client, []string{redisKey}, token, r.ttl.Milliseconds()).Int64()
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				r.logger.Warn("failed to refresh order lock", zap.String("key", key), zap.Error(err))
			case kept == 0:
				r.logger.Error("order lock lost before release", zap.String("key", key))
				return
			}
		}
	}
}
