package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"alcyxob/fitgen/internal/logger"
)

const (
	redisKeyPrefix = "fitgen:lock:"
	retryInterval  = 25 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token, so an
// expired holder never releases a lock re-acquired by someone else.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes holders of the same key across processes.
// A lock expires after ttl if its holder dies without releasing it.
type RedisLocker struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisLocker(log *logger.Logger, addr string, ttl time.Duration) (*RedisLocker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisLocker{
		log: log.With("service", "RedisLocker"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
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

	return func() {
		// release with a fresh context: the caller's may already be cancelled
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, l.rdb, []string{redisKey}, token).Err(); err != nil {
			l.log.Warn("Failed to release lock", "key", key, "error", err)
		}
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}
