package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "hostdesk:cache:"

// redisOpTimeout bounds each cache operation so a slow Redis never
// stalls a CLI command; misses are cheap, the API is the fallback.
const redisOpTimeout = 500 * time.Millisecond

type redisBackend struct {
	client *redis.Client
}

func newRedisBackend(addr string) *redisBackend {
	return &redisBackend{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  redisOpTimeout,
			ReadTimeout:  redisOpTimeout,
			WriteTimeout: redisOpTimeout,
		}),
	}
}

func (r *redisBackend) read(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (r *redisBackend) write(key string, data []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	// Redis expires the key itself; the embedded stamp still guards
	// against clock skew between writers.
	_ = r.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err()
}

func (r *redisBackend) remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	_ = r.client.Del(ctx, redisKeyPrefix+key).Err()
}

func (r *redisBackend) clearAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		_ = r.client.Del(ctx, iter.Val()).Err()
	}
}
