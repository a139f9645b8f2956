package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and pings it within ctx.
func NewRedisClient(ctx context.Context, opts ...RedisOption) (*redis.Client, error) {
	o := redisOptions(opts)
	client := redis.NewClient(o)

	ctx, cancel := context.WithTimeout(ctx, o.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.Addr, err)
	}
	return client, nil
}

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease implements Lease with SET NX PX and a token-checked release.
type RedisLease struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLease creates a lease over an existing client.
func NewRedisLease(client redis.UniversalClient, opts ...LeaseOption) *RedisLease {
	cfg := leaseConfig(opts)
	return &RedisLease{client: client, prefix: cfg.prefix, ttl: cfg.ttl}
}

func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = l.ttl
	}
	token := newToken()
	ok, err := l.client.SetNX(ctx, l.wrapKey(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return "", ErrLeaseHeld
	}
	return token, nil
}

func (l *RedisLease) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.wrapKey(key)}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (l *RedisLease) wrapKey(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}
