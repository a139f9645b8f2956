package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is the part of the go-redis options the service exposes.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	DialTimeout  time.Duration
}

// RedisOption adjusts RedisConfig.
type RedisOption func(*RedisConfig)

// WithRedisAddr sets the "host:port" address; empty keeps the default.
func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) {
		if addr != "" {
			c.Addr = addr
		}
	}
}

// WithRedisAuth selects the logical database and its password.
func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
		c.DB = db
	}
}

// WithRedisPool sizes the pool. Non-positive values keep the defaults.
func WithRedisPool(size, minIdle int, wait time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if size > 0 {
			c.PoolSize = size
		}
		if minIdle > 0 {
			c.MinIdleConns = minIdle
		}
		if wait > 0 {
			c.PoolTimeout = wait
		}
	}
}

func redisOptions(opts []RedisOption) *redis.Options {
	c := RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
		DialTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		PoolTimeout:  c.PoolTimeout,
		DialTimeout:  c.DialTimeout,
	}
}

// LeaseOption adjusts lease naming and expiry.
type LeaseOption func(*leaseSettings)

type leaseSettings struct {
	prefix string
	ttl    time.Duration
}

// WithLeasePrefix namespaces lease keys; empty keeps the default.
func WithLeasePrefix(prefix string) LeaseOption {
	return func(s *leaseSettings) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLeaseTTL is the expiry used when Acquire is called without one.
func WithLeaseTTL(ttl time.Duration) LeaseOption {
	return func(s *leaseSettings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func leaseConfig(opts []LeaseOption) leaseSettings {
	s := leaseSettings{prefix: "tasapull:lease", ttl: 10 * time.Minute}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
