package clickhouse

import (
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Config describes the connection to the observation database.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	UseHTTP         bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration

	// server-side settings sent with every query
	AsyncInsert  bool
	WaitForAsync bool
	MaxExecTime  time.Duration
}

// Option mutates Config before the pool is opened.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Port:            9000,
		Database:        "default",
		User:            "default",
		MaxOpenConns:    8,
		MaxIdleConns:    4,
		ConnMaxLifetime: 10 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     30 * time.Second,
	}
}

// WithAddr sets host and port. A zero port keeps the default for the protocol.
func WithAddr(host string, port int) Option {
	return func(c *Config) {
		c.Host = host
		if port > 0 {
			c.Port = port
		}
	}
}

// WithAuth sets database and credentials.
func WithAuth(database, user, password string) Option {
	return func(c *Config) {
		if database != "" {
			c.Database = database
		}
		if user != "" {
			c.User = user
		}
		c.Password = password
	}
}

// WithPool bounds the connection pool.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(c *Config) {
		if maxOpen > 0 {
			c.MaxOpenConns = maxOpen
		}
		if maxIdle >= 0 {
			c.MaxIdleConns = maxIdle
		}
		if lifetime > 0 {
			c.ConnMaxLifetime = lifetime
		}
	}
}

// WithTimeouts sets dial and read timeouts; zero keeps the default.
func WithTimeouts(dial, read time.Duration) Option {
	return func(c *Config) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithHTTP switches to the HTTP interface.
func WithHTTP(on bool) Option {
	return func(c *Config) { c.UseHTTP = on }
}

// WithAsyncInsert enables server-side buffering of inserts.
func WithAsyncInsert(on, wait bool) Option {
	return func(c *Config) {
		c.AsyncInsert = on
		c.WaitForAsync = wait
	}
}

// WithMaxExecutionTime caps each query on the server.
func WithMaxExecutionTime(d time.Duration) Option {
	return func(c *Config) { c.MaxExecTime = d }
}

func (c Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("clickhouse: host is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("clickhouse: max idle conns %d exceeds max open %d", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

// settings maps the per-query options onto ClickHouse server settings.
func (c Config) settings() ch.Settings {
	s := ch.Settings{}
	if c.MaxExecTime > 0 {
		s["max_execution_time"] = int(c.MaxExecTime.Seconds())
	}
	if c.AsyncInsert {
		s["async_insert"] = 1
		if c.WaitForAsync {
			s["wait_for_async_insert"] = 1
		} else {
			s["wait_for_async_insert"] = 0
		}
	}
	return s
}

func (c Config) options() *ch.Options {
	proto := ch.Native
	if c.UseHTTP {
		proto = ch.HTTP
	}
	return &ch.Options{
		Addr:     []string{fmt.Sprintf("%s:%d", c.Host, c.Port)},
		Protocol: proto,
		Auth: ch.Auth{
			Database: c.Database,
			Username: c.User,
			Password: c.Password,
		},
		Settings:        c.settings(),
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}
