package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"

	applogger "TasaPull/pkg/logger"
)

// Client owns the database/sql pool opened through the clickhouse-go driver.
type Client struct {
	db  *sql.DB
	cfg Config
	log *applogger.Logger
}

// NewClient opens the pool and pings the server once. l may be nil.
func NewClient(ctx context.Context, l *applogger.Logger, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	db := ch.OpenDB(cfg.options())
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	c := &Client{db: db, cfg: cfg, log: l}
	c.debug("clickhouse connected", applogger.String("host", cfg.Host), applogger.Int("port", cfg.Port),
		applogger.String("database", cfg.Database), applogger.Bool("http", cfg.UseHTTP))
	return c, nil
}

// DB exposes the pool to repositories.
func (c *Client) DB() *sql.DB { return c.db }

// Database is the configured database name.
func (c *Client) Database() string { return c.cfg.Database }

// Health pings the server and fails when the pool is saturated.
func (c *Client) Health(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}
	if st := c.db.Stats(); st.MaxOpenConnections > 0 && st.InUse >= st.MaxOpenConnections && st.WaitCount > 0 {
		return fmt.Errorf("clickhouse: pool exhausted (%d in use, %d waiting)", st.InUse, st.WaitCount)
	}
	return nil
}

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	start := time.Now()
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema (statement %d: %s): %w", i+1, firstLine(stmt), err)
		}
	}
	c.debug("clickhouse schema ready", applogger.Int("statements", len(stmts)), applogger.Duration("took", time.Since(start)))
	return nil
}

// Close releases the pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Client) debug(msg string, fields ...applogger.Field) {
	if c.log != nil {
		c.log.Debug(msg, fields...)
	}
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		stmt = stmt[:i]
	}
	return stmt
}
