// Package clickhouse manages a database/sql connection pool to ClickHouse
// with a functional-options DSN builder and idempotent schema setup.
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// ClientOption configures the connection.
type ClientOption func(*clientConfig)

type clientConfig struct {
	host         string
	port         int
	database     string
	user         string
	password     string
	maxOpen      int
	maxIdle      int
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	useHTTP      bool
	asyncInsert  bool
	waitForAsync bool
	maxExecTime  time.Duration
}

// WithHost sets the server host.
func WithHost(host string) ClientOption {
	return func(c *clientConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) ClientOption {
	return func(c *clientConfig) { c.port = port }
}

// WithDatabase selects the default database.
func WithDatabase(name string) ClientOption {
	return func(c *clientConfig) { c.database = name }
}

// WithCredentials sets user and password.
func WithCredentials(user, password string) ClientOption {
	return func(c *clientConfig) {
		c.user = user
		c.password = password
	}
}

// WithMaxConnections bounds the pool.
func WithMaxConnections(open, idle int) ClientOption {
	return func(c *clientConfig) {
		c.maxOpen = open
		c.maxIdle = idle
	}
}

// WithTimeouts sets dial, read, and write timeouts.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.dialTimeout = dial
		c.readTimeout = read
		c.writeTimeout = write
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(on bool) ClientOption {
	return func(c *clientConfig) { c.useHTTP = on }
}

// WithAsyncInsert enables server-side async inserts, optionally waiting for
// the flush before acknowledging.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *clientConfig) {
		c.asyncInsert = enabled
		c.waitForAsync = wait
	}
}

// WithMaxExecutionTime caps per-query execution time.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.maxExecTime = d }
}

// Client holds the connection pool.
type Client struct {
	db *sql.DB
}

// NewClient opens the pool and verifies connectivity with a ping.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		port:        9000,
		maxOpen:     10,
		maxIdle:     5,
		dialTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.host == "" {
		return nil, fmt.Errorf("clickhouse: host required")
	}

	db, err := sql.Open("clickhouse", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(cfg.maxOpen)
	db.SetMaxIdleConns(cfg.maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{db: db}, nil
}

func (c *clientConfig) dsn() string {
	scheme := "clickhouse://"
	if c.useHTTP {
		scheme = "clickhouse+http://"
	}

	params := url.Values{}
	if c.dialTimeout > 0 {
		params.Set("dial_timeout", c.dialTimeout.String())
	}
	if c.readTimeout > 0 {
		params.Set("read_timeout", c.readTimeout.String())
	}
	if c.maxExecTime > 0 {
		params.Set("max_execution_time", strconv.Itoa(int(c.maxExecTime.Seconds())))
	}
	if c.asyncInsert {
		params.Set("async_insert", "1")
		if c.waitForAsync {
			params.Set("wait_for_async_insert", "1")
		}
	}

	dsn := fmt.Sprintf("%s%s:%s@%s:%d/%s", scheme, c.user, c.password, c.host, c.port, c.database)
	if encoded := params.Encode(); encoded != "" {
		dsn += "?" + encoded
	}
	return dsn
}

// DB exposes the pool for query building in repositories.
func (c *Client) DB() *sql.DB {
	return c.db
}

// InitSchema executes DDL statements in order; each must be idempotent.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return nil
}

// Close drains the pool.
func (c *Client) Close() error {
	return c.db.Close()
}
