// Package clickhouse is the candle store. Bars land in a ReplacingMergeTree
// keyed by (ticker, timeframe, timestamp) so re-ingesting an overlap window
// overwrites instead of duplicating.
package clickhouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// ErrNoCandles is returned when a read matches no rows.
var ErrNoCandles = errors.New("no candles found in store")

// Config locates the ClickHouse server.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Client wraps a native-protocol ClickHouse connection.
type Client struct {
	conn     driver.Conn
	database string
	logger   *zap.Logger
}

// NewClient opens and pings a ClickHouse connection.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{conn: conn, database: cfg.Database, logger: logger}, nil
}

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// EnsureSchema creates the database and candle table if missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.market_snapshot (
    ticker         LowCardinality(String),
    timeframe      LowCardinality(String),
    timestamp      DateTime64(3, 'UTC'),
    open           Decimal(18, 8),
    high           Decimal(18, 8),
    low            Decimal(18, 8),
    close          Decimal(18, 8),
    trading_date   Date,
    ema20          Float64,
    prev_day_high  Nullable(Decimal(18, 8)),
    prev_day_low   Nullable(Decimal(18, 8)),
    prev2_day_high Nullable(Decimal(18, 8)),
    prev2_day_low  Nullable(Decimal(18, 8)),
    ingested_at    DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(ingested_at)
ORDER BY (ticker, timeframe, timestamp)
`, c.database)
	if err := c.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create market_snapshot: %w", err)
	}
	c.logger.Info("candle schema ensured", zap.String("database", c.database))
	return nil
}
