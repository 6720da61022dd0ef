// Package repository is the relational store: the trade journal, user
// accounts, and persisted backtest results live in Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound  = errors.New("user not found in datasource")
	ErrTradeNotFound = errors.New("trade not found in datasource")
	ErrNoResults     = errors.New("no backtest results found in datasource")
)

// Database holds the connection pool.
type Database struct {
	pool *pgxpool.Pool
}

// NewDatabase creates a pool, registers the shopspring decimal codec on
// every connection, and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Database{pool: pool}, nil
}

// Ping verifies connectivity.
func (db *Database) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }

// Close releases the pool.
func (db *Database) Close() { db.pool.Close() }

// EnsureSchema creates the journal tables if missing.
func (db *Database) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id              BIGSERIAL PRIMARY KEY,
			username        TEXT NOT NULL UNIQUE,
			email           TEXT NOT NULL,
			hashed_password TEXT NOT NULL,
			is_active       BOOLEAN NOT NULL DEFAULT TRUE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id           BIGSERIAL PRIMARY KEY,
			ticker       TEXT NOT NULL,
			direction    TEXT NOT NULL,
			entry_price  NUMERIC NOT NULL,
			exit_price   NUMERIC,
			size         NUMERIC NOT NULL,
			entry_time   TIMESTAMPTZ NOT NULL,
			exit_time    TIMESTAMPTZ,
			trading_date DATE NOT NULL,
			type         TEXT NOT NULL DEFAULT 'real',
			notes        TEXT,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS backtest_results (
			ticker       TEXT NOT NULL,
			timeframe    TEXT NOT NULL,
			trading_date DATE NOT NULL,
			strategy     TEXT NOT NULL,
			equity       NUMERIC NOT NULL,
			pnl          NUMERIC NOT NULL,
			PRIMARY KEY (ticker, timeframe, trading_date, strategy)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
