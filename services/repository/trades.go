package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TradeType separates journaled live trades from simulated ones.
type TradeType string

const (
	TradeTypeReal      TradeType = "real"
	TradeTypeSimulated TradeType = "simulated"
)

// Trade is one journal entry. ExitPrice and ExitTime stay null while the
// trade is open.
type Trade struct {
	ID          int64               `json:"id"`
	Ticker      string              `json:"ticker"`
	Direction   string              `json:"direction"`
	EntryPrice  decimal.Decimal     `json:"entryPrice"`
	ExitPrice   decimal.NullDecimal `json:"exitPrice"`
	Size        decimal.Decimal     `json:"size"`
	EntryTime   time.Time           `json:"entryTime"`
	ExitTime    *time.Time          `json:"exitTime"`
	TradingDate time.Time           `json:"tradingDate"`
	Type        TradeType           `json:"type"`
	Notes       *string             `json:"notes"`
	CreatedAt   time.Time           `json:"createdAt"`
}

const tradeColumns = `id, ticker, direction, entry_price, exit_price, size,
entry_time, exit_time, trading_date, type, notes, created_at`

// CreateTrade inserts a journal entry and returns it with id and created_at
// filled in.
func (db *Database) CreateTrade(ctx context.Context, t Trade) (Trade, error) {
	query := fmt.Sprintf(`
INSERT INTO trades (ticker, direction, entry_price, exit_price, size,
                    entry_time, exit_time, trading_date, type, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING %s`, tradeColumns)

	row := db.pool.QueryRow(ctx, query,
		t.Ticker, t.Direction, t.EntryPrice, t.ExitPrice, t.Size,
		t.EntryTime, t.ExitTime, t.TradingDate, t.Type, t.Notes)
	created, err := scanTrade(row)
	if err != nil {
		return Trade{}, fmt.Errorf("create trade: %w", err)
	}
	return created, nil
}

// ListTrades returns the newest journal entries up to limit.
func (db *Database) ListTrades(ctx context.Context, limit int) ([]Trade, error) {
	query := fmt.Sprintf(`SELECT %s FROM trades ORDER BY entry_time DESC LIMIT $1`, tradeColumns)
	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// TradesByTickerDate returns one ticker's journal entries for a trading
// date, filtered by type, in entry order.
func (db *Database) TradesByTickerDate(ctx context.Context, ticker string, tradingDate time.Time, typ TradeType) ([]Trade, error) {
	query := fmt.Sprintf(`
SELECT %s FROM trades
WHERE ticker = $1 AND trading_date = $2 AND type = $3
ORDER BY entry_time`, tradeColumns)
	rows, err := db.pool.Query(ctx, query, ticker, tradingDate, typ)
	if err != nil {
		return nil, fmt.Errorf("trades by ticker/date: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// DeleteTrade removes a journal entry; ErrTradeNotFound if absent.
func (db *Database) DeleteTrade(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM trades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %d: %w", id, ErrTradeNotFound)
	}
	return nil
}

func scanTrade(row pgx.Row) (Trade, error) {
	var t Trade
	err := row.Scan(
		&t.ID, &t.Ticker, &t.Direction, &t.EntryPrice, &t.ExitPrice, &t.Size,
		&t.EntryTime, &t.ExitTime, &t.TradingDate, &t.Type, &t.Notes, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Trade{}, ErrTradeNotFound
		}
		return Trade{}, err
	}
	return t, nil
}

func collectTrades(rows pgx.Rows) ([]Trade, error) {
	var trades []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}
