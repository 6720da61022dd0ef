package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// BacktestResult is one calendar-aligned equity-curve row keyed by
// (ticker, timeframe, trading_date, strategy).
type BacktestResult struct {
	Ticker      string          `json:"ticker"`
	Timeframe   string          `json:"timeframe"`
	Strategy    string          `json:"strategy"`
	TradingDate time.Time       `json:"tradingDate"`
	Equity      decimal.Decimal `json:"equity"`
	PnL         decimal.Decimal `json:"pnl"`
}

// UpsertResults writes an equity curve in one batch. Re-running a backtest
// for the same key overwrites, never duplicates.
func (db *Database) UpsertResults(ctx context.Context, results []BacktestResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`
INSERT INTO backtest_results (ticker, timeframe, trading_date, strategy, equity, pnl)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (ticker, timeframe, trading_date, strategy)
DO UPDATE SET equity = EXCLUDED.equity, pnl = EXCLUDED.pnl`,
			r.Ticker, r.Timeframe, r.TradingDate, r.Strategy, r.Equity, r.PnL)
	}
	br := db.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert results: %w", err)
		}
	}
	return nil
}

// ResultsByKey returns a stored equity curve ordered by trading date;
// ErrNoResults when the key has never been run.
func (db *Database) ResultsByKey(ctx context.Context, strategy, ticker, timeframe string) ([]BacktestResult, error) {
	rows, err := db.pool.Query(ctx, `
SELECT ticker, timeframe, strategy, trading_date, equity, pnl
FROM backtest_results
WHERE strategy = $1 AND ticker = $2 AND timeframe = $3
ORDER BY trading_date`, strategy, ticker, timeframe)
	if err != nil {
		return nil, fmt.Errorf("results by key: %w", err)
	}
	defer rows.Close()

	var results []BacktestResult
	for rows.Next() {
		var r BacktestResult
		if err := rows.Scan(&r.Ticker, &r.Timeframe, &r.Strategy, &r.TradingDate, &r.Equity, &r.PnL); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s/%s/%s: %w", strategy, ticker, timeframe, ErrNoResults)
	}
	return results, nil
}
