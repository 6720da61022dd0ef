package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"martlet/services/market"
)

const candleColumns = `ticker, timeframe, timestamp, open, high, low, close,
trading_date, ema20, prev_day_high, prev_day_low, prev2_day_high, prev2_day_low`

// InsertCandles writes enriched bars in one batch. The ReplacingMergeTree
// key makes re-inserts of an overlap window an upsert.
func (c *Client) InsertCandles(ctx context.Context, bars []market.Candle) error {
	if len(bars) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.market_snapshot (%s)", c.database, candleColumns))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, b := range bars {
		err := batch.Append(
			b.Ticker,
			b.Timeframe,
			b.Timestamp,
			b.Open,
			b.High,
			b.Low,
			b.Close,
			b.TradingDate,
			b.EMA20,
			nullable(b.PrevDayHigh),
			nullable(b.PrevDayLow),
			nullable(b.Prev2DayHigh),
			nullable(b.Prev2DayLow),
		)
		if err != nil {
			return fmt.Errorf("append candle %s: %w", b.Timestamp, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	c.logger.Debug("candles inserted", zap.Int("rows", len(bars)))
	return nil
}

// CandlesByTickerTimeframe returns annotated bars strictly ordered by
// timestamp, starting at from. FINAL collapses replaced rows.
func (c *Client) CandlesByTickerTimeframe(ctx context.Context, ticker, timeframe string, from time.Time) ([]market.Candle, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM %s.market_snapshot FINAL
WHERE ticker = ? AND timeframe = ? AND timestamp >= ?
ORDER BY timestamp`, candleColumns, c.database)

	rows, err := c.conn.Query(ctx, query, ticker, timeframe, from)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var candles []market.Candle
	for rows.Next() {
		b, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoCandles, ticker, timeframe)
	}
	return candles, nil
}

// LastCandleTimestamp returns the newest stored bar time for the key, or
// ok=false when the series is empty.
func (c *Client) LastCandleTimestamp(ctx context.Context, ticker, timeframe string) (time.Time, bool, error) {
	query := fmt.Sprintf(`
SELECT count(), max(timestamp)
FROM %s.market_snapshot
WHERE ticker = ? AND timeframe = ?`, c.database)

	var count uint64
	var last time.Time
	if err := c.conn.QueryRow(ctx, query, ticker, timeframe).Scan(&count, &last); err != nil {
		return time.Time{}, false, fmt.Errorf("query last timestamp: %w", err)
	}
	if count == 0 {
		return time.Time{}, false, nil
	}
	return last.UTC(), true, nil
}

// rowScanner is the slice of driver.Rows that scanCandle needs.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCandle maps one market_snapshot row, translating the nullable
// prev-day columns into NullDecimal fields.
func scanCandle(row rowScanner) (market.Candle, error) {
	var b market.Candle
	var pdh, pdl, p2dh, p2dl *decimal.Decimal
	err := row.Scan(
		&b.Ticker, &b.Timeframe, &b.Timestamp,
		&b.Open, &b.High, &b.Low, &b.Close,
		&b.TradingDate, &b.EMA20,
		&pdh, &pdl, &p2dh, &p2dl,
	)
	if err != nil {
		return market.Candle{}, err
	}
	b.PrevDayHigh = fromPtr(pdh)
	b.PrevDayLow = fromPtr(pdl)
	b.Prev2DayHigh = fromPtr(p2dh)
	b.Prev2DayLow = fromPtr(p2dl)
	return b, nil
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func fromPtr(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*p)
}
