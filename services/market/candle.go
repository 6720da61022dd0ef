package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for trading dates.
const DateLayout = "2006-01-02"

// rolloverHourUTC marks the start of the next forex trading date.
const rolloverHourUTC = 22

// Candle is one OHLC bar annotated with the derived fields the backtest
// engine reads. Prices are decimals end to end; prev-day aggregates are
// nullable because the first trading days of a series have no history.
type Candle struct {
	Ticker    string          `json:"ticker"`
	Timeframe string          `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`

	TradingDate  time.Time           `json:"tradingDate"`
	EMA20        float64             `json:"ema20"`
	PrevDayHigh  decimal.NullDecimal `json:"prevDayHigh"`
	PrevDayLow   decimal.NullDecimal `json:"prevDayLow"`
	Prev2DayHigh decimal.NullDecimal `json:"prev2DayHigh"`
	Prev2DayLow  decimal.NullDecimal `json:"prev2DayLow"`
}

// TradingDate assigns the forex trading date for a UTC instant. Bars at or
// after 22:00 UTC belong to the next calendar date.
func TradingDate(ts time.Time) time.Time {
	ts = ts.UTC()
	d := Date(ts)
	if ts.Hour() >= rolloverHourUTC {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// Date truncates an instant to midnight UTC.
func Date(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
