package backtest

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DailySummaryRow aggregates one trading date of closed trades.
type DailySummaryRow struct {
	TradingDate        time.Time       `json:"tradingDate"`
	PnL                decimal.Decimal `json:"pnl"`
	AvgPositionSize    decimal.Decimal `json:"avgPositionSize"`
	NumTrades          int             `json:"numTrades"`
	AvgDurationMinutes float64         `json:"avgTradeDurationMinutes"`
	Equity             decimal.Decimal `json:"equity"`
	PnLPct             decimal.Decimal `json:"pnlPct"`
	RunningMax         decimal.Decimal `json:"runningMax"`
	Drawdown           decimal.Decimal `json:"drawdown"`
}

// DrawdownPeriod is a closed interval during which the daily equity curve
// sat below its running maximum.
type DrawdownPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EquityPoint is one calendar-aligned row of the persisted equity curve.
type EquityPoint struct {
	TradingDate time.Time       `json:"tradingDate"`
	Equity      decimal.Decimal `json:"equity"`
	PnL         decimal.Decimal `json:"pnl"`
}

// DailySummary groups closed trades by trading date and builds the equity
// and drawdown series on top of startingCash. It keeps no state between
// calls and yields empty output for an empty trade list.
func DailySummary(trades []ClosedTrade, startingCash decimal.Decimal) ([]DailySummaryRow, []DrawdownPeriod) {
	if len(trades) == 0 {
		return nil, nil
	}

	byDate := make(map[int64][]ClosedTrade)
	var keys []int64
	for _, t := range trades {
		key := t.TradingDate.Unix()
		if _, ok := byDate[key]; !ok {
			keys = append(keys, key)
		}
		byDate[key] = append(byDate[key], t)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rows := make([]DailySummaryRow, 0, len(keys))
	equity := startingCash
	var runningMax decimal.Decimal
	for i, key := range keys {
		group := byDate[key]

		var pnl, sizeSum decimal.Decimal
		var durationSum float64
		for _, t := range group {
			pnl = pnl.Add(t.PnL)
			sizeSum = sizeSum.Add(t.PositionSize)
			durationSum += t.DurationMinutes
		}
		n := decimal.NewFromInt(int64(len(group)))

		equity = equity.Add(pnl)
		if i == 0 || equity.GreaterThan(runningMax) {
			runningMax = equity
		}

		// Equity may reach exactly zero; there is no floor on it. The
		// ratio columns are zero on such days rather than dividing by it.
		var pnlPct, drawdown decimal.Decimal
		if !equity.IsZero() {
			pnlPct = pnl.Div(equity).RoundBank(4)
		}
		if !runningMax.IsZero() {
			drawdown = equity.Div(runningMax).Sub(decimal.NewFromInt(1))
		}

		rows = append(rows, DailySummaryRow{
			TradingDate:        group[0].TradingDate,
			PnL:                pnl,
			AvgPositionSize:    sizeSum.Div(n),
			NumTrades:          len(group),
			AvgDurationMinutes: durationSum / float64(len(group)),
			Equity:             equity,
			PnLPct:             pnlPct,
			RunningMax:         runningMax,
			Drawdown:           drawdown,
		})
	}

	return rows, drawdownPeriods(rows)
}

// drawdownPeriods detects intervals where drawdown dips below zero. An
// interval opens on the first negative date after a flat one and closes on
// the first date back at exactly zero; a trailing open interval ends at the
// last row.
func drawdownPeriods(rows []DailySummaryRow) []DrawdownPeriod {
	var periods []DrawdownPeriod
	var start time.Time
	inDrawdown := false

	for _, row := range rows {
		switch {
		case row.Drawdown.IsNegative() && !inDrawdown:
			start = row.TradingDate
			inDrawdown = true
		case row.Drawdown.IsZero() && inDrawdown:
			periods = append(periods, DrawdownPeriod{Start: start, End: row.TradingDate})
			inDrawdown = false
		}
	}
	if inDrawdown {
		periods = append(periods, DrawdownPeriod{Start: start, End: rows[len(rows)-1].TradingDate})
	}
	return periods
}

// AlignCalendar spreads daily summary rows over every calendar date in
// [start, end], one row per date: missing dates forward-fill equity and
// zero-fill pnl, so a start date with no trades becomes the synthetic
// opening row carrying startingCash.
func AlignCalendar(rows []DailySummaryRow, start, end time.Time, startingCash decimal.Decimal) []EquityPoint {
	byDate := make(map[int64]DailySummaryRow, len(rows))
	for _, row := range rows {
		byDate[row.TradingDate.Unix()] = row
	}

	var points []EquityPoint
	equity := startingCash
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		pnl := decimal.Decimal{}
		if row, ok := byDate[d.Unix()]; ok {
			pnl = row.PnL
			equity = row.Equity
		}
		points = append(points, EquityPoint{TradingDate: d, Equity: equity, PnL: pnl})
	}
	return points
}
