package backtest

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func closedTrade(tradingDay int, pnl, size float64, duration float64) ClosedTrade {
	return ClosedTrade{
		TradingDate:     day(tradingDay),
		PnL:             decimal.NewFromFloat(pnl),
		PositionSize:    decimal.NewFromFloat(size),
		DurationMinutes: duration,
	}
}

func TestDailySummary(t *testing.T) {
	cash := decimal.NewFromInt(10000)
	trades := []ClosedTrade{
		closedTrade(4, 393, 1, 10),
		closedTrade(4, -507, 3, 20),
		closedTrade(5, 500, 1, 10),
		closedTrade(6, -1000, 1, 10),
		closedTrade(7, 1000, 1, 10),
	}

	rows, periods := DailySummary(trades, cash)
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}

	// Day one: pnl nets to -114, sizes and durations average.
	first := rows[0]
	if !first.TradingDate.Equal(day(4)) || first.NumTrades != 2 {
		t.Fatalf("first row = %+v", first)
	}
	if !first.PnL.Equal(decimal.NewFromInt(-114)) {
		t.Errorf("day one pnl = %s, want -114", first.PnL)
	}
	if !first.Equity.Equal(decimal.NewFromInt(9886)) {
		t.Errorf("day one equity = %s, want 9886", first.Equity)
	}
	if !first.AvgPositionSize.Equal(decimal.NewFromInt(2)) {
		t.Errorf("avg size = %s, want 2", first.AvgPositionSize)
	}
	if first.AvgDurationMinutes != 15 {
		t.Errorf("avg duration = %v, want 15", first.AvgDurationMinutes)
	}
	// The running max seeds from the first day, so a losing first day is
	// not a drawdown.
	if !first.RunningMax.Equal(first.Equity) || !first.Drawdown.IsZero() {
		t.Errorf("first row runningMax/drawdown = %s/%s", first.RunningMax, first.Drawdown)
	}

	// No pnl is lost to the daily grouping.
	var total decimal.Decimal
	for _, row := range rows {
		total = total.Add(row.PnL)
	}
	if !cash.Add(total).Equal(rows[len(rows)-1].Equity) {
		t.Errorf("summed pnl %s does not reproduce final equity %s", total, rows[len(rows)-1].Equity)
	}

	// The third date dips below the running max, the fourth recovers exactly.
	if len(periods) != 1 {
		t.Fatalf("got %d drawdown periods, want 1: %+v", len(periods), periods)
	}
	if !periods[0].Start.Equal(day(6)) || !periods[0].End.Equal(day(7)) {
		t.Errorf("drawdown period = %+v, want day 6 to day 7", periods[0])
	}
}

func TestDailySummaryEquityWipedToZero(t *testing.T) {
	cash := decimal.NewFromInt(10000)
	trades := []ClosedTrade{
		closedTrade(4, -10000, 1, 10), // equity lands exactly on zero
		closedTrade(5, 500, 1, 10),
	}

	rows, _ := DailySummary(trades, cash)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	wiped := rows[0]
	if !wiped.Equity.IsZero() {
		t.Fatalf("day one equity = %s, want 0", wiped.Equity)
	}
	// Ratio columns have no meaningful value against zero equity; they
	// stay zero instead of failing the whole aggregation.
	if !wiped.PnLPct.IsZero() || !wiped.Drawdown.IsZero() {
		t.Errorf("zero-equity day ratios = %s/%s, want 0/0", wiped.PnLPct, wiped.Drawdown)
	}
	if !rows[1].Equity.Equal(decimal.NewFromInt(500)) {
		t.Errorf("day two equity = %s, want 500", rows[1].Equity)
	}
}

func TestDailySummaryIdempotent(t *testing.T) {
	cash := decimal.NewFromInt(10000)
	trades := []ClosedTrade{
		closedTrade(4, 393, 1, 10),
		closedTrade(5, -507, 1, 10),
	}

	rowsA, periodsA := DailySummary(trades, cash)
	rowsB, periodsB := DailySummary(trades, cash)
	if !reflect.DeepEqual(rowsA, rowsB) || !reflect.DeepEqual(periodsA, periodsB) {
		t.Error("repeated aggregation over the same trades diverged")
	}
}

func TestDailySummaryEmpty(t *testing.T) {
	rows, periods := DailySummary(nil, decimal.NewFromInt(10000))
	if rows != nil || periods != nil {
		t.Errorf("got %v, %v for no trades, want nil, nil", rows, periods)
	}
}

func TestDailySummaryUnorderedTrades(t *testing.T) {
	cash := decimal.NewFromInt(10000)
	ordered := []ClosedTrade{
		closedTrade(4, 100, 1, 10),
		closedTrade(5, -200, 1, 10),
	}
	shuffled := []ClosedTrade{ordered[1], ordered[0]}

	rowsA, _ := DailySummary(ordered, cash)
	rowsB, _ := DailySummary(shuffled, cash)
	if !reflect.DeepEqual(rowsA, rowsB) {
		t.Error("grouping depends on trade order")
	}
}

func TestAlignCalendar(t *testing.T) {
	cash := decimal.NewFromInt(10000)
	trades := []ClosedTrade{
		closedTrade(4, 100, 1, 10),
		closedTrade(5, 50, 1, 10),
		closedTrade(7, -30, 1, 10), // day 6 has no trades
	}
	rows, _ := DailySummary(trades, cash)

	points := AlignCalendar(rows, day(3), day(7), cash)
	// Exactly one row per calendar date.
	if len(points) != 5 {
		t.Fatalf("got %d points, want 5", len(points))
	}
	for i := 1; i < len(points); i++ {
		if !points[i].TradingDate.After(points[i-1].TradingDate) {
			t.Fatalf("dates not strictly increasing at %d: %s", i, points[i].TradingDate)
		}
	}

	// Day three has no trades yet: it is the synthetic opening row.
	if !points[0].TradingDate.Equal(day(3)) || !points[0].Equity.Equal(cash) || !points[0].PnL.IsZero() {
		t.Errorf("opening row = %+v", points[0])
	}
	// Day six forward-fills day five's equity with zero pnl.
	gap := points[3]
	if !gap.TradingDate.Equal(day(6)) {
		t.Fatalf("point 3 is %s, want day 6", gap.TradingDate)
	}
	if !gap.Equity.Equal(decimal.NewFromInt(10150)) || !gap.PnL.IsZero() {
		t.Errorf("gap day = %+v, want equity 10150 and zero pnl", gap)
	}
	if !points[4].Equity.Equal(decimal.NewFromInt(10120)) {
		t.Errorf("final equity = %s, want 10120", points[4].Equity)
	}
}

func TestAlignCalendarNoTrades(t *testing.T) {
	cash := decimal.NewFromInt(10000)

	points := AlignCalendar(nil, day(1), day(3), cash)
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3 (one per date)", len(points))
	}
	for i, p := range points {
		if !p.TradingDate.Equal(day(1 + i)) {
			t.Errorf("point %d dated %s, want day %d", i, p.TradingDate, 1+i)
		}
		if !p.Equity.Equal(cash) || !p.PnL.IsZero() {
			t.Errorf("point %d = %+v, want flat starting cash", i, p)
		}
	}
}

func TestAlignCalendarTradesOnStartDate(t *testing.T) {
	cash := decimal.NewFromInt(10000)
	rows, _ := DailySummary([]ClosedTrade{closedTrade(1, 250, 1, 10)}, cash)

	points := AlignCalendar(rows, day(1), day(2), cash)
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if !points[0].PnL.Equal(decimal.NewFromInt(250)) || !points[0].Equity.Equal(decimal.NewFromInt(10250)) {
		t.Errorf("start date row = %+v, want its summary pnl and equity", points[0])
	}
	if !points[1].Equity.Equal(decimal.NewFromInt(10250)) || !points[1].PnL.IsZero() {
		t.Errorf("carry-forward row = %+v", points[1])
	}
}
