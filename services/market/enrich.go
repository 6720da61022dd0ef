package market

import (
	"sort"

	"github.com/cinar/indicator"
	"github.com/shopspring/decimal"
)

const emaSpan = 20

// dayRange is the aggregate high/low of one trading date.
type dayRange struct {
	high decimal.Decimal
	low  decimal.Decimal
}

// Enrich sorts and deduplicates raw bars, then computes the derived fields:
// trading date under the 22:00 UTC rollover, EMA20 over closes, and the
// previous / second-previous trading-day highs and lows. Bars with fewer
// than two prior trading days are dropped so downstream consumers only see
// fully annotated rows.
func Enrich(bars []Candle) []Candle {
	if len(bars) == 0 {
		return nil
	}

	out := make([]Candle, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	// Dedupe on timestamp, keeping the later occurrence. Re-synced bars
	// supersede what was previously fetched.
	deduped := out[:0]
	for _, b := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(b.Timestamp) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	out = deduped

	for i := range out {
		out[i].TradingDate = TradingDate(out[i].Timestamp)
	}

	closes := make([]float64, len(out))
	for i, b := range out {
		closes[i], _ = b.Close.Float64()
	}
	ema := indicator.Ema(emaSpan, closes)
	for i := range out {
		out[i].EMA20 = ema[i]
	}

	// Aggregate each trading date's high/low in first-seen order.
	var dates []int64
	ranges := make(map[int64]dayRange)
	for _, b := range out {
		key := b.TradingDate.Unix()
		r, ok := ranges[key]
		if !ok {
			dates = append(dates, key)
			ranges[key] = dayRange{high: b.High, low: b.Low}
			continue
		}
		if b.High.GreaterThan(r.high) {
			r.high = b.High
		}
		if b.Low.LessThan(r.low) {
			r.low = b.Low
		}
		ranges[key] = r
	}

	// Shift by one and two trading days.
	prev1 := make(map[int64]dayRange, len(dates))
	prev2 := make(map[int64]dayRange, len(dates))
	for i, key := range dates {
		if i >= 1 {
			prev1[key] = ranges[dates[i-1]]
		}
		if i >= 2 {
			prev2[key] = ranges[dates[i-2]]
		}
	}

	enriched := out[:0]
	for _, b := range out {
		key := b.TradingDate.Unix()
		if r, ok := prev1[key]; ok {
			b.PrevDayHigh = decimal.NewNullDecimal(r.high)
			b.PrevDayLow = decimal.NewNullDecimal(r.low)
		}
		if r, ok := prev2[key]; ok {
			b.Prev2DayHigh = decimal.NewNullDecimal(r.high)
			b.Prev2DayLow = decimal.NewNullDecimal(r.low)
		}
		// Fewer than two prior trading days: partial-history rows
		// never reach the engine.
		if !b.PrevDayHigh.Valid || !b.Prev2DayHigh.Valid {
			continue
		}
		enriched = append(enriched, b)
	}
	return enriched
}
