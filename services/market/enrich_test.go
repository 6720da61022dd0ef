package market

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mk(ts time.Time, high, low, close float64) Candle {
	return Candle{
		Ticker:    "xauusd",
		Timeframe: "5min",
		Timestamp: ts,
		Open:      decimal.NewFromFloat(close),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(close),
	}
}

func TestTradingDate(t *testing.T) {
	tests := []struct {
		ts   string
		want string
	}{
		{"2024-03-04T21:59:59Z", "2024-03-04"},
		{"2024-03-04T22:00:00Z", "2024-03-05"},
		{"2024-03-04T23:30:00Z", "2024-03-05"},
		{"2024-03-05T00:00:00Z", "2024-03-05"},
		{"2024-03-05T10:00:00Z", "2024-03-05"},
	}
	for _, tt := range tests {
		ts, err := time.Parse(time.RFC3339, tt.ts)
		if err != nil {
			t.Fatal(err)
		}
		got := TradingDate(ts)
		if got.Format(DateLayout) != tt.want {
			t.Errorf("TradingDate(%s) = %s, want %s", tt.ts, got.Format(DateLayout), tt.want)
		}
	}
}

// threeDays builds 5-minute bars over three consecutive trading dates with
// distinct per-day ranges.
func threeDays(t *testing.T) []Candle {
	t.Helper()
	var bars []Candle
	days := []struct {
		date string
		high float64
		low  float64
	}{
		{"2024-03-04", 110, 90},
		{"2024-03-05", 108, 92},
		{"2024-03-06", 112, 88},
	}
	for _, d := range days {
		base, err := time.Parse(time.RFC3339, d.date+"T10:00:00Z")
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 4; i++ {
			bars = append(bars, mk(base.Add(time.Duration(i)*5*time.Minute), 100, 99, 100))
		}
		// The extremes land mid-day.
		bars[len(bars)-2].High = decimal.NewFromFloat(d.high)
		bars[len(bars)-2].Low = decimal.NewFromFloat(d.low)
	}
	return bars
}

func TestEnrichPrevDayRanges(t *testing.T) {
	enriched := Enrich(threeDays(t))

	// The first two trading dates lack two prior days and are dropped.
	if len(enriched) != 4 {
		t.Fatalf("got %d bars, want 4 (third day only)", len(enriched))
	}
	for _, b := range enriched {
		if !b.TradingDate.Equal(time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected trading date %s", b.TradingDate)
		}
		if !b.PrevDayHigh.Decimal.Equal(decimal.NewFromInt(108)) ||
			!b.PrevDayLow.Decimal.Equal(decimal.NewFromInt(92)) {
			t.Errorf("prev day range = %s/%s, want 108/92", b.PrevDayHigh.Decimal, b.PrevDayLow.Decimal)
		}
		if !b.Prev2DayHigh.Decimal.Equal(decimal.NewFromInt(110)) ||
			!b.Prev2DayLow.Decimal.Equal(decimal.NewFromInt(90)) {
			t.Errorf("two-day-ago range = %s/%s, want 110/90", b.Prev2DayHigh.Decimal, b.Prev2DayLow.Decimal)
		}
	}
}

func TestEnrichSortsAndDeduplicates(t *testing.T) {
	bars := threeDays(t)

	// Prepend a replacement for an existing timestamp and shuffle order:
	// the later occurrence in input order wins after the stable sort.
	dup := bars[len(bars)-1]
	dup.Close = decimal.NewFromFloat(555)
	shuffled := []Candle{bars[len(bars)-1]}
	shuffled = append(shuffled, bars[:len(bars)-1]...)
	shuffled = append(shuffled, dup)

	enriched := Enrich(shuffled)
	if len(enriched) != 4 {
		t.Fatalf("got %d bars, want 4", len(enriched))
	}
	last := enriched[len(enriched)-1]
	if !last.Close.Equal(decimal.NewFromFloat(555)) {
		t.Errorf("duplicate timestamp kept close %s, want the later row's 555", last.Close)
	}
}

func TestEnrichEMA(t *testing.T) {
	// With constant closes the EMA is the close itself; a step change must
	// move it toward the new price without reaching it in one bar.
	var bars []Candle
	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		bars = append(bars, mk(base.Add(time.Duration(i)*5*time.Minute), 101, 99, 100))
	}
	bars[29].Close = decimal.NewFromFloat(110)

	out := make([]Candle, len(bars))
	copy(out, bars)
	enriched := Enrich(out)
	if len(enriched) != 0 {
		t.Fatalf("single trading date should be dropped entirely, got %d bars", len(enriched))
	}

	// Spread the same closes over three dates to keep the final day.
	for i := range bars {
		bars[i].Timestamp = base.AddDate(0, 0, i/10).Add(time.Duration(i%10) * 5 * time.Minute)
	}
	enriched = Enrich(bars)
	if len(enriched) != 10 {
		t.Fatalf("got %d bars, want 10", len(enriched))
	}

	steady := enriched[len(enriched)-2].EMA20
	if math.Abs(steady-100) > 1e-9 {
		t.Errorf("steady-state EMA = %v, want 100", steady)
	}
	// alpha = 2/(span+1) = 2/21; one step toward 110 from 100.
	lastEMA := enriched[len(enriched)-1].EMA20
	want := 100 + (110-100)*2.0/21.0
	if math.Abs(lastEMA-want) > 1e-9 {
		t.Errorf("EMA after step = %v, want %v", lastEMA, want)
	}
}

func TestEnrichEmpty(t *testing.T) {
	if got := Enrich(nil); got != nil {
		t.Errorf("Enrich(nil) = %v, want nil", got)
	}
}
