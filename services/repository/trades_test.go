package repository

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// fakeRow plays one result tuple back into scan destinations.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r.vals))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

// fakeTradeRows is a canned result set; only the methods collectTrades
// touches are implemented.
type fakeTradeRows struct {
	pgx.Rows
	tuples [][]any
	idx    int
	err    error
}

func (r *fakeTradeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.tuples)
}

func (r *fakeTradeRows) Scan(dest ...any) error {
	return fakeRow{vals: r.tuples[r.idx-1]}.Scan(dest...)
}

func (r *fakeTradeRows) Err() error { return r.err }

func tradeTuple(id int64, exitPrice decimal.NullDecimal, exitTime *time.Time, notes *string) []any {
	entry := time.Date(2024, 3, 6, 10, 5, 0, 0, time.UTC)
	return []any{
		id, "xauusd", "long",
		decimal.NewFromFloat(2330.5), exitPrice, decimal.NewFromFloat(1.25),
		entry, exitTime,
		time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		TradeTypeReal, notes,
		entry.Add(time.Second),
	}
}

func TestScanTrade(t *testing.T) {
	exit := time.Date(2024, 3, 6, 11, 0, 0, 0, time.UTC)
	notes := "breakout follow-through"

	t.Run("closed trade", func(t *testing.T) {
		row := fakeRow{vals: tradeTuple(7, decimal.NewNullDecimal(decimal.NewFromFloat(2334.5)), &exit, &notes)}
		tr, err := scanTrade(row)
		if err != nil {
			t.Fatal(err)
		}
		if tr.ID != 7 || tr.Ticker != "xauusd" || tr.Type != TradeTypeReal {
			t.Errorf("key fields = %d/%s/%s", tr.ID, tr.Ticker, tr.Type)
		}
		if !tr.ExitPrice.Valid || !tr.ExitPrice.Decimal.Equal(decimal.NewFromFloat(2334.5)) {
			t.Errorf("exit price = %+v, want valid 2334.5", tr.ExitPrice)
		}
		if tr.ExitTime == nil || !tr.ExitTime.Equal(exit) || tr.Notes == nil || *tr.Notes != notes {
			t.Errorf("exit time/notes = %v/%v", tr.ExitTime, tr.Notes)
		}
	})

	t.Run("open trade keeps nulls", func(t *testing.T) {
		row := fakeRow{vals: tradeTuple(8, decimal.NullDecimal{}, nil, nil)}
		tr, err := scanTrade(row)
		if err != nil {
			t.Fatal(err)
		}
		if tr.ExitPrice.Valid || tr.ExitTime != nil || tr.Notes != nil {
			t.Errorf("open trade carries exit data: %+v", tr)
		}
	})

	t.Run("no rows maps to sentinel", func(t *testing.T) {
		if _, err := scanTrade(fakeRow{err: pgx.ErrNoRows}); !errors.Is(err, ErrTradeNotFound) {
			t.Errorf("got %v, want ErrTradeNotFound", err)
		}
	})
}

func TestCollectTrades(t *testing.T) {
	rows := &fakeTradeRows{tuples: [][]any{
		tradeTuple(1, decimal.NullDecimal{}, nil, nil),
		tradeTuple(2, decimal.NullDecimal{}, nil, nil),
	}}

	trades, err := collectTrades(rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 || trades[0].ID != 1 || trades[1].ID != 2 {
		t.Fatalf("got %+v, want trades 1 and 2 in order", trades)
	}
}

func TestCollectTradesIterationError(t *testing.T) {
	iterErr := errors.New("connection reset")
	rows := &fakeTradeRows{err: iterErr}

	if _, err := collectTrades(rows); !errors.Is(err, iterErr) {
		t.Errorf("got %v, want the iteration error surfaced", err)
	}
}
