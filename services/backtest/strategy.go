package backtest

import (
	"errors"
	"fmt"

	"martlet/services/market"
)

// ErrUnknownStrategy rejects strategy names without a registered policy.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Policy decides whether to open a position on the current bar. It gets read
// access to the engine state and the current and previous bars; the engine
// owns everything else (exits, re-entry gating, the next-bar fill).
type Policy interface {
	Name() string
	Evaluate(st *State, cur, prev market.Candle) (Side, bool)
}

// PreviousDayBreakout opens long when the close breaks above the previous
// trading day's high and short when it breaks below its low. Long is
// evaluated first and wins when both trigger on the same bar.
type PreviousDayBreakout struct{}

func (PreviousDayBreakout) Name() string { return "previous_day_breakout" }

func (PreviousDayBreakout) Evaluate(_ *State, cur, _ market.Candle) (Side, bool) {
	if cur.PrevDayHigh.Valid && cur.Close.GreaterThan(cur.PrevDayHigh.Decimal) {
		return SideLong, true
	}
	if cur.PrevDayLow.Valid && cur.Close.LessThan(cur.PrevDayLow.Decimal) {
		return SideShort, true
	}
	return "", false
}

// CompressionBreakoutScalp is the same breakout test gated on compression:
// yesterday's range must nest strictly inside the range two days prior.
type CompressionBreakoutScalp struct{}

func (CompressionBreakoutScalp) Name() string { return "compression_breakout_scalp" }

func (CompressionBreakoutScalp) Evaluate(st *State, cur, prev market.Candle) (Side, bool) {
	if !cur.PrevDayHigh.Valid || !cur.PrevDayLow.Valid || !cur.Prev2DayHigh.Valid || !cur.Prev2DayLow.Valid {
		return "", false
	}
	compressed := cur.PrevDayHigh.Decimal.LessThan(cur.Prev2DayHigh.Decimal) &&
		cur.PrevDayLow.Decimal.GreaterThan(cur.Prev2DayLow.Decimal)
	if !compressed {
		return "", false
	}
	return PreviousDayBreakout{}.Evaluate(st, cur, prev)
}

var policies = map[string]Policy{
	PreviousDayBreakout{}.Name():      PreviousDayBreakout{},
	CompressionBreakoutScalp{}.Name(): CompressionBreakoutScalp{},
}

// PolicyByName resolves a registered strategy policy.
func PolicyByName(name string) (Policy, error) {
	p, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return p, nil
}

// StrategyNames lists the registered policies.
func StrategyNames() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	return names
}
