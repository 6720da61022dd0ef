package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"martlet/services/market"
)

var (
	// ErrInvalidInput rejects candle sequences the engine cannot walk:
	// fewer than two bars, or timestamps out of order.
	ErrInvalidInput = errors.New("invalid candle sequence")
)

// Side of a simulated position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ExitReason labels why a simulated position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitEndOfDay   ExitReason = "eod_close"
	ExitMaxHolding ExitReason = "max_holding_bars"
)

// barWidthMinutes is added to every trade duration: a fill at a bar's
// timestamp is only known once that 5-minute bar has closed.
const barWidthMinutes = 5

// Position is a simulated open position. It lives strictly between one
// entry bar and one exit bar within a single run.
type Position struct {
	Side          Side
	EntryPrice    decimal.Decimal
	EntryTime     time.Time
	EntryBarIndex int
}

// ClosedTrade is emitted when a position exits and never mutated afterwards.
// MaxDrawdown is the running maximum drawdown snapshot after this trade.
type ClosedTrade struct {
	TradeID         int             `json:"tradeId"`
	TradingDate     time.Time       `json:"tradingDate"`
	Side            Side            `json:"side"`
	PositionSize    decimal.Decimal `json:"positionSize"`
	EntryTime       time.Time       `json:"entryTime"`
	ExitTime        time.Time       `json:"exitTime"`
	EntryPrice      decimal.Decimal `json:"entryPrice"`
	ExitPrice       decimal.Decimal `json:"exitPrice"`
	DurationMinutes float64         `json:"tradeDurationMinutes"`
	ExitReason      ExitReason      `json:"exitReason"`
	PnL             decimal.Decimal `json:"pnl"`
	Drawdown        decimal.Decimal `json:"drawdown"`
	MaxDrawdown     decimal.Decimal `json:"maxDrawdown"`
}

// State is the simulation state owned exclusively by one Run call. Policies
// get read access through the pointer handed to Evaluate; only the engine
// mutates it.
type State struct {
	Equity      decimal.Decimal
	PeakEquity  decimal.Decimal
	MaxDrawdown decimal.Decimal

	open      *Position
	activeDay time.Time // zero when no entry has claimed the day
	trades    []ClosedTrade
	settings  Settings
}

// OpenPosition returns the currently open position, or nil when flat.
func (st *State) OpenPosition() *Position { return st.open }

func newState(settings Settings) *State {
	return &State{
		Equity:     settings.Account.StartingCash,
		PeakEquity: settings.Account.StartingCash,
		settings:   settings,
	}
}

// openTrade records an entry filled at the next bar's open. The signal
// bar's trading date claims the day.
func (st *State) openTrade(side Side, entryPrice decimal.Decimal, entryTime time.Time, entryIndex int, signalDay time.Time) {
	st.open = &Position{
		Side:          side,
		EntryPrice:    entryPrice,
		EntryTime:     entryTime,
		EntryBarIndex: entryIndex,
	}
	st.activeDay = signalDay
}

// closeTrade settles the open position at exitPrice, updates equity and the
// drawdown trackers in the same step, and appends the trade record under the
// trading date of the bar on which the exit was detected.
func (st *State) closeTrade(exitPrice decimal.Decimal, exitTime time.Time, reason ExitReason, detectedOn market.Candle) {
	pos := st.open
	size := PositionSize(st.Equity, st.settings)

	var rawPnL decimal.Decimal
	switch reason {
	case ExitTakeProfit:
		rawPnL = st.settings.Strategy.TakeProfit
	case ExitStopLoss:
		rawPnL = st.settings.Strategy.StopLoss.Neg()
	default:
		rawPnL = exitPrice.Sub(pos.EntryPrice)
		if pos.Side == SideShort {
			rawPnL = rawPnL.Neg()
		}
	}

	leverage := decimal.NewFromInt(int64(st.settings.Account.Leverage))
	pnl := rawPnL.Mul(leverage).Sub(st.settings.Account.Commission).Mul(size).RoundBank(2)

	st.Equity = st.Equity.Add(pnl)
	if st.Equity.GreaterThan(st.PeakEquity) {
		st.PeakEquity = st.Equity
	}
	drawdown := st.PeakEquity.Sub(st.Equity)
	if drawdown.GreaterThan(st.MaxDrawdown) {
		st.MaxDrawdown = drawdown
	}

	st.trades = append(st.trades, ClosedTrade{
		TradeID:         pos.EntryBarIndex,
		TradingDate:     detectedOn.TradingDate,
		Side:            pos.Side,
		PositionSize:    size,
		EntryTime:       pos.EntryTime,
		ExitTime:        exitTime,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       exitPrice,
		DurationMinutes: exitTime.Sub(pos.EntryTime).Minutes() + barWidthMinutes,
		ExitReason:      reason,
		PnL:             pnl,
		Drawdown:        drawdown,
		MaxDrawdown:     st.MaxDrawdown,
	})
	st.open = nil
}

// Run walks the candle sequence once and returns the closed trades in exit
// order. It is deterministic, performs no I/O, and owns its State for the
// duration of the call, so concurrent runs over a shared read-only candle
// slice are safe.
func Run(candles []market.Candle, settings Settings, policy Policy, enableTimeFilter bool) ([]ClosedTrade, error) {
	if len(candles) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 candles, got %d", ErrInvalidInput, len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp.Before(candles[i-1].Timestamp) {
			return nil, fmt.Errorf("%w: timestamps out of order at index %d", ErrInvalidInput, i)
		}
	}

	st := newState(settings)
	strat := settings.Strategy

	for i := 1; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]

		if st.open != nil {
			st.evaluateExit(i, cur, prev)
			// An exit bar never evaluates entries, and a still-open
			// position blocks them anyway.
			continue
		}

		if !st.activeDay.IsZero() && st.activeDay.Equal(cur.TradingDate) {
			continue
		}
		if enableTimeFilter && !strat.EntryWindowContains(cur.Timestamp) {
			continue
		}

		side, ok := policy.Evaluate(st, cur, prev)
		if !ok {
			continue
		}
		if i+1 >= len(candles) {
			// Fills happen on the next bar's open; no next bar, no trade.
			continue
		}
		next := candles[i+1]
		st.openTrade(side, next.Open, next.Timestamp, i+1, cur.TradingDate)
	}

	return st.trades, nil
}

// evaluateExit applies the exit rules for bar i in fixed priority order:
// stop, target, max holding period, end-of-day flatten. At most one fires.
func (st *State) evaluateExit(i int, cur, prev market.Candle) {
	pos := st.open
	strat := st.settings.Strategy

	switch pos.Side {
	case SideLong:
		if stop := pos.EntryPrice.Sub(strat.StopLoss); cur.Low.LessThanOrEqual(stop) {
			st.closeTrade(stop, cur.Timestamp, ExitStopLoss, cur)
			if strat.TradeUntilWin {
				st.activeDay = time.Time{}
			}
			return
		}
		if target := pos.EntryPrice.Add(strat.TakeProfit); cur.High.GreaterThanOrEqual(target) {
			st.closeTrade(target, cur.Timestamp, ExitTakeProfit, cur)
			if strat.TradeUntilLoss {
				st.activeDay = time.Time{}
			}
			return
		}
	case SideShort:
		if stop := pos.EntryPrice.Add(strat.StopLoss); cur.High.GreaterThanOrEqual(stop) {
			st.closeTrade(stop, cur.Timestamp, ExitStopLoss, cur)
			if strat.TradeUntilWin {
				st.activeDay = time.Time{}
			}
			return
		}
		if target := pos.EntryPrice.Sub(strat.TakeProfit); cur.Low.LessThanOrEqual(target) {
			st.closeTrade(target, cur.Timestamp, ExitTakeProfit, cur)
			if strat.TradeUntilLoss {
				st.activeDay = time.Time{}
			}
			return
		}
	}

	if strat.MaxHoldingBars > 0 && i-pos.EntryBarIndex >= strat.MaxHoldingBars {
		st.closeTrade(cur.Close, cur.Timestamp, ExitMaxHolding, cur)
		return
	}

	// Day rollover is detected one bar late: flatten at the outgoing
	// date's last bar. Only applies to positions already open on that
	// bar, not ones filled on the current one.
	if pos.EntryBarIndex < i && !cur.TradingDate.Equal(prev.TradingDate) {
		st.closeTrade(prev.Close, prev.Timestamp, ExitEndOfDay, cur)
	}
}
