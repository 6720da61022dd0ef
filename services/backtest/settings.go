package backtest

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSettings are the account parameters for one run. Immutable once
// handed to Run.
type AccountSettings struct {
	StartingCash decimal.Decimal `json:"startingCash"`
	Commission   decimal.Decimal `json:"commission"`
	Leverage     int             `json:"leverage"`
}

// ClockTime is a time-of-day bound for the optional entry filter.
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (c ClockTime) minutes() int { return c.Hour*60 + c.Minute }

// StrategySettings are the per-run strategy parameters. TakeProfit and
// StopLoss are price distances, RiskPerTrade a fraction of equity in (0, 1].
type StrategySettings struct {
	TakeProfit   decimal.Decimal `json:"takeProfit"`
	StopLoss     decimal.Decimal `json:"stopLoss"`
	RiskPerTrade decimal.Decimal `json:"riskPerTrade"`

	// After a winning exit TradeUntilLoss allows same-day re-entry;
	// TradeUntilWin does the same after a losing exit.
	TradeUntilLoss bool `json:"tradeUntilLoss"`
	TradeUntilWin  bool `json:"tradeUntilWin"`

	PositionSizeLimitEnabled bool            `json:"positionSizeLimitEnabled"`
	PositionSizeLimit        decimal.Decimal `json:"positionSizeLimit"`

	// MaxHoldingBars of 0 means unlimited.
	MaxHoldingBars int `json:"maxHoldingBars"`

	EnableTimeFilter bool      `json:"enableTimeFilter"`
	EntryStart       ClockTime `json:"entryStart"`
	EntryEnd         ClockTime `json:"entryEnd"`
}

// EntryWindowContains reports whether a bar's time of day falls inside the
// inclusive [EntryStart, EntryEnd] window.
func (s StrategySettings) EntryWindowContains(ts time.Time) bool {
	m := ts.Hour()*60 + ts.Minute()
	return m >= s.EntryStart.minutes() && m <= s.EntryEnd.minutes()
}

// Settings bundles account and strategy parameters for one run.
type Settings struct {
	Account  AccountSettings  `json:"account"`
	Strategy StrategySettings `json:"strategy"`
}

// DefaultSettings mirrors the service's stock configuration: 10k cash at
// 100x leverage, 7 commission per trade, 4/5 TP/SL, 5% risk, re-entry after
// a losing exit only.
func DefaultSettings() Settings {
	return Settings{
		Account: AccountSettings{
			StartingCash: decimal.NewFromInt(10000),
			Commission:   decimal.NewFromInt(7),
			Leverage:     100,
		},
		Strategy: StrategySettings{
			TakeProfit:        decimal.NewFromInt(4),
			StopLoss:          decimal.NewFromInt(5),
			RiskPerTrade:      decimal.NewFromFloat(0.05),
			TradeUntilWin:     true,
			PositionSizeLimit: decimal.NewFromInt(100),
			EntryStart:        ClockTime{Hour: 9},
			EntryEnd:          ClockTime{Hour: 20},
		},
	}
}
