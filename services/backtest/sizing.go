package backtest

import "github.com/shopspring/decimal"

// PositionSize derives the quantity multiplier from the risk budget:
// (equity × risk_per_trade) / (stop_loss × leverage), truncated toward zero
// at two decimals. Truncation, not rounding: the result feeds straight into
// PnL and must never overstate the risk-derived size. The optional limit
// clamps the computed value.
func PositionSize(equity decimal.Decimal, settings Settings) decimal.Decimal {
	denom := settings.Strategy.StopLoss.Mul(decimal.NewFromInt(int64(settings.Account.Leverage)))
	size := equity.Mul(settings.Strategy.RiskPerTrade).Div(denom).RoundDown(2)
	if settings.Strategy.PositionSizeLimitEnabled && size.GreaterThan(settings.Strategy.PositionSizeLimit) {
		return settings.Strategy.PositionSizeLimit
	}
	return size
}
