package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TP/SL - Shared exit conditions
// ═══════════════════════════════════════════════════════════════════════════════

// CheckStopTarget returns STOP_LOSS or TARGET when price has crossed either
// level, stop first. Zero levels are ignored.
func CheckStopTarget(trade *types.Trade, price decimal.Decimal) string {
	if price.IsZero() {
		return ""
	}
	if trade.Side == types.Short {
		if !trade.StopLoss.IsZero() && price.GreaterThanOrEqual(trade.StopLoss) {
			return types.ExitStopLoss
		}
		if !trade.Target.IsZero() && price.LessThanOrEqual(trade.Target) {
			return types.ExitTarget
		}
		return ""
	}

	if !trade.StopLoss.IsZero() && price.LessThanOrEqual(trade.StopLoss) {
		return types.ExitStopLoss
	}
	if !trade.Target.IsZero() && price.GreaterThanOrEqual(trade.Target) {
		return types.ExitTarget
	}
	return ""
}
