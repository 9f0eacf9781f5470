package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MEAN REVERSION STRATEGY
// ═══════════════════════════════════════════════════════════════════════════════
//
// Entry: last price stretched more than k standard deviations from the SMA
// TP:    the SMA at entry
// SL:    sizer default
// Exit:  stop, target, or price back across the current SMA
//
// ═══════════════════════════════════════════════════════════════════════════════

const MeanRevertName = "meanrevert"

// ExitMeanReverted is reported when price returns to the moving average
const ExitMeanReverted = "MEAN_REVERTED"

type MeanRevert struct {
	period     int
	bandK      decimal.Decimal
	allowShort bool
}

// NewMeanRevert creates a mean reversion strategy
func NewMeanRevert(period int, bandK decimal.Decimal, allowShort bool) *MeanRevert {
	if period < 2 {
		period = 2
	}
	return &MeanRevert{period: period, bandK: bandK, allowShort: allowShort}
}

// NewMeanRevertFromEnv reads MEANREVERT_PERIOD, MEANREVERT_K and ALLOW_SHORT
func NewMeanRevertFromEnv() *MeanRevert {
	return NewMeanRevert(
		envInt("MEANREVERT_PERIOD", 20),
		envDecimal("MEANREVERT_K", 2),
		envBool("ALLOW_SHORT", false),
	)
}

func (m *MeanRevert) Name() string { return MeanRevertName }

func (m *MeanRevert) CheckEntry(_ context.Context, snap types.Snapshot) (*Signal, error) {
	if len(snap.Window) < m.period || !snap.LastPrice.IsPositive() {
		return nil, nil
	}
	mean := SMA(snap.Window, m.period)
	band := StdDev(snap.Window, m.period).Mul(m.bandK)
	if band.IsZero() {
		return nil, nil
	}

	if snap.LastPrice.LessThan(mean.Sub(band)) {
		return NewSignal().
			Side(types.Long).
			Entry(snap.LastPrice).
			Target(mean).
			Reason("below lower band").
			Strategy(MeanRevertName).
			Build(), nil
	}
	if m.allowShort && snap.LastPrice.GreaterThan(mean.Add(band)) {
		return NewSignal().
			Side(types.Short).
			Entry(snap.LastPrice).
			Target(mean).
			Reason("above upper band").
			Strategy(MeanRevertName).
			Build(), nil
	}
	return nil, nil
}

func (m *MeanRevert) CheckExit(_ context.Context, trade *types.Trade, snap types.Snapshot) (string, error) {
	if reason := CheckStopTarget(trade, snap.LastPrice); reason != "" {
		return reason, nil
	}
	mean := SMA(snap.Window, m.period)
	if mean.IsZero() {
		return "", nil
	}
	if trade.Side == types.Long && snap.LastPrice.GreaterThanOrEqual(mean) {
		return ExitMeanReverted, nil
	}
	if trade.Side == types.Short && snap.LastPrice.LessThanOrEqual(mean) {
		return ExitMeanReverted, nil
	}
	return "", nil
}
