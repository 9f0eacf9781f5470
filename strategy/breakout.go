package strategy

import (
	"context"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BREAKOUT STRATEGY
// ═══════════════════════════════════════════════════════════════════════════════
//
// Entry: last price clears the highest close of the lookback bars before the
//        most recent one (or, with shorts enabled, breaks below the lowest)
// SL:    opposite extreme of the window
// TP:    left to the sizer (stop distance * reward multiple)
//
// ═══════════════════════════════════════════════════════════════════════════════

const BreakoutName = "breakout"

type Breakout struct {
	lookback   int
	buffer     decimal.Decimal // fraction above/below the extreme required to trigger
	allowShort bool
}

// NewBreakout creates a breakout strategy
func NewBreakout(lookback int, buffer decimal.Decimal, allowShort bool) *Breakout {
	if lookback < 2 {
		lookback = 2
	}
	return &Breakout{lookback: lookback, buffer: buffer, allowShort: allowShort}
}

// NewBreakoutFromEnv reads BREAKOUT_LOOKBACK, BREAKOUT_BUFFER and ALLOW_SHORT
func NewBreakoutFromEnv() *Breakout {
	return NewBreakout(
		envInt("BREAKOUT_LOOKBACK", 10),
		envDecimal("BREAKOUT_BUFFER", 0),
		envBool("ALLOW_SHORT", false),
	)
}

func (b *Breakout) Name() string { return BreakoutName }

// CheckEntry fires on a close-through of the window extreme
func (b *Breakout) CheckEntry(_ context.Context, snap types.Snapshot) (*Signal, error) {
	n := len(snap.Window)
	if n < b.lookback+1 || !snap.LastPrice.IsPositive() {
		return nil, nil
	}
	// Channel excludes the latest bar, which may already hold the last price
	window := snap.Window[n-1-b.lookback : n-1]
	high := Highest(window)
	low := Lowest(window)
	one := decimal.NewFromInt(1)

	if snap.LastPrice.GreaterThan(high.Mul(one.Add(b.buffer))) {
		return NewSignal().
			Side(types.Long).
			Entry(snap.LastPrice).
			StopLoss(low).
			Reason("close above " + high.String()).
			Strategy(BreakoutName).
			Build(), nil
	}

	if b.allowShort && snap.LastPrice.LessThan(low.Mul(one.Sub(b.buffer))) {
		return NewSignal().
			Side(types.Short).
			Entry(snap.LastPrice).
			StopLoss(high).
			Reason("close below " + low.String()).
			Strategy(BreakoutName).
			Build(), nil
	}
	return nil, nil
}

// CheckExit closes on stop or target
func (b *Breakout) CheckExit(_ context.Context, trade *types.Trade, snap types.Snapshot) (string, error) {
	return CheckStopTarget(trade, snap.LastPrice), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func envDecimal(key string, fallback float64) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return decimal.NewFromFloat(fallback)
}

func envInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}
