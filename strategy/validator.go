package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXTERNAL VALIDATION - second opinion on entries
// ═══════════════════════════════════════════════════════════════════════════════
//
// A validator can only veto. It is consulted after a strategy says enter and
// its answer is ANDed with the strategy's; it never turns a no into a yes.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Validator approves or vetoes an entry signal
type Validator interface {
	Validate(ctx context.Context, snap types.Snapshot, sig *Signal) (bool, error)
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(ctx context.Context, snap types.Snapshot, sig *Signal) (bool, error)

func (f ValidatorFunc) Validate(ctx context.Context, snap types.Snapshot, sig *Signal) (bool, error) {
	return f(ctx, snap, sig)
}

// AllowAll approves everything
var AllowAll Validator = ValidatorFunc(func(context.Context, types.Snapshot, *Signal) (bool, error) {
	return true, nil
})

// BiasSource supplies a directional score in [-1, 1] for an instrument
type BiasSource interface {
	Bias(ctx context.Context, instrument string) (decimal.Decimal, error)
}

// BiasValidator requires the external bias to agree with the signal side
type BiasValidator struct {
	source    BiasSource
	threshold decimal.Decimal
}

// NewBiasValidator creates a validator over an external bias score
func NewBiasValidator(source BiasSource, threshold decimal.Decimal) *BiasValidator {
	return &BiasValidator{source: source, threshold: threshold}
}

func (v *BiasValidator) Validate(ctx context.Context, snap types.Snapshot, sig *Signal) (bool, error) {
	score, err := v.source.Bias(ctx, snap.Instrument)
	if err != nil {
		return false, err
	}
	if sig.Side == types.Short {
		return score.LessThanOrEqual(v.threshold.Neg()), nil
	}
	return score.GreaterThanOrEqual(v.threshold), nil
}

// TrendValidator requires price to be on the signal's side of the SMA
type TrendValidator struct {
	period int
}

// NewTrendValidator creates an SMA trend filter
func NewTrendValidator(period int) *TrendValidator {
	return &TrendValidator{period: period}
}

func (v *TrendValidator) Validate(_ context.Context, snap types.Snapshot, sig *Signal) (bool, error) {
	mean := SMA(snap.Window, v.period)
	if mean.IsZero() {
		return false, nil
	}
	if sig.Side == types.Short {
		return snap.LastPrice.LessThan(mean), nil
	}
	return snap.LastPrice.GreaterThan(mean), nil
}
