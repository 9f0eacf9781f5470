package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STRATEGY INTERFACE - Plug-in pattern for strategies
// ═══════════════════════════════════════════════════════════════════════════════
//
// All strategies implement this interface:
//   CheckEntry(Snapshot) *Signal       nil means stay flat
//   CheckExit(Trade, Snapshot) reason  "" means hold
//
// Strategies are pure functions of the snapshot. The same snapshot must give
// the same answer live and in replay.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Strategy is the interface all trading strategies must implement
type Strategy interface {
	// Name returns the strategy identifier
	Name() string

	// CheckEntry returns an entry signal or nil
	CheckEntry(ctx context.Context, snap types.Snapshot) (*Signal, error)

	// CheckExit returns a non-empty reason when the open trade should close
	CheckExit(ctx context.Context, trade *types.Trade, snap types.Snapshot) (string, error)
}

// Signal represents a trade signal from a strategy
type Signal struct {
	Side     types.Side
	Entry    decimal.Decimal // Entry price
	Target   decimal.Decimal // zero lets the sizer pick
	StopLoss decimal.Decimal // zero lets the sizer pick
	Reason   string          // Human-readable reason
	Strategy string          // Source strategy name
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNAL BUILDER - Helper for creating signals
// ═══════════════════════════════════════════════════════════════════════════════

// SignalBuilder helps construct signals with validation
type SignalBuilder struct {
	signal *Signal
}

// NewSignal creates a new signal builder
func NewSignal() *SignalBuilder {
	return &SignalBuilder{
		signal: &Signal{Side: types.Long},
	}
}

// Side sets LONG or SHORT
func (sb *SignalBuilder) Side(side types.Side) *SignalBuilder {
	sb.signal.Side = side
	return sb
}

// Entry sets the entry price
func (sb *SignalBuilder) Entry(price decimal.Decimal) *SignalBuilder {
	sb.signal.Entry = price
	return sb
}

// Target sets the take-profit price
func (sb *SignalBuilder) Target(price decimal.Decimal) *SignalBuilder {
	sb.signal.Target = price
	return sb
}

// StopLoss sets the SL price
func (sb *SignalBuilder) StopLoss(price decimal.Decimal) *SignalBuilder {
	sb.signal.StopLoss = price
	return sb
}

// Reason sets the signal reason
func (sb *SignalBuilder) Reason(reason string) *SignalBuilder {
	sb.signal.Reason = reason
	return sb
}

// Strategy sets the source strategy name
func (sb *SignalBuilder) Strategy(name string) *SignalBuilder {
	sb.signal.Strategy = name
	return sb
}

// Build returns the completed signal
func (sb *SignalBuilder) Build() *Signal {
	return sb.signal
}

// ═══════════════════════════════════════════════════════════════════════════════
// VALIDATION HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// Validate checks if a signal is well-formed. Zero stop or target is allowed.
func (s *Signal) Validate() bool {
	if !s.Entry.IsPositive() {
		return false
	}
	if s.Side != types.Long && s.Side != types.Short {
		return false
	}
	sign := s.Side.Sign()
	if !s.StopLoss.IsZero() && !s.Entry.Sub(s.StopLoss).Mul(sign).IsPositive() {
		return false
	}
	if !s.Target.IsZero() && !s.Target.Sub(s.Entry).Mul(sign).IsPositive() {
		return false
	}
	return true
}
