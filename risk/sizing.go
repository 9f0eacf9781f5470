package risk

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION SIZING - fixed fractional risk per trade
// ═══════════════════════════════════════════════════════════════════════════════
//
// Formula: qty = floor((capital * risk_pct) / |entry - stop|)
//
// Wider stops give smaller positions. An entry whose worst case would push
// the day past the daily loss limit is refused.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds process-wide risk settings. Percentages are fractions.
type Config struct {
	RiskPerTradePct   decimal.Decimal // default for sessions that omit it
	DailyLossLimitPct decimal.Decimal
	StopLossPct       decimal.Decimal // used when a strategy gives no stop
	TargetPct         decimal.Decimal // used when RewardMultiple is zero
	RewardMultiple    decimal.Decimal // target distance = stop distance * multiple
}

// DefaultConfig returns conservative defaults
func DefaultConfig() Config {
	return Config{
		RiskPerTradePct:   decimal.NewFromFloat(0.01),
		DailyLossLimitPct: decimal.NewFromFloat(0.03),
		StopLossPct:       decimal.NewFromFloat(0.01),
		TargetPct:         decimal.NewFromFloat(0.02),
		RewardMultiple:    decimal.NewFromInt(2),
	}
}

// SizeRequest carries everything the sizer needs for one entry
type SizeRequest struct {
	Capital  decimal.Decimal
	RiskPct  decimal.Decimal
	DailyPnL decimal.Decimal
	Side     types.Side
	Entry    decimal.Decimal
	StopLoss decimal.Decimal // zero means use the default
	Target   decimal.Decimal // zero means use the default
}

// Sizing is the approved position
type Sizing struct {
	Quantity int64
	StopLoss decimal.Decimal
	Target   decimal.Decimal
	MaxLoss  decimal.Decimal
}

type Sizer struct {
	cfg Config
}

// NewSizer creates a new position sizer
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Config returns the sizer settings
func (s *Sizer) Config() Config {
	return s.cfg
}

// Size computes quantity, stop and target or rejects with risk_limit
func (s *Sizer) Size(req SizeRequest) (Sizing, error) {
	if !req.Entry.IsPositive() {
		return Sizing{}, types.Reject(types.RejectRiskLimit, "entry price not positive")
	}

	riskPct := req.RiskPct
	if !riskPct.IsPositive() {
		riskPct = s.cfg.RiskPerTradePct
	}
	sign := req.Side.Sign()
	one := decimal.NewFromInt(1)

	stop := req.StopLoss
	if stop.IsZero() {
		stop = req.Entry.Mul(one.Sub(s.cfg.StopLossPct.Mul(sign)))
	}

	// Stop must sit on the losing side of entry
	distance := req.Entry.Sub(stop).Mul(sign)
	if !distance.IsPositive() {
		return Sizing{}, types.Reject(types.RejectRiskLimit, "stop distance not positive")
	}

	maxLoss := req.Capital.Mul(riskPct)
	qty := maxLoss.Div(distance).Floor().IntPart()
	if qty <= 0 {
		return Sizing{}, types.Reject(types.RejectRiskLimit, "quantity rounds to zero")
	}

	dailyLimit := req.Capital.Mul(s.cfg.DailyLossLimitPct).Neg()
	if req.DailyPnL.Sub(maxLoss).LessThan(dailyLimit) {
		return Sizing{}, types.Reject(types.RejectRiskLimit, "daily loss limit")
	}

	target := req.Target
	if target.IsZero() {
		if s.cfg.RewardMultiple.IsPositive() {
			target = req.Entry.Add(distance.Mul(s.cfg.RewardMultiple).Mul(sign))
		} else {
			target = req.Entry.Mul(one.Add(s.cfg.TargetPct.Mul(sign)))
		}
	}

	return Sizing{
		Quantity: qty,
		StopLoss: stop,
		Target:   target,
		MaxLoss:  maxLoss,
	}, nil
}
