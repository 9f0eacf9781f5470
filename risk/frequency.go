package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// FREQUENCY POLICY - Hourly trade admission
// ═══════════════════════════════════════════════════════════════════════════════
//
// capital → slab → base limit (clamped to MaxHourlyCap)
// daily drawdown → NORMAL / REDUCED / HARD_LIMIT
//
// Pure function of (policy, capital, daily_pnl). There is no daily trade cap.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Slab maps a capital band [MinCapital, MaxCapital) to an hourly trade limit.
// A nil MaxCapital means unbounded.
type Slab struct {
	MinCapital       decimal.Decimal
	MaxCapital       *decimal.Decimal
	MaxTradesPerHour int
}

// Contains reports whether capital falls inside the slab
func (s Slab) Contains(capital decimal.Decimal) bool {
	if capital.LessThan(s.MinCapital) {
		return false
	}
	return s.MaxCapital == nil || capital.LessThan(*s.MaxCapital)
}

// FrequencyPolicy is immutable once loaded
type FrequencyPolicy struct {
	Slabs           []Slab
	MaxHourlyCap    int             // 0 disables the clamp
	SoftDrawdownPct decimal.Decimal // fraction of capital
	HardDrawdownPct decimal.Decimal // fraction of capital
	ReductionFactor decimal.Decimal // (0, 1]
}

// Limit is the evaluated admission limit for the current hour
type Limit struct {
	Limit     int
	BaseLimit int
	Mode      types.FrequencyMode
	Matched   bool
}

// DefaultFrequencyPolicy returns the built-in slab table
func DefaultFrequencyPolicy() *FrequencyPolicy {
	d := func(v int64) *decimal.Decimal {
		x := decimal.NewFromInt(v)
		return &x
	}
	return &FrequencyPolicy{
		Slabs: []Slab{
			{MinCapital: decimal.Zero, MaxCapital: d(50_000), MaxTradesPerHour: 2},
			{MinCapital: decimal.NewFromInt(50_000), MaxCapital: d(200_000), MaxTradesPerHour: 3},
			{MinCapital: decimal.NewFromInt(200_000), MaxTradesPerHour: 5},
		},
		MaxHourlyCap:    6,
		SoftDrawdownPct: decimal.NewFromFloat(0.02),
		HardDrawdownPct: decimal.NewFromFloat(0.05),
		ReductionFactor: decimal.NewFromFloat(0.5),
	}
}

// Validate checks ordering, overlap and bounds
func (p *FrequencyPolicy) Validate() error {
	if len(p.Slabs) == 0 {
		return fmt.Errorf("policy has no slabs")
	}
	for i, s := range p.Slabs {
		if s.MaxTradesPerHour <= 0 {
			return fmt.Errorf("slab %d: max_trades_per_hour must be positive", i)
		}
		if s.MinCapital.IsNegative() {
			return fmt.Errorf("slab %d: min_capital is negative", i)
		}
		if s.MaxCapital == nil {
			if i != len(p.Slabs)-1 {
				return fmt.Errorf("slab %d: only the last slab may be unbounded", i)
			}
			continue
		}
		if !s.MaxCapital.GreaterThan(s.MinCapital) {
			return fmt.Errorf("slab %d: max_capital must exceed min_capital", i)
		}
		if i+1 < len(p.Slabs) && p.Slabs[i+1].MinCapital.LessThan(*s.MaxCapital) {
			return fmt.Errorf("slab %d overlaps slab %d", i, i+1)
		}
	}
	if p.MaxHourlyCap < 0 {
		return fmt.Errorf("max_hourly_cap is negative")
	}
	if p.SoftDrawdownPct.IsNegative() || p.HardDrawdownPct.LessThan(p.SoftDrawdownPct) {
		return fmt.Errorf("drawdown thresholds must satisfy 0 <= soft <= hard")
	}
	if !p.ReductionFactor.IsPositive() || p.ReductionFactor.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("reduction_factor must be in (0, 1]")
	}
	return nil
}

// Evaluate computes the hourly limit and mode for a session
func (p *FrequencyPolicy) Evaluate(capital, dailyPnL decimal.Decimal) Limit {
	var out Limit
	for _, s := range p.Slabs {
		if s.Contains(capital) {
			out.BaseLimit = s.MaxTradesPerHour
			out.Matched = true
			break
		}
	}
	if p.MaxHourlyCap > 0 && out.BaseLimit > p.MaxHourlyCap {
		out.BaseLimit = p.MaxHourlyCap
	}

	hard := p.HardDrawdownPct.Mul(capital).Neg()
	soft := p.SoftDrawdownPct.Mul(capital).Neg()

	switch {
	case dailyPnL.LessThanOrEqual(hard):
		// HARD_LIMIT grants one trade regardless of slab
		out.Mode = types.FrequencyHardLimit
		out.Limit = 1
	case !out.Matched:
		// Capital outside every slab admits nothing
		out.Mode = modeFor(dailyPnL, soft)
		out.Limit = 0
	case dailyPnL.LessThanOrEqual(soft):
		out.Mode = types.FrequencyReduced
		reduced := int(decimal.NewFromInt(int64(out.BaseLimit)).Mul(p.ReductionFactor).Floor().IntPart())
		out.Limit = max(1, reduced)
	default:
		out.Mode = types.FrequencyNormal
		out.Limit = out.BaseLimit
	}
	return out
}

func modeFor(dailyPnL, soft decimal.Decimal) types.FrequencyMode {
	if dailyPnL.LessThanOrEqual(soft) {
		return types.FrequencyReduced
	}
	return types.FrequencyNormal
}

// Admit evaluates the limit and rejects when the hour's count has reached it
func (p *FrequencyPolicy) Admit(capital, dailyPnL decimal.Decimal, hourlyCount int) (Limit, error) {
	lim := p.Evaluate(capital, dailyPnL)
	if hourlyCount >= lim.Limit {
		return lim, types.Reject(types.RejectHourlyLimit,
			fmt.Sprintf("%d/%d this hour, mode %s", hourlyCount, lim.Limit, lim.Mode))
	}
	return lim, nil
}
