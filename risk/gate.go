package risk

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK GATE - Central approval system
// ═══════════════════════════════════════════════════════════════════════════════
//
// Strategy asks → Frequency admits → Sizer sizes → Executor executes
//
// Every capital protection rule for an entry is enforced here, in this order.
//
// ═══════════════════════════════════════════════════════════════════════════════

// EntryRequest is a strategy's intent to open a position
type EntryRequest struct {
	Side     types.Side
	Entry    decimal.Decimal
	StopLoss decimal.Decimal
	Target   decimal.Decimal
}

// Approval is the gate's answer for an admitted entry
type Approval struct {
	Limit  Limit
	Sizing Sizing
}

// Gate combines the frequency policy with the sizer
type Gate struct {
	policies *PolicyStore
	sizer    *Sizer
}

// NewGate creates the approval gate
func NewGate(policies *PolicyStore, sizer *Sizer) *Gate {
	return &Gate{policies: policies, sizer: sizer}
}

// Policy returns the policy in force right now. Callers read it once per tick.
func (g *Gate) Policy() *FrequencyPolicy {
	return g.policies.Current()
}

// Sizer returns the position sizer
func (g *Gate) Sizer() *Sizer {
	return g.sizer
}

// CanEnter admits and sizes an entry for sess under policy
func (g *Gate) CanEnter(policy *FrequencyPolicy, sess *types.Session, req EntryRequest) (Approval, error) {
	reject := func(lim Limit, err error) (Approval, error) {
		log.Debug().
			Str("session", sess.ID).
			Str("instrument", sess.Instrument).
			Err(err).
			Msg("🚫 Entry rejected")
		return Approval{Limit: lim}, err
	}

	// 1. Hourly frequency
	lim, err := policy.Admit(sess.Capital, sess.DailyPnL, sess.HourlyTradeCount)
	if err != nil {
		return reject(lim, err)
	}

	// 2. Size against risk budget and daily loss limit
	sz, err := g.sizer.Size(SizeRequest{
		Capital:  sess.Capital,
		RiskPct:  sess.RiskPerTradePct,
		DailyPnL: sess.DailyPnL,
		Side:     req.Side,
		Entry:    req.Entry,
		StopLoss: req.StopLoss,
		Target:   req.Target,
	})
	if err != nil {
		return reject(lim, err)
	}

	return Approval{Limit: lim, Sizing: sz}, nil
}
