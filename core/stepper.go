package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/execution"
	"github.com/web3guy0/tradeengine/internal/id"
	"github.com/web3guy0/tradeengine/risk"
	"github.com/web3guy0/tradeengine/strategy"
	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DECISION STEP - FLAT / IN_TRADE
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow per step:
//   roll hour → cutoff → exit check (IN_TRADE) | entry check (FLAT)
//   entry: strategy → validator veto → frequency → sizer → executor
//
// The scheduler and the replay engine both drive this. Fills come back from
// the executor and are applied here, so every mode mutates the session the
// same way.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Decision labels recorded in the outcome
const (
	DecisionNone       = "NONE"
	DecisionHold       = "HOLD"
	DecisionEnter      = "ENTER"
	DecisionExit       = "EXIT"
	DecisionRejected   = "REJECTED"
	DecisionVetoed     = "VETOED"
	DecisionAutoClosed = "AUTO_CLOSED"
)

// StepInput is everything a step reads besides the session
type StepInput struct {
	Now      time.Time
	Snapshot types.Snapshot
	Policy   *risk.FrequencyPolicy
	Executor execution.Executor
}

// Outcome describes what one step did so the caller can persist and notify
type Outcome struct {
	Decision  string
	Opened    *types.Trade
	Closed    *types.Trade
	Rejection error
	Limit     risk.Limit
	Signal    *strategy.Signal
}

// Stepper runs the decision step
type Stepper struct {
	gate       *risk.Gate
	strategies *strategy.Registry
	validator  strategy.Validator
	loc        *time.Location
}

// NewStepper creates the decision step. A nil validator approves everything.
func NewStepper(gate *risk.Gate, strategies *strategy.Registry, validator strategy.Validator, loc *time.Location) *Stepper {
	if validator == nil {
		validator = strategy.AllowAll
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Stepper{gate: gate, strategies: strategies, validator: validator, loc: loc}
}

// Gate returns the admission gate
func (st *Stepper) Gate() *risk.Gate {
	return st.gate
}

// Strategies returns the strategy registry
func (st *Stepper) Strategies() *strategy.Registry {
	return st.strategies
}

// Location returns the market location hour blocks are computed in
func (st *Stepper) Location() *time.Location {
	return st.loc
}

// HourBlock returns the start of the market-local hour containing t
func HourBlock(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), 0, 0, 0, loc)
}

// RollHour moves the session to the hour block of now, resetting the hourly count on change
func RollHour(sess *types.Session, now time.Time, loc *time.Location) bool {
	block := HourBlock(now, loc)
	if sess.HourBlock.Equal(block) {
		return false
	}
	sess.HourBlock = block
	sess.HourlyTradeCount = 0
	return true
}

// Step runs one decision for sess. Returned errors leave the position untouched.
func (st *Stepper) Step(ctx context.Context, sess *types.Session, in StepInput) (Outcome, error) {
	out := Outcome{Decision: DecisionNone}
	if sess.Status != types.StatusActive {
		return out, nil
	}

	RollHour(sess, in.Now, st.loc)
	if in.Snapshot.LastPrice.IsPositive() {
		sess.LastPrice = in.Snapshot.LastPrice
	}
	sess.UpdatedAt = in.Now

	out.Limit = in.Policy.Evaluate(sess.Capital, sess.DailyPnL)
	sess.FrequencyMode = out.Limit.Mode

	// Cutoff
	if !in.Now.Before(sess.CutoffAt) {
		if sess.InTrade() {
			closed, err := st.exit(ctx, sess, in, types.ExitCutoff)
			if err != nil {
				return out, err
			}
			out.Closed = closed
		}
		sess.Status = types.StatusAutoClosed
		sess.StopReason = types.StopReasonCutoff
		out.Decision = DecisionAutoClosed

		log.Info().
			Str("session", sess.ID).
			Str("instrument", sess.Instrument).
			Str("mode", string(sess.Mode)).
			Msg("⏰ Cutoff reached, session auto-closed")
		return out, nil
	}

	if sess.InTrade() {
		return st.stepInTrade(ctx, sess, in, out)
	}
	return st.stepFlat(ctx, sess, in, out)
}

func (st *Stepper) stepInTrade(ctx context.Context, sess *types.Session, in StepInput, out Outcome) (Outcome, error) {
	strat, err := st.ownerOf(sess)
	if err != nil {
		return out, err
	}

	reason, err := strat.CheckExit(ctx, sess.CurrentTrade, in.Snapshot)
	if err != nil {
		return out, fmt.Errorf("%s exit check: %w", strat.Name(), err)
	}
	if reason == "" {
		out.Decision = DecisionHold
		return out, nil
	}

	closed, err := st.exit(ctx, sess, in, reason)
	if err != nil {
		return out, err
	}
	out.Decision = DecisionExit
	out.Closed = closed
	return out, nil
}

func (st *Stepper) stepFlat(ctx context.Context, sess *types.Session, in StepInput, out Outcome) (Outcome, error) {
	strat, err := st.strategies.Resolve(sess.StrategySelector)
	if err != nil {
		return out, err
	}

	sig, err := strat.CheckEntry(ctx, in.Snapshot)
	if err != nil {
		return out, fmt.Errorf("%s entry check: %w", strat.Name(), err)
	}
	if sig == nil {
		return out, nil
	}
	if sig.Strategy == "" {
		sig.Strategy = strat.Name()
	}
	out.Signal = sig

	if !sig.Validate() {
		log.Debug().
			Str("session", sess.ID).
			Str("strategy", sig.Strategy).
			Msg("Malformed signal ignored")
		return out, nil
	}

	// Validation can only veto
	if sess.ExternalValidation {
		ok, err := st.validator.Validate(ctx, in.Snapshot, sig)
		if err != nil || !ok {
			out.Decision = DecisionVetoed
			log.Debug().
				Str("session", sess.ID).
				Str("strategy", sig.Strategy).
				Err(err).
				Msg("🛑 Entry vetoed by validator")
			return out, nil
		}
	}

	approval, err := st.gate.CanEnter(in.Policy, sess, risk.EntryRequest{
		Side:     sig.Side,
		Entry:    sig.Entry,
		StopLoss: sig.StopLoss,
		Target:   sig.Target,
	})
	out.Limit = approval.Limit
	if err != nil {
		if types.IsRejection(err, "") {
			out.Decision = DecisionRejected
			out.Rejection = err
			return out, nil
		}
		return out, err
	}

	fill, err := in.Executor.Submit(ctx, execution.Order{
		ClientID:   id.At(in.Now),
		SessionID:  sess.ID,
		Instrument: sess.Instrument,
		Action:     execution.EntryAction(sig.Side),
		Purpose:    execution.PurposeEntry,
		Quantity:   approval.Sizing.Quantity,
		Price:      in.Snapshot.LastPrice,
		Strategy:   sig.Strategy,
		Reason:     sig.Reason,
	})
	if err != nil {
		return out, err
	}

	trade := &types.Trade{
		ID:           id.At(in.Now),
		SessionID:    sess.ID,
		Instrument:   sess.Instrument,
		Side:         sig.Side,
		Mode:         sess.Mode,
		Quantity:     fill.Quantity,
		EntryPrice:   fill.Price,
		EntryTime:    in.Now,
		StopLoss:     approval.Sizing.StopLoss,
		Target:       approval.Sizing.Target,
		StrategyName: sig.Strategy,
		EntryOrderID: fill.OrderID,
	}
	sess.CurrentTrade = trade
	sess.HourlyTradeCount++
	sess.TradesTakenToday++

	out.Decision = DecisionEnter
	opened := *trade
	out.Opened = &opened

	log.Info().
		Str("session", sess.ID).
		Str("instrument", sess.Instrument).
		Str("mode", string(sess.Mode)).
		Str("side", string(trade.Side)).
		Int64("qty", trade.Quantity).
		Str("entry", trade.EntryPrice.StringFixed(2)).
		Str("stop", trade.StopLoss.StringFixed(2)).
		Str("target", trade.Target.StringFixed(2)).
		Int("hourly", sess.HourlyTradeCount).
		Int("limit", out.Limit.Limit).
		Str("strategy", trade.StrategyName).
		Msg("📈 Position opened")

	return out, nil
}

// ownerOf resolves the strategy that opened the current trade
func (st *Stepper) ownerOf(sess *types.Session) (strategy.Strategy, error) {
	if s, ok := st.strategies.Get(sess.CurrentTrade.StrategyName); ok {
		return s, nil
	}
	return st.strategies.Resolve(sess.StrategySelector)
}

func (st *Stepper) exit(ctx context.Context, sess *types.Session, in StepInput, reason string) (*types.Trade, error) {
	trade := sess.CurrentTrade
	fill, err := in.Executor.Submit(ctx, execution.Order{
		ClientID:   id.At(in.Now),
		SessionID:  sess.ID,
		Instrument: sess.Instrument,
		Action:     execution.ExitAction(trade.Side),
		Purpose:    execution.PurposeExit,
		Quantity:   trade.Quantity,
		Price:      in.Snapshot.LastPrice,
		Strategy:   trade.StrategyName,
		Reason:     reason,
	})
	if err != nil {
		return nil, err
	}
	return CloseTrade(sess, fill.Price, fill.OrderID, reason, in.Now, true), nil
}

// CloseTrade records the exit of the session's open trade and applies its P&L.
// It returns a copy of the closed trade.
func CloseTrade(sess *types.Session, price decimal.Decimal, orderID, reason string, at time.Time, confirmed bool) *types.Trade {
	trade := sess.CurrentTrade
	trade.ExitPrice = price
	trade.ExitTime = at
	trade.ExitReason = reason
	trade.ExitOrderID = orderID
	trade.ExitConfirmed = confirmed
	trade.RealizedPnL = trade.PnLAt(price)

	sess.DailyPnL = sess.DailyPnL.Add(trade.RealizedPnL)
	sess.Balance = sess.Balance.Add(trade.RealizedPnL)
	sess.CurrentTrade = nil
	sess.UpdatedAt = at

	emoji := "💰"
	if trade.RealizedPnL.IsNegative() {
		emoji = "📉"
	}
	log.Info().
		Str("session", sess.ID).
		Str("instrument", sess.Instrument).
		Str("mode", string(sess.Mode)).
		Str("side", string(trade.Side)).
		Str("entry", trade.EntryPrice.StringFixed(2)).
		Str("exit", price.StringFixed(2)).
		Str("pnl", trade.RealizedPnL.StringFixed(2)).
		Str("reason", reason).
		Bool("confirmed", confirmed).
		Msg(emoji + " Position closed")

	closed := *trade
	return &closed
}
