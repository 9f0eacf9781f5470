package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/core"
	"github.com/web3guy0/tradeengine/execution"
	"github.com/web3guy0/tradeengine/internal/id"
	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// REPLAY ENGINE - Backtest at live cadence
// ═══════════════════════════════════════════════════════════════════════════════
//
// Simulated clock advances by the live tick interval, not once per candle.
// At each instant the snapshot follows the live price rule (latest completed
// close) and the shared decision step runs with a simulated fill executor.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds replay settings
type Config struct {
	TickInterval time.Duration // same value the live scheduler uses
	BarInterval  time.Duration // zero infers from the data
	Window       int           // closes exposed to strategies, as the live feed
}

// Request describes the session to simulate
type Request struct {
	Instrument         string
	Capital            decimal.Decimal
	RiskPerTradePct    decimal.Decimal
	StrategySelector   string
	ExternalValidation bool
	CutoffTime         string // HH:MM market time on the first candle's day
}

// Decision is one non-trivial step outcome
type Decision struct {
	Time     time.Time       `json:"time"`
	Price    decimal.Decimal `json:"price"`
	Decision string          `json:"decision"`
	Detail   string          `json:"detail,omitempty"`
	TradeID  string          `json:"trade_id,omitempty"`
}

// Result summarises a replay run
type Result struct {
	Session      *types.Session
	Trades       []types.Trade
	Decisions    []Decision
	Ticks        int
	Start        time.Time
	End          time.Time
	FinalBalance decimal.Decimal
	TotalPnL     decimal.Decimal
	MaxDrawdown  decimal.Decimal
	Wins         int
	Losses       int
}

// Store persists replayed sessions and trades
type Store interface {
	CreateSession(ctx context.Context, sess *types.Session) error
	CommitStep(ctx context.Context, sess *types.Session, opened, closed *types.Trade) error
}

type Engine struct {
	cfg     Config
	stepper *core.Stepper
	store   Store
}

// NewEngine creates a replay engine over the shared decision step
func NewEngine(cfg Config, stepper *core.Stepper) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = core.DefaultConfig().TickInterval
	}
	return &Engine{cfg: cfg, stepper: stepper}
}

// SetStore makes Run persist the session and its trades with mode BACKTEST
func (e *Engine) SetStore(s Store) {
	e.store = s
}

// Run replays candles for one session
func (e *Engine) Run(ctx context.Context, req Request, candles []types.Candle) (*Result, error) {
	series, err := NewSeries(req.Instrument, candles, e.cfg.BarInterval, e.cfg.Window)
	if err != nil {
		return nil, err
	}
	sess, err := e.newSession(req, series)
	if err != nil {
		return nil, err
	}

	var now time.Time
	sim := execution.NewSimulator(func() time.Time { return now })

	if e.store != nil {
		if err := e.store.CreateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}

	res := &Result{Session: sess, Start: series.Start()}
	peak := sess.Balance
	maxDD := decimal.Zero

	log.Info().
		Str("session", sess.ID).
		Str("instrument", sess.Instrument).
		Str("strategy", sess.StrategySelector).
		Int("candles", series.Len()).
		Dur("tick", e.cfg.TickInterval).
		Dur("bar", series.Bar()).
		Msg("⏪ Replay started")

	for now = series.Start(); !now.After(series.End()); now = now.Add(e.cfg.TickInterval) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sess.Status != types.StatusActive {
			break
		}

		snap, ok := series.Snapshot(now)
		if !ok {
			continue
		}
		res.Ticks++
		res.End = now

		out, err := e.stepper.Step(ctx, sess, core.StepInput{
			Now:      now,
			Snapshot: snap,
			Policy:   e.stepper.Gate().Policy(),
			Executor: sim,
		})
		if err != nil {
			sess.ConsecutiveFailures++
			sess.LastError = err.Error()
			res.Decisions = append(res.Decisions, Decision{Time: now, Price: snap.LastPrice, Decision: "ERROR", Detail: err.Error()})
			continue
		}
		sess.ConsecutiveFailures = 0

		if d, ok := decisionOf(now, snap.LastPrice, out); ok {
			res.Decisions = append(res.Decisions, d)
		}
		if out.Closed != nil {
			res.Trades = append(res.Trades, *out.Closed)
			if out.Closed.RealizedPnL.IsPositive() {
				res.Wins++
			} else {
				res.Losses++
			}
			if sess.Balance.GreaterThan(peak) {
				peak = sess.Balance
			}
			if dd := peak.Sub(sess.Balance); dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}

		if e.store != nil && (out.Opened != nil || out.Closed != nil || out.Decision == core.DecisionAutoClosed) {
			if err := e.store.CommitStep(ctx, sess, out.Opened, out.Closed); err != nil {
				return nil, fmt.Errorf("persist step: %w", err)
			}
		}
	}

	res.FinalBalance = sess.Balance
	res.TotalPnL = sess.Balance.Sub(sess.Capital)
	res.MaxDrawdown = maxDD

	log.Info().
		Str("session", sess.ID).
		Int("ticks", res.Ticks).
		Int("trades", len(res.Trades)).
		Int("wins", res.Wins).
		Int("losses", res.Losses).
		Str("pnl", res.TotalPnL.StringFixed(2)).
		Str("max_dd", res.MaxDrawdown.StringFixed(2)).
		Bool("open_at_end", sess.InTrade()).
		Msg("📊 Replay finished")

	return res, nil
}

func (e *Engine) newSession(req Request, series *Series) (*types.Session, error) {
	if req.Instrument == "" {
		return nil, types.NewValidationError("instrument", "required")
	}
	if !req.Capital.IsPositive() {
		return nil, types.NewValidationError("capital", "must be positive")
	}
	if req.RiskPerTradePct.IsZero() {
		req.RiskPerTradePct = e.stepper.Gate().Sizer().Config().RiskPerTradePct
	}
	if req.StrategySelector == "" {
		req.StrategySelector = "auto"
	}
	if _, err := e.stepper.Strategies().Resolve(req.StrategySelector); err != nil {
		return nil, types.NewValidationError("strategy_selector", err.Error())
	}
	if req.CutoffTime == "" {
		req.CutoffTime = core.DefaultConfig().DefaultCutoff
	}

	start := series.Start()
	loc := e.stepper.Location()
	cutoff, err := core.ResolveCutoff(start, loc, req.CutoffTime)
	if err != nil {
		return nil, types.NewValidationError("cutoff_time", err.Error())
	}

	return &types.Session{
		ID:                 id.At(start),
		Instrument:         req.Instrument,
		Capital:            req.Capital,
		RiskPerTradePct:    req.RiskPerTradePct,
		Mode:               types.ModeBacktest,
		StrategySelector:   req.StrategySelector,
		ExternalValidation: req.ExternalValidation || req.StrategySelector == "auto",
		Status:             types.StatusActive,
		DailyPnL:           decimal.Zero,
		Balance:            req.Capital,
		HourBlock:          core.HourBlock(start, loc),
		FrequencyMode:      types.FrequencyNormal,
		CutoffAt:           cutoff,
		CreatedAt:          start,
		UpdatedAt:          start,
	}, nil
}

func decisionOf(now time.Time, price decimal.Decimal, out core.Outcome) (Decision, bool) {
	d := Decision{Time: now, Price: price, Decision: out.Decision}
	switch out.Decision {
	case core.DecisionEnter:
		d.TradeID = out.Opened.ID
		d.Detail = string(out.Opened.Side)
	case core.DecisionExit:
		d.TradeID = out.Closed.ID
		d.Detail = out.Closed.ExitReason
	case core.DecisionAutoClosed:
		if out.Closed != nil {
			d.TradeID = out.Closed.ID
			d.Detail = out.Closed.ExitReason
		}
	case core.DecisionRejected:
		d.Detail = out.Rejection.Error()
	case core.DecisionVetoed:
	default:
		return Decision{}, false
	}
	return d, true
}
