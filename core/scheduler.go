package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/web3guy0/tradeengine/execution"
	"github.com/web3guy0/tradeengine/feeds"
	"github.com/web3guy0/tradeengine/internal/id"
	"github.com/web3guy0/tradeengine/internal/trace"
	"github.com/web3guy0/tradeengine/risk"
	"github.com/web3guy0/tradeengine/strategy"
	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SESSION SCHEDULER - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   ticker → for each ACTIVE session (bounded parallel)
//          → lock → snapshot → decision step → store → notify → unlock
//
// Each session is a single-writer actor: ticks, stop and kill all take the
// same per-session mutex. A failure in one session never aborts the others.
//
// ═══════════════════════════════════════════════════════════════════════════════

// StopPolicy decides what a user stop does with an open trade
type StopPolicy string

const (
	StopFreeze    StopPolicy = "FREEZE"
	StopSquareOff StopPolicy = "SQUARE_OFF"
)

// Config holds scheduler settings
type Config struct {
	TickInterval    time.Duration
	MaxParallel     int
	SnapshotTimeout time.Duration
	StopPolicy      StopPolicy
	MaxFailures     int    // consecutive failures before auto-stop, 0 disables
	DefaultCutoff   string // HH:MM in market time
	DefaultRiskPct  decimal.Decimal
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		TickInterval:    15 * time.Second,
		MaxParallel:     8,
		SnapshotTimeout: 3 * time.Second,
		StopPolicy:      StopFreeze,
		MaxFailures:     5,
		DefaultCutoff:   "15:15",
		DefaultRiskPct:  decimal.NewFromFloat(0.01),
	}
}

// SessionStore is the persistence the scheduler needs
type SessionStore interface {
	CreateSession(ctx context.Context, sess *types.Session) error
	SaveSession(ctx context.Context, sess *types.Session) error
	CommitStep(ctx context.Context, sess *types.Session, opened, closed *types.Trade) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListSessions(ctx context.Context, statuses ...types.SessionStatus) ([]*types.Session, error)
	TradeHistory(ctx context.Context, sessionID string) ([]types.Trade, error)
	OpenTrades(ctx context.Context) ([]*types.Trade, error)
	UnconfirmedExits(ctx context.Context) ([]string, error)
	ArchiveSession(ctx context.Context, id string) error
}

// Notifier receives trade events and session warnings (Telegram)
type Notifier interface {
	NotifyTrade(sess *types.Session, trade *types.Trade)
	NotifyWarning(sess *types.Session, message string)
}

// CreateRequest is the user input that starts a session
type CreateRequest struct {
	Instrument         string              `json:"instrument"`
	Capital            decimal.Decimal     `json:"capital"`
	RiskPerTradePct    decimal.Decimal     `json:"risk_per_trade_pct"`
	Mode               types.ExecutionMode `json:"execution_mode"`
	StrategySelector   string              `json:"strategy_selector"`
	CutoffTime         string              `json:"cutoff_time"`
	ExternalValidation bool                `json:"external_validation"`
}

// StatusView is the polling view of one session
type StatusView struct {
	ID               string              `json:"id"`
	Instrument       string              `json:"instrument"`
	Mode             types.ExecutionMode `json:"execution_mode"`
	Strategy         string              `json:"strategy_selector"`
	Status           types.SessionStatus `json:"status"`
	StopReason       string              `json:"stop_reason,omitempty"`
	CurrentTrade     *types.Trade        `json:"current_trade"`
	DailyPnL         decimal.Decimal     `json:"daily_pnl"`
	Balance          decimal.Decimal     `json:"balance"`
	HourlyTradeCount int                 `json:"hourly_trade_count"`
	HourlyLimit      int                 `json:"hourly_limit"`
	FrequencyMode    types.FrequencyMode `json:"frequency_mode"`
	TradesTakenToday int                 `json:"trades_taken_today"`
	LastPrice        decimal.Decimal     `json:"last_price"`
	CutoffAt         time.Time           `json:"cutoff_at"`
	LastError        string              `json:"last_error,omitempty"`
}

// sessionActor serialises every mutation of one session
type sessionActor struct {
	mu   sync.Mutex
	sess *types.Session
}

type Scheduler struct {
	mu     sync.RWMutex
	actors map[string]*sessionActor

	cfg        Config
	store      SessionStore
	feed       feeds.Provider
	router     *execution.Router
	stepper    *Stepper
	notifier   Notifier
	reconciler *execution.Reconciler
	clock      func() time.Time

	// Stats
	ticks int64
}

// NewScheduler creates the session scheduler
func NewScheduler(cfg Config, store SessionStore, feed feeds.Provider, router *execution.Router, stepper *Stepper) *Scheduler {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = def.MaxParallel
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = def.SnapshotTimeout
	}
	if cfg.StopPolicy == "" {
		cfg.StopPolicy = def.StopPolicy
	}
	if cfg.DefaultCutoff == "" {
		cfg.DefaultCutoff = def.DefaultCutoff
	}
	if !cfg.DefaultRiskPct.IsPositive() {
		cfg.DefaultRiskPct = def.DefaultRiskPct
	}

	return &Scheduler{
		actors:  make(map[string]*sessionActor),
		cfg:     cfg,
		store:   store,
		feed:    feed,
		router:  router,
		stepper: stepper,
		clock:   time.Now,
	}
}

// SetNotifier sets the callback for trade notifications
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetReconciler enables broker position checks on Resume
func (s *Scheduler) SetReconciler(r *execution.Reconciler) {
	s.reconciler = r
}

// SetClock overrides the wall clock
func (s *Scheduler) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Run ticks every TickInterval until ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.cfg.TickInterval).
		Int("parallel", s.cfg.MaxParallel).
		Msg("⚡ Scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, s.clock())
		}
	}
}

// Tick runs one decision step for every ACTIVE session
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	ctx, span := trace.StartSpan(ctx, "scheduler.tick")
	defer span.End()

	// Policy is read once per tick; reloads apply from the next one
	policy := s.stepper.Gate().Policy()
	actors := s.scheduled()

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxParallel)
	for _, a := range actors {
		a := a
		g.Go(func() error {
			s.tickSession(ctx, a, policy, now)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("sessions", len(actors)))
}

func (s *Scheduler) scheduled() []*sessionActor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*sessionActor, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a)
	}
	return out
}

func (s *Scheduler) tickSession(ctx context.Context, a *sessionActor, policy *risk.FrequencyPolicy, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Stop and kill may have run while this tick was queued
	if a.sess.Status != types.StatusActive {
		return
	}

	ctx, span := trace.StartSpan(ctx, "session.step",
		attribute.String("session", a.sess.ID),
		attribute.String("instrument", a.sess.Instrument),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.recordFailure(ctx, a.sess, &types.FatalSessionError{
				SessionID: a.sess.ID,
				Err:       fmt.Errorf("panic: %v", r),
			})
			s.persist(ctx, a.sess, nil, nil)
		}
	}()

	sess := a.sess
	ex, err := s.router.Route(sess.Mode)
	if err != nil {
		s.recordFailure(ctx, sess, &types.FatalSessionError{SessionID: sess.ID, Err: err})
		s.persist(ctx, sess, nil, nil)
		return
	}

	snap, err := s.snapshot(ctx, sess)
	if err != nil {
		if now.Before(sess.CutoffAt) {
			sess.LastError = err.Error()
			log.Debug().
				Str("session", sess.ID).
				Str("instrument", sess.Instrument).
				Err(err).
				Msg("Snapshot unavailable, skipping tick")
			return
		}
		// Cutoff is enforced even without fresh data
		snap = fallbackSnapshot(sess, now)
	}

	// Step on a copy so a panic leaves the actor's state untouched
	work := sess.Clone()
	out, err := s.stepper.Step(ctx, work, StepInput{
		Now:      now,
		Snapshot: snap,
		Policy:   policy,
		Executor: ex,
	})
	a.sess = work

	if err != nil {
		s.recordFailure(ctx, work, err)
		s.persist(ctx, work, nil, nil)
		return
	}

	work.ConsecutiveFailures = 0
	work.LastError = ""
	if out.Rejection != nil {
		work.LastError = out.Rejection.Error()
	}

	s.persist(ctx, work, out.Opened, out.Closed)
	s.notifyOutcome(work, out)
	span.SetAttributes(attribute.String("decision", out.Decision))
}

// recordFailure counts an execution or fatal failure and applies the threshold
func (s *Scheduler) recordFailure(ctx context.Context, sess *types.Session, err error) {
	sess.ConsecutiveFailures++
	sess.LastError = err.Error()

	log.Warn().
		Str("session", sess.ID).
		Str("instrument", sess.Instrument).
		Str("mode", string(sess.Mode)).
		Int("failures", sess.ConsecutiveFailures).
		Err(err).
		Msg("⚠️ Session step failed")
	s.warn(sess, err.Error())

	if s.cfg.MaxFailures > 0 && sess.ConsecutiveFailures > s.cfg.MaxFailures && sess.Status == types.StatusActive {
		sess.Status = types.StatusStopped
		sess.StopReason = types.StopReasonFailureThreshold
		sess.UpdatedAt = s.clock()

		log.Error().
			Str("session", sess.ID).
			Int("failures", sess.ConsecutiveFailures).
			Msg("🛑 Session stopped after repeated failures")
		s.warn(sess, fmt.Sprintf("stopped after %d consecutive failures", sess.ConsecutiveFailures))
	}
}

// persistAttempts bounds CommitStep retries while the session lock is held
const persistAttempts = 3

// persist commits the step even when ctx is cancelled, retrying a few times.
// If every attempt fails the store keeps the previous state and a warning goes out.
func (s *Scheduler) persist(ctx context.Context, sess *types.Session, opened, closed *types.Trade) {
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = s.store.CommitStep(ctx, sess, opened, closed); err == nil {
			return
		}
		log.Warn().
			Str("session", sess.ID).
			Int("attempt", attempt).
			Err(err).
			Msg("⚠️ Session commit failed, retrying...")
		if attempt < persistAttempts {
			time.Sleep(time.Duration(50*attempt) * time.Millisecond)
		}
	}

	log.Error().
		Str("session", sess.ID).
		Str("status", string(sess.Status)).
		Bool("in_trade", sess.CurrentTrade != nil).
		Err(err).
		Msg("❌ Failed to persist session")
	s.warn(sess, "session state not saved, stored state is stale: "+err.Error())
}

func (s *Scheduler) notifyOutcome(sess *types.Session, out Outcome) {
	if s.notifier == nil {
		return
	}
	if out.Closed != nil {
		s.notifier.NotifyTrade(sess, out.Closed)
	}
	if out.Opened != nil {
		s.notifier.NotifyTrade(sess, out.Opened)
	}
}

func (s *Scheduler) warn(sess *types.Session, msg string) {
	if s.notifier != nil {
		s.notifier.NotifyWarning(sess, msg)
	}
}

// snapshot fetches market data within SnapshotTimeout
func (s *Scheduler) snapshot(ctx context.Context, sess *types.Session) (types.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SnapshotTimeout)
	defer cancel()

	snap, err := s.feed.Snapshot(ctx, sess.Instrument)
	if err != nil {
		if !types.IsTransient(err) {
			err = &types.TransientDataError{Instrument: sess.Instrument, Err: err}
		}
		return types.Snapshot{}, err
	}
	return snap, nil
}

// fallbackSnapshot prices at the last tick price, then the entry price
func fallbackSnapshot(sess *types.Session, now time.Time) types.Snapshot {
	price := sess.LastPrice
	if !price.IsPositive() && sess.CurrentTrade != nil {
		price = sess.CurrentTrade.EntryPrice
	}
	return types.Snapshot{Instrument: sess.Instrument, LastPrice: price, Time: now}
}

// ═══════════════════════════════════════════════════════════════════════════════
// USER ACTIONS
// ═══════════════════════════════════════════════════════════════════════════════

// Create validates and starts a new ACTIVE session
func (s *Scheduler) Create(ctx context.Context, req CreateRequest) (*types.Session, error) {
	now := s.clock()
	loc := s.stepper.Location()

	req.Instrument = strings.ToUpper(strings.TrimSpace(req.Instrument))
	if req.Instrument == "" {
		return nil, types.NewValidationError("instrument", "required")
	}
	if !req.Capital.IsPositive() {
		return nil, types.NewValidationError("capital", "must be positive")
	}
	if req.RiskPerTradePct.IsZero() {
		req.RiskPerTradePct = s.cfg.DefaultRiskPct
	}
	if !req.RiskPerTradePct.IsPositive() || req.RiskPerTradePct.GreaterThan(decimal.NewFromInt(1)) {
		return nil, types.NewValidationError("risk_per_trade_pct", "must be in (0, 1]")
	}
	if req.Mode == "" {
		req.Mode = types.ModePaper
	}
	if !req.Mode.Valid() {
		return nil, types.NewValidationError("execution_mode", fmt.Sprintf("unknown mode %q", req.Mode))
	}
	if req.Mode == types.ModeBacktest {
		return nil, types.NewValidationError("execution_mode", "BACKTEST sessions run through replay")
	}
	if !s.router.Supports(req.Mode) {
		return nil, types.NewValidationError("execution_mode", fmt.Sprintf("%s execution is not configured", req.Mode))
	}
	if req.StrategySelector == "" {
		req.StrategySelector = strategy.AutoSelector
	}
	if _, err := s.stepper.Strategies().Resolve(req.StrategySelector); err != nil {
		return nil, types.NewValidationError("strategy_selector", err.Error())
	}
	if req.CutoffTime == "" {
		req.CutoffTime = s.cfg.DefaultCutoff
	}
	cutoff, err := ResolveCutoff(now, loc, req.CutoffTime)
	if err != nil {
		return nil, types.NewValidationError("cutoff_time", err.Error())
	}
	if !now.Before(cutoff) {
		return nil, types.NewValidationError("cutoff_time", "already passed for today")
	}

	lim := s.stepper.Gate().Policy().Evaluate(req.Capital, decimal.Zero)
	sess := &types.Session{
		ID:                 id.At(now),
		Instrument:         req.Instrument,
		Capital:            req.Capital,
		RiskPerTradePct:    req.RiskPerTradePct,
		Mode:               req.Mode,
		StrategySelector:   req.StrategySelector,
		ExternalValidation: req.ExternalValidation || req.StrategySelector == strategy.AutoSelector,
		Status:             types.StatusActive,
		DailyPnL:           decimal.Zero,
		Balance:            req.Capital,
		HourBlock:          HourBlock(now, loc),
		FrequencyMode:      lim.Mode,
		CutoffAt:           cutoff,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	s.register(sess)

	log.Info().
		Str("session", sess.ID).
		Str("instrument", sess.Instrument).
		Str("mode", string(sess.Mode)).
		Str("capital", sess.Capital.StringFixed(2)).
		Str("strategy", sess.StrategySelector).
		Time("cutoff", sess.CutoffAt).
		Int("hourly_limit", lim.Limit).
		Msg("🚀 Session started")

	return sess.Clone(), nil
}

func (s *Scheduler) register(sess *types.Session) {
	s.mu.Lock()
	s.actors[sess.ID] = &sessionActor{sess: sess}
	s.mu.Unlock()

	if w, ok := s.feed.(feeds.Watcher); ok {
		if err := w.Watch(sess.Instrument); err != nil {
			log.Warn().Err(err).Str("instrument", sess.Instrument).Msg("Failed to subscribe instrument")
		}
	}
}

func (s *Scheduler) actor(id string) (*sessionActor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	return a, ok
}

// Stop ends a session. FREEZE keeps an open trade, SQUARE_OFF exits it.
func (s *Scheduler) Stop(ctx context.Context, id string) (*types.Session, error) {
	a, ok := s.actor(id)
	if !ok {
		return s.loadTerminal(ctx, id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	sess := a.sess
	if sess.Status.Terminal() {
		return sess.Clone(), nil
	}

	now := s.clock()
	var closed *types.Trade
	if s.cfg.StopPolicy == StopSquareOff && sess.InTrade() {
		trade, err := s.exitNow(ctx, sess, types.ExitUserStop, now)
		if err != nil {
			// Position stays open on the stopped session; kill can still flatten it
			log.Warn().Str("session", sess.ID).Err(err).Msg("⚠️ Square-off failed, position frozen")
			s.warn(sess, "square-off failed: "+err.Error())
		}
		closed = trade
	}

	sess.Status = types.StatusStopped
	sess.StopReason = types.StopReasonUser
	sess.UpdatedAt = now
	s.persist(ctx, sess, nil, closed)
	if closed != nil && s.notifier != nil {
		s.notifier.NotifyTrade(sess, closed)
	}

	log.Info().
		Str("session", sess.ID).
		Str("instrument", sess.Instrument).
		Str("policy", string(s.cfg.StopPolicy)).
		Bool("in_trade", sess.InTrade()).
		Msg("⏹️ Session stopped")

	return sess.Clone(), nil
}

// Kill force-exits any open trade and stops the session
func (s *Scheduler) Kill(ctx context.Context, id string) (*types.Session, error) {
	a, ok := s.actor(id)
	if !ok {
		return s.loadTerminal(ctx, id)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	sess := a.sess
	now := s.clock()

	var closed *types.Trade
	if sess.InTrade() {
		trade, err := s.exitNow(ctx, sess, types.ExitKillSwitch, now)
		if err != nil {
			// Flatten locally; the broker side is checked by reconciliation
			snap := fallbackSnapshot(sess, now)
			var orderID string
			var ef *types.ExecutionFailure
			if errors.As(err, &ef) {
				orderID = ef.OrderID
			}
			trade = CloseTrade(sess, snap.LastPrice, orderID, types.ExitKillSwitch, now, false)

			log.Warn().
				Str("session", sess.ID).
				Str("instrument", sess.Instrument).
				Str("mode", string(sess.Mode)).
				Err(err).
				Msg("⚠️ Kill exit not confirmed, closed locally")
			s.warn(sess, "kill exit not confirmed by broker, reconcile "+sess.Instrument)
		}
		closed = trade
	}

	if sess.Status == types.StatusActive {
		sess.Status = types.StatusStopped
		sess.StopReason = types.StopReasonKill
	}
	sess.UpdatedAt = now
	s.persist(ctx, sess, nil, closed)
	if closed != nil && s.notifier != nil {
		s.notifier.NotifyTrade(sess, closed)
	}

	log.Warn().
		Str("session", sess.ID).
		Str("instrument", sess.Instrument).
		Str("mode", string(sess.Mode)).
		Msg("🚨 KILL SWITCH")

	return sess.Clone(), nil
}

// exitNow submits an exit at the current price. Caller holds the session lock.
func (s *Scheduler) exitNow(ctx context.Context, sess *types.Session, reason string, now time.Time) (*types.Trade, error) {
	ex, err := s.router.Route(sess.Mode)
	if err != nil {
		return nil, &types.ExecutionFailure{Reason: "no executor", Err: err}
	}
	snap := s.killSnapshot(ctx, sess, now)
	return s.stepper.exit(ctx, sess, StepInput{Now: now, Snapshot: snap, Executor: ex}, reason)
}

// killSnapshot prices at call time, falling back to the last known price
func (s *Scheduler) killSnapshot(ctx context.Context, sess *types.Session, now time.Time) types.Snapshot {
	snap, err := s.snapshot(ctx, sess)
	if err != nil || !snap.LastPrice.IsPositive() {
		return fallbackSnapshot(sess, now)
	}
	snap.Time = now
	sess.LastPrice = snap.LastPrice
	return snap
}

// loadTerminal answers stop/kill for sessions that are not scheduled
func (s *Scheduler) loadTerminal(ctx context.Context, id string) (*types.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Status.Terminal() {
		return nil, fmt.Errorf("session %s is active but not scheduled", id)
	}
	return sess, nil
}

// Status returns the polling view of a session
func (s *Scheduler) Status(ctx context.Context, id string) (StatusView, error) {
	if a, ok := s.actor(id); ok {
		a.mu.Lock()
		sess := a.sess.Clone()
		a.mu.Unlock()
		return s.view(sess), nil
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	return s.view(sess), nil
}

// List returns every stored session, live state overlaid, oldest first
func (s *Scheduler) List(ctx context.Context) ([]StatusView, error) {
	stored, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]StatusView, 0, len(stored))
	for _, sess := range stored {
		if a, ok := s.actor(sess.ID); ok {
			a.mu.Lock()
			sess = a.sess.Clone()
			a.mu.Unlock()
		}
		out = append(out, s.view(sess))
	}
	return out, nil
}

func (s *Scheduler) view(sess *types.Session) StatusView {
	// sess is always a copy; the count reported belongs to the current hour block
	RollHour(sess, s.clock(), s.stepper.Location())
	lim := s.stepper.Gate().Policy().Evaluate(sess.Capital, sess.DailyPnL)
	return StatusView{
		ID:               sess.ID,
		Instrument:       sess.Instrument,
		Mode:             sess.Mode,
		Strategy:         sess.StrategySelector,
		Status:           sess.Status,
		StopReason:       sess.StopReason,
		CurrentTrade:     sess.CurrentTrade,
		DailyPnL:         sess.DailyPnL,
		Balance:          sess.Balance,
		HourlyTradeCount: sess.HourlyTradeCount,
		HourlyLimit:      lim.Limit,
		FrequencyMode:    lim.Mode,
		TradesTakenToday: sess.TradesTakenToday,
		LastPrice:        sess.LastPrice,
		CutoffAt:         sess.CutoffAt,
		LastError:        sess.LastError,
	}
}

// Trades returns the closed trade history of a session
func (s *Scheduler) Trades(ctx context.Context, id string) ([]types.Trade, error) {
	if _, ok := s.actor(id); !ok {
		if _, err := s.store.GetSession(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.store.TradeHistory(ctx, id)
}

// Archive soft-deletes a terminal session and drops it from the scheduler
func (s *Scheduler) Archive(ctx context.Context, id string) error {
	if a, ok := s.actor(id); ok {
		a.mu.Lock()
		terminal := a.sess.Status.Terminal()
		a.mu.Unlock()
		if !terminal {
			return types.NewValidationError("status", "only stopped or auto-closed sessions can be archived")
		}
	}
	if err := s.store.ArchiveSession(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.actors, id)
	s.mu.Unlock()
	return nil
}

// Resume reloads ACTIVE sessions after a restart and reconciles LIVE positions
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	sessions, err := s.store.ListSessions(ctx, types.StatusActive)
	if err != nil {
		return 0, err
	}

	now := s.clock()
	loc := s.stepper.Location()
	resumed := 0
	for _, sess := range sessions {
		if !s.router.Supports(sess.Mode) {
			log.Warn().
				Str("session", sess.ID).
				Str("mode", string(sess.Mode)).
				Msg("Skipping session, execution mode not configured")
			continue
		}
		// Same hour block keeps its count; any other block starts at zero
		if RollHour(sess, now, loc) {
			log.Debug().Str("session", sess.ID).Msg("Hourly trade count reset on resume")
		}
		s.register(sess)
		resumed++
	}

	log.Info().Int("sessions", resumed).Msg("📂 Sessions resumed")

	if s.reconciler != nil {
		if err := s.reconcile(ctx); err != nil {
			log.Warn().Err(err).Msg("Position reconciliation failed")
		}
	}
	return resumed, nil
}

func (s *Scheduler) reconcile(ctx context.Context) error {
	open, err := s.store.OpenTrades(ctx)
	if err != nil {
		return err
	}
	unconfirmed, err := s.store.UnconfirmedExits(ctx)
	if err != nil {
		return err
	}

	mismatches, err := s.reconciler.Reconcile(ctx, open, unconfirmed)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		s.warn(&types.Session{Instrument: m.Instrument, Mode: types.ModeLive}, "position mismatch "+m.String())
	}
	return nil
}

// Stats reports scheduler counters
func (s *Scheduler) Stats() (ticks int64, sessions int, active int) {
	s.mu.RLock()
	actors := make([]*sessionActor, 0, len(s.actors))
	for _, a := range s.actors {
		actors = append(actors, a)
	}
	ticks = s.ticks
	s.mu.RUnlock()

	for _, a := range actors {
		a.mu.Lock()
		if a.sess.Status == types.StatusActive {
			active++
		}
		a.mu.Unlock()
	}
	return ticks, len(actors), active
}
