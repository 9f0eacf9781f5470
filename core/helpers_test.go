package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradeengine/execution"
	"github.com/web3guy0/tradeengine/feeds"
	"github.com/web3guy0/tradeengine/risk"
	"github.com/web3guy0/tradeengine/storage"
	"github.com/web3guy0/tradeengine/strategy"
	"github.com/web3guy0/tradeengine/types"
)

// stubStrategy enters and exits on command
type stubStrategy struct {
	mu      sync.Mutex
	name    string
	side    types.Side
	enter   bool
	exit    string
	panicOn string
	entries int
}

func newStub() *stubStrategy {
	return &stubStrategy{name: "stub", side: types.Long}
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) CheckEntry(_ context.Context, snap types.Snapshot) (*strategy.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Instrument == s.panicOn {
		panic("strategy blew up")
	}
	if !s.enter {
		return nil, nil
	}
	s.entries++
	return strategy.NewSignal().Side(s.side).Entry(snap.LastPrice).Reason("stub").Build(), nil
}

func (s *stubStrategy) CheckExit(_ context.Context, _ *types.Trade, snap types.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Instrument == s.panicOn {
		panic("strategy blew up")
	}
	return s.exit, nil
}

func (s *stubStrategy) set(enter bool, exit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enter = enter
	s.exit = exit
}

// recordingNotifier keeps every notification
type recordingNotifier struct {
	mu       sync.Mutex
	trades   []types.Trade
	warnings []string
}

func (n *recordingNotifier) NotifyTrade(_ *types.Session, trade *types.Trade) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades = append(n.trades, *trade)
}

func (n *recordingNotifier) NotifyWarning(_ *types.Session, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, message)
}

func (n *recordingNotifier) warningCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.warnings)
}

type fixture struct {
	t     *testing.T
	sched *Scheduler
	store *storage.Store
	feed  *feeds.StaticFeed
	strat *stubStrategy
	notes *recordingNotifier
	gate  *risk.Gate

	mu  sync.Mutex
	now time.Time
}

var testStart = time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)

func newFixture(t *testing.T, cfg Config, executors ...execution.Executor) *fixture {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		t:     t,
		store: store,
		feed:  feeds.NewStaticFeed(),
		strat: newStub(),
		notes: &recordingNotifier{},
		gate:  risk.NewGate(risk.NewStaticPolicyStore(risk.DefaultFrequencyPolicy()), risk.NewSizer(risk.DefaultConfig())),
		now:   testStart,
	}
	f.sched = f.build(cfg, executors...)
	return f
}

// build wires a scheduler over the fixture's store and feed
func (f *fixture) build(cfg Config, executors ...execution.Executor) *Scheduler {
	return f.buildOn(f.store, cfg, executors...)
}

func (f *fixture) buildOn(store SessionStore, cfg Config, executors ...execution.Executor) *Scheduler {
	if len(executors) == 0 {
		executors = []execution.Executor{execution.NewPaperExecutor()}
	}
	stepper := NewStepper(f.gate, strategy.NewRegistry(f.strat), nil, time.UTC)
	sched := NewScheduler(cfg, store, f.feed, execution.NewRouter(executors...), stepper)
	sched.SetClock(f.clock)
	sched.SetNotifier(f.notes)
	return sched
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *fixture) tick() {
	f.sched.Tick(context.Background(), f.clock())
}

func (f *fixture) price(instrument string, p int64) {
	f.feed.SetPrice(instrument, decimal.NewFromInt(p))
}

func (f *fixture) create(instrument string, capital int64) *types.Session {
	f.t.Helper()
	sess, err := f.sched.Create(context.Background(), CreateRequest{
		Instrument:       instrument,
		Capital:          decimal.NewFromInt(capital),
		RiskPerTradePct:  decimal.NewFromFloat(0.01),
		Mode:             types.ModePaper,
		StrategySelector: "stub",
	})
	require.NoError(f.t, err)
	return sess
}

func (f *fixture) status(id string) StatusView {
	f.t.Helper()
	st, err := f.sched.Status(context.Background(), id)
	require.NoError(f.t, err)
	return st
}

func (n *recordingNotifier) lastWarning() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.warnings) == 0 {
		return ""
	}
	return n.warnings[len(n.warnings)-1]
}

// flakyStore fails the next fails commits
type flakyStore struct {
	*storage.Store
	mu    sync.Mutex
	fails int
}

func (s *flakyStore) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails = n
}

func (s *flakyStore) CommitStep(ctx context.Context, sess *types.Session, opened, closed *types.Trade) error {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return errors.New("database is locked")
	}
	s.mu.Unlock()
	return s.Store.CommitStep(ctx, sess, opened, closed)
}

func (f *fixture) history(id string) []types.Trade {
	f.t.Helper()
	trades, err := f.sched.Trades(context.Background(), id)
	require.NoError(f.t, err)
	return trades
}
