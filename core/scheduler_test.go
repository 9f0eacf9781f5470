package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradeengine/execution"
	"github.com/web3guy0/tradeengine/types"
)

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	base := CreateRequest{
		Instrument:       "NIFTY",
		Capital:          decimal.NewFromInt(100000),
		Mode:             types.ModePaper,
		StrategySelector: "stub",
	}

	tests := []struct {
		name  string
		edit  func(r *CreateRequest)
		field string
	}{
		{"missing instrument", func(r *CreateRequest) { r.Instrument = " " }, "instrument"},
		{"zero capital", func(r *CreateRequest) { r.Capital = decimal.Zero }, "capital"},
		{"risk above one", func(r *CreateRequest) { r.RiskPerTradePct = decimal.NewFromFloat(1.5) }, "risk_per_trade_pct"},
		{"unknown mode", func(r *CreateRequest) { r.Mode = "DEMO" }, "execution_mode"},
		{"backtest mode", func(r *CreateRequest) { r.Mode = types.ModeBacktest }, "execution_mode"},
		{"live not configured", func(r *CreateRequest) { r.Mode = types.ModeLive }, "execution_mode"},
		{"unknown strategy", func(r *CreateRequest) { r.StrategySelector = "nope" }, "strategy_selector"},
		{"bad cutoff", func(r *CreateRequest) { r.CutoffTime = "3pm" }, "cutoff_time"},
		{"cutoff passed", func(r *CreateRequest) { r.CutoffTime = "09:00" }, "cutoff_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.edit(&req)
			_, err := f.sched.Create(ctx, req)
			var ve *types.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	all, err := f.sched.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t, Config{})

	sess, err := f.sched.Create(context.Background(), CreateRequest{
		Instrument: "nifty",
		Capital:    decimal.NewFromInt(100000),
	})
	require.NoError(t, err)

	assert.Equal(t, "NIFTY", sess.Instrument)
	assert.Equal(t, types.ModePaper, sess.Mode)
	assert.Equal(t, "auto", sess.StrategySelector)
	assert.True(t, sess.ExternalValidation)
	assert.True(t, sess.RiskPerTradePct.Equal(decimal.NewFromFloat(0.01)))
	assert.Equal(t, time.Date(2024, 3, 1, 15, 15, 0, 0, time.UTC), sess.CutoffAt)
	assert.True(t, sess.Balance.Equal(sess.Capital))
	assert.Equal(t, types.StatusActive, sess.Status)

	stored, err := f.store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, stored.Status)
}

// Two trades already this hour with limit 2 are rejected until the next hour block
func TestTick_HourlyLimitThenReset(t *testing.T) {
	f := newFixture(t, Config{})
	f.price("NIFTY", 100)
	sess := f.create("NIFTY", 25000)

	for i := 0; i < 2; i++ {
		f.strat.set(true, "")
		f.tick()
		require.NotNil(t, f.status(sess.ID).CurrentTrade)
		f.strat.set(false, types.ExitTarget)
		f.tick()
		require.Nil(t, f.status(sess.ID).CurrentTrade)
	}

	st := f.status(sess.ID)
	assert.Equal(t, 2, st.HourlyTradeCount)
	assert.Equal(t, 2, st.HourlyLimit)

	f.strat.set(true, "")
	f.tick()
	st = f.status(sess.ID)
	assert.Nil(t, st.CurrentTrade)
	assert.Contains(t, st.LastError, types.RejectHourlyLimit)
	assert.Equal(t, 2, st.HourlyTradeCount)

	f.setNow(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC))
	f.tick()
	st = f.status(sess.ID)
	require.NotNil(t, st.CurrentTrade)
	assert.Equal(t, 1, st.HourlyTradeCount)
	assert.Equal(t, 3, st.TradesTakenToday)
	assert.Empty(t, st.LastError)
}

func TestStatus_ReportsCurrentHourCount(t *testing.T) {
	f := newFixture(t, Config{})
	f.price("NIFTY", 100)
	sess := f.create("NIFTY", 25000)

	f.strat.set(true, "")
	f.tick()
	assert.Equal(t, 1, f.status(sess.ID).HourlyTradeCount)

	// Next hour, no tick yet
	f.setNow(time.Date(2024, 3, 1, 11, 2, 0, 0, time.UTC))
	st := f.status(sess.ID)
	assert.Equal(t, 0, st.HourlyTradeCount)
	assert.Equal(t, 2, st.HourlyLimit)

	views, err := f.sched.List(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 0, views[0].HourlyTradeCount)
}

func TestTick_SinglePosition(t *testing.T) {
	f := newFixture(t, Config{})
	f.price("NIFTY", 100)
	sess := f.create("NIFTY", 1_000_000)
	f.strat.set(true, "")

	for i := 0; i < 5; i++ {
		f.tick()
	}

	st := f.status(sess.ID)
	require.NotNil(t, st.CurrentTrade)
	assert.Equal(t, 1, st.HourlyTradeCount)
	assert.Equal(t, 1, f.strat.entries)

	open, err := f.store.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestTick_ExitAppliesPnL(t *testing.T) {
	f := newFixture(t, Config{})
	f.price("NIFTY", 100)
	sess := f.create("NIFTY", 25000)

	f.strat.set(true, "")
	f.tick()
	trade := f.status(sess.ID).CurrentTrade
	require.NotNil(t, trade)
	assert.Equal(t, int64(250), trade.Quantity)
	assert.True(t, trade.StopLoss.Equal(decimal.NewFromInt(99)))
	assert.True(t, trade.Target.Equal(decimal.NewFromInt(102)))

	f.price("NIFTY", 102)
	f.strat.set(false, types.ExitTarget)
	f.tick()

	st := f.status(sess.ID)
	assert.Nil(t, st.CurrentTrade)
	assert.True(t, st.DailyPnL.Equal(decimal.NewFromInt(500)))
	assert.True(t, st.Balance.Equal(decimal.NewFromInt(25500)))

	hist := f.history(sess.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, types.ExitTarget, hist[0].ExitReason)
	assert.Equal(t, types.ModePaper, hist[0].Mode)
	assert.True(t, hist[0].RealizedPnL.Equal(decimal.NewFromInt(500)))

	// open + close
	assert.Len(t, f.notes.trades, 2)
}

func TestKill_InTrade(t *testing.T) {
	f := newFixture(t, Config{})
	f.price("NIFTY", 100)
	sess := f.create("NIFTY", 25000)

	f.strat.set(true, "")
	f.tick()
	require.NotNil(t, f.status(sess.ID).CurrentTrade)

	f.price("NIFTY", 97)
	killed, err := f.sched.Kill(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, killed.CurrentTrade)
	assert.Equal(t, types.StatusStopped, killed.Status)
	assert.Equal(t, types.StopReasonKill, killed.StopReason)

	hist := f.history(sess.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, types.ExitKillSwitch, hist[0].ExitReason)
	assert.True(t, hist[0].ExitPrice.Equal(decimal.NewFromInt(97)))
	assert.True(t, hist[0].RealizedPnL.Equal(decimal.NewFromInt(-750)))
	assert.True(t, hist[0].ExitConfirmed)

	// Idempotent
	again, err := f.sched.Kill(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusStopped, again.Status)
	assert.Len(t, f.history(sess.ID), 1)

	// No more ticks for a stopped session
	f.tick()
	assert.Equal(t, 1, f.strat.entries)
}

// Kill issued while a tick is waiting on market data runs right after that tick
func TestKill_CommitRetriedThenWarned(t *testing.T) {
	f := newFixture(t, Config{})
	flaky := &flakyStore{Store: f.store}
	f.sched = f.buildOn(flaky, Config{})
	f.price("NIFTY", 100)
	f.price("BANKNIFTY", 200)

	// Transient commit failures are retried before the lock is released
	sess := f.create("NIFTY", 25000)
	f.strat.set(true, "")
	f.tick()
	f.strat.set(false, "")
	require.NotNil(t, f.status(sess.ID).CurrentTrade)

	flaky.failNext(persistAttempts - 1)
	_, err := f.sched.Kill(context.Background(), sess.ID)
	require.NoError(t, err)

	stored, err := f.store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusStopped, stored.Status)
	assert.Nil(t, stored.CurrentTrade)
	assert.NotContains(t, f.notes.lastWarning(), "not saved")

	// Exhausted retries leave the old row and raise a warning
	other := f.create("BANKNIFTY", 25000)
	f.strat.set(true, "")
	f.tick()
	f.strat.set(false, "")
	require.NotNil(t, f.status(other.ID).CurrentTrade)

	flaky.failNext(persistAttempts)
	_, err = f.sched.Kill(context.Background(), other.ID)
	require.NoError(t, err)

	stored, err = f.store.GetSession(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, stored.Status)
	assert.NotNil(t, stored.CurrentTrade)
	assert.Contains(t, f.notes.lastWarning(), "not saved")
}

func TestKill_DuringTickWait(t *testing.T) {
	f := newFixture(t, Config{SnapshotTimeout: time.Second})
	f.price("NIFTY", 100)
	sess := f.create("NIFTY", 25000)

	f.strat.set(true, "")
	f.tick()
	require.NotNil(t, f.status(sess.ID).CurrentTrade)

	f.price("NIFTY", 101)
	f.feed.SetDelay(50 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.tick()
	}()
	time.Sleep(10 * time.Millisecond)

	killed, err := f.sched.Kill(context.Background(), sess.ID)
	require.NoError(t, err)
	wg.Wait()

	assert.Nil(t, killed.CurrentTrade)
	assert.Equal(t, types.StatusStopped, killed.Status)

	hist := f.history(sess.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, types.ExitKillSwitch, hist[0].ExitReason)
	assert.True(t, hist[0].ExitPrice.Equal(decimal.NewFromInt(101)))
}

func TestKill_FallsBackToLastPrice(t *testing.T) {
	f := newFixture(t, Config{SnapshotTimeout: 20 * time.Millisecond})
	f.price("NIFTY", 100)
	sess := f.create("NIFTY", 25000)

	f.strat.set(true, "")
	f.tick()
	f.feed.Fail("NIFTY", errors.New("feed down"))

	killed, err := f.sched.Kill(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, killed.CurrentTrade)

	hist := f.history(sess.ID)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].ExitPrice.Equal(decimal.NewFromInt(100)))
}

func TestTick_CutoffAutoCloses(t *testing.T) {
	f := newFixture(t, Config{})
	f.price("NIFTY", 100)
	sess := f.create("NIFTY", 25000)

	f.strat.set(true, "")
	f.tick()
	require.NotNil(t, f.status(sess.ID).CurrentTrade)

	f.price("NIFTY", 101)
	f.setNow(time.Date(2024, 3, 1, 15, 15, 0, 0, time.UTC))
	f.tick()

	st := f.status(sess.ID)
	assert.Nil(t, st.CurrentTrade)
	assert.Equal(t, types.StatusAutoClosed, st.Status)
	assert.Equal(t, types.StopReasonCutoff, st.StopReason)

	hist := f.history(sess.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, types.ExitCutoff, hist[0].ExitReason)

	// No further ticks processed
	f.setNow(time.Date(2024, 3, 1, 15, 16, 0, 0, time.UTC))
	f.tick()
	assert.Equal(t, 1, f.strat.entries)
	assert.Len(t, f.history(sess.ID), 1)
}

func TestTick_CutoffEnforcedWithoutMarketData(t *testing.T) {
	f := newFixture(t, Config{})
	f.price("NIFTY", 100)
	sess := f.create("NIFTY", 25000)

	f.strat.set(true, "")
	f.tick()
	f.feed.Fail("NIFTY", errors.New("feed down"))

	f.setNow(time.Date(2024, 3, 1, 15, 20, 0, 0, time.UTC))
	f.tick()

	st := f.status(sess.ID)
	assert.Equal(t, types.StatusAutoClosed, st.Status)
	hist := f.history(sess.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, types.ExitCutoff, hist[0].ExitReason)
	assert.True(t, hist[0].ExitPrice.Equal(decimal.NewFromInt(100)))
}

func TestStop_FreezeAndSquareOff(t *testing.T) {
	t.Run("freeze keeps the position", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.price("NIFTY", 100)
		sess := f.create("NIFTY", 25000)
		f.strat.set(true, "")
		f.tick()

		stopped, err := f.sched.Stop(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusStopped, stopped.Status)
		assert.Equal(t, types.StopReasonUser, stopped.StopReason)
		assert.NotNil(t, stopped.CurrentTrade)
		assert.Empty(t, f.history(sess.ID))

		// Idempotent
		_, err = f.sched.Stop(context.Background(), sess.ID)
		require.NoError(t, err)

		// Kill still flattens a frozen position
		killed, err := f.sched.Kill(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Nil(t, killed.CurrentTrade)
		assert.Equal(t, types.StopReasonUser, killed.StopReason)
	})

	t.Run("square off exits", func(t *testing.T) {
		f := newFixture(t, Config{StopPolicy: StopSquareOff})
		f.price("NIFTY", 100)
		sess := f.create("NIFTY", 25000)
		f.strat.set(true, "")
		f.tick()

		stopped, err := f.sched.Stop(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Nil(t, stopped.CurrentTrade)

		hist := f.history(sess.ID)
		require.Len(t, hist, 1)
		assert.Equal(t, types.ExitUserStop, hist[0].ExitReason)
	})
}

func TestStopKill_UnknownSession(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.sched.Stop(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
	_, err = f.sched.Kill(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
	_, err = f.sched.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestTick_TransientDataSkipsSession(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.create("NIFTY", 25000)
	f.strat.set(true, "")

	f.tick() // no price yet
	st := f.status(sess.ID)
	assert.Nil(t, st.CurrentTrade)
	assert.Equal(t, types.StatusActive, st.Status)
	assert.NotEmpty(t, st.LastError)
	assert.Zero(t, f.notes.warningCount())

	f.price("NIFTY", 100)
	f.tick()
	assert.NotNil(t, f.status(sess.ID).CurrentTrade)
}

func TestTick_FailureIsolatedAndThreshold(t *testing.T) {
	f := newFixture(t, Config{MaxFailures: 2})
	f.price("BAD", 100)
	f.price("GOOD", 100)
	bad := f.create("BAD", 25000)
	good := f.create("GOOD", 25000)
	f.strat.panicOn = "BAD"
	f.strat.set(true, "")

	f.tick()
	st := f.status(bad.ID)
	assert.Equal(t, types.StatusActive, st.Status)
	assert.Contains(t, st.LastError, "panic")
	assert.NotNil(t, f.status(good.ID).CurrentTrade)

	f.tick()
	assert.Equal(t, types.StatusActive, f.status(bad.ID).Status)
	f.tick()

	st = f.status(bad.ID)
	assert.Equal(t, types.StatusStopped, st.Status)
	assert.Equal(t, types.StopReasonFailureThreshold, st.StopReason)
	assert.Equal(t, types.StatusActive, f.status(good.ID).Status)

	stored, err := f.store.GetSession(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusStopped, stored.Status)
}

func TestResume_KeepsSameHourCount(t *testing.T) {
	f := newFixture(t, Config{})
	f.price("NIFTY", 100)
	sess := f.create("NIFTY", 25000)
	f.strat.set(true, "")
	f.tick()

	// Restart within the same hour
	f.setNow(testStart.Add(20 * time.Minute))
	restarted := f.build(Config{})
	n, err := restarted.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := restarted.Status(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, st.CurrentTrade)
	assert.Equal(t, 1, st.HourlyTradeCount)

	// Restart in a later hour
	f.setNow(time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC))
	later := f.build(Config{})
	_, err = later.Resume(context.Background())
	require.NoError(t, err)
	st, err = later.Status(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, st.HourlyTradeCount)
	assert.NotNil(t, st.CurrentTrade)
}

func TestArchive(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.create("NIFTY", 25000)

	err := f.sched.Archive(context.Background(), sess.ID)
	assert.True(t, types.IsValidation(err))

	_, err = f.sched.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NoError(t, f.sched.Archive(context.Background(), sess.ID))

	_, err = f.sched.Status(context.Background(), sess.ID)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

// liveBroker fills buys immediately and leaves sells working forever
type liveBroker struct {
	mu     sync.Mutex
	orders map[string]execution.OrderRequest
	seq    int
}

func (b *liveBroker) PlaceOrder(_ context.Context, req execution.OrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	orderID := "LV-" + string(rune('0'+b.seq))
	b.orders[orderID] = req
	return orderID, nil
}

func (b *liveBroker) OrderStatus(_ context.Context, orderID string) (execution.OrderStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req := b.orders[orderID]
	if req.Action == execution.Buy {
		return execution.OrderStatus{
			OrderID:   orderID,
			State:     execution.OrderStateFilled,
			FilledQty: req.Quantity,
			AvgPrice:  req.Price.Add(decimal.NewFromFloat(0.5)),
		}, nil
	}
	return execution.OrderStatus{OrderID: orderID, State: execution.OrderStateOpen}, nil
}

func (b *liveBroker) CancelOrder(context.Context, string) error { return nil }

func (b *liveBroker) Positions(context.Context) (map[string]int64, error) {
	return map[string]int64{"NIFTY": 250}, nil
}

func TestLive_ConfirmedEntryUnconfirmedKill(t *testing.T) {
	broker := &liveBroker{orders: make(map[string]execution.OrderRequest)}
	live := execution.NewLiveExecutor(broker, execution.ExecutorConfig{
		FillTimeout:   100 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		CancelTimeout: 20 * time.Millisecond,
	})
	f := newFixture(t, Config{}, execution.NewPaperExecutor(), live)
	f.price("NIFTY", 100)

	sess, err := f.sched.Create(context.Background(), CreateRequest{
		Instrument:       "NIFTY",
		Capital:          decimal.NewFromInt(25000),
		Mode:             types.ModeLive,
		StrategySelector: "stub",
	})
	require.NoError(t, err)

	f.strat.set(true, "")
	f.tick()
	trade := f.status(sess.ID).CurrentTrade
	require.NotNil(t, trade)
	// Confirmed fill price, not the requested one
	assert.True(t, trade.EntryPrice.Equal(decimal.NewFromFloat(100.5)))
	assert.Equal(t, types.ModeLive, trade.Mode)

	// Exit never fills: the tick fails but the position stays open
	f.strat.set(false, types.ExitTarget)
	f.tick()
	st := f.status(sess.ID)
	require.NotNil(t, st.CurrentTrade)
	assert.Contains(t, st.LastError, "execution failed")

	killed, err := f.sched.Kill(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Nil(t, killed.CurrentTrade)
	assert.Equal(t, types.StatusStopped, killed.Status)

	hist := f.history(sess.ID)
	require.Len(t, hist, 1)
	assert.False(t, hist[0].ExitConfirmed)
	assert.Equal(t, types.ExitKillSwitch, hist[0].ExitReason)

	unconfirmed, err := f.store.UnconfirmedExits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"NIFTY"}, unconfirmed)
	assert.NotZero(t, f.notes.warningCount())

	// Restart reconciles the broker position left behind
	restarted := f.build(Config{}, execution.NewPaperExecutor(), live)
	restarted.SetReconciler(execution.NewReconciler(broker))
	before := f.notes.warningCount()
	_, err = restarted.Resume(context.Background())
	require.NoError(t, err)
	assert.Greater(t, f.notes.warningCount(), before)
}
