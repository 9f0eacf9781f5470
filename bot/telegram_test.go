package bot

import (
	"context"
	"fmt"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradeengine/core"
	"github.com/web3guy0/tradeengine/types"
)

type fakeController struct {
	views   map[string]core.StatusView
	trades  []types.Trade
	stopped []string
	killed  []string
}

func (f *fakeController) List(context.Context) ([]core.StatusView, error) {
	var out []core.StatusView
	for _, v := range f.views {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeController) Status(_ context.Context, id string) (core.StatusView, error) {
	v, ok := f.views[id]
	if !ok {
		return core.StatusView{}, fmt.Errorf("load %s: %w", id, types.ErrSessionNotFound)
	}
	return v, nil
}

func (f *fakeController) Stop(_ context.Context, id string) (*types.Session, error) {
	if _, ok := f.views[id]; !ok {
		return nil, types.ErrSessionNotFound
	}
	f.stopped = append(f.stopped, id)
	return &types.Session{ID: id, Status: types.StatusStopped}, nil
}

func (f *fakeController) Kill(_ context.Context, id string) (*types.Session, error) {
	if _, ok := f.views[id]; !ok {
		return nil, types.ErrSessionNotFound
	}
	f.killed = append(f.killed, id)
	return &types.Session{ID: id, Status: types.StatusStopped, DailyPnL: decimal.NewFromInt(-750)}, nil
}

func (f *fakeController) Trades(context.Context, string) ([]types.Trade, error) {
	return f.trades, nil
}

type captureSender struct {
	texts []string
}

func (c *captureSender) Send(m tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := m.(tgbotapi.MessageConfig); ok {
		c.texts = append(c.texts, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func newFixture() (*TelegramBot, *fakeController, *captureSender) {
	ctl := &fakeController{views: map[string]core.StatusView{
		"S1": {
			ID:          "S1",
			Instrument:  "NIFTY",
			Mode:        types.ModePaper,
			Status:      types.StatusActive,
			DailyPnL:    decimal.NewFromInt(500),
			HourlyLimit: 2,
			CutoffAt:    time.Date(2024, 3, 1, 15, 15, 0, 0, time.UTC),
		},
	}}
	sender := &captureSender{}
	return newBot(sender, 42, ctl), ctl, sender
}

func TestReply_Commands(t *testing.T) {
	t.Parallel()

	b, ctl, _ := newFixture()
	ctx := context.Background()

	assert.Contains(t, b.Reply(ctx, "help", ""), "/kill")
	assert.Contains(t, b.Reply(ctx, "sessions", ""), "NIFTY")
	assert.Contains(t, b.Reply(ctx, "status", "S1"), "+500.00")
	assert.Contains(t, b.Reply(ctx, "status", ""), "Usage")
	assert.Contains(t, b.Reply(ctx, "status", "nope"), "not found")
	assert.Contains(t, b.Reply(ctx, "bogus", ""), "Unknown")

	assert.Contains(t, b.Reply(ctx, "stop", "S1"), "stopped")
	assert.Equal(t, []string{"S1"}, ctl.stopped)

	assert.Contains(t, b.Reply(ctx, "KILL", " S1 "), "-750.00")
	assert.Equal(t, []string{"S1"}, ctl.killed)
}

func TestReply_Trades(t *testing.T) {
	t.Parallel()

	b, ctl, _ := newFixture()
	ctx := context.Background()

	assert.Contains(t, b.Reply(ctx, "trades", "S1"), "No trade history")

	ctl.trades = []types.Trade{{
		Side:        types.Long,
		Instrument:  "NIFTY",
		Quantity:    250,
		EntryPrice:  decimal.NewFromInt(100),
		ExitPrice:   decimal.NewFromInt(102),
		ExitReason:  types.ExitTarget,
		RealizedPnL: decimal.NewFromInt(500),
	}}
	reply := b.Reply(ctx, "trades", "S1")
	assert.Contains(t, reply, "TARGET")
	assert.Contains(t, reply, "+500.00")
}

func TestNotify_TradeAndWarning(t *testing.T) {
	t.Parallel()

	b, _, sender := newFixture()
	sess := &types.Session{ID: "01HSESSION0001", Instrument: "NIFTY", DailyPnL: decimal.NewFromInt(-750)}

	open := &types.Trade{Instrument: "NIFTY", Side: types.Long, Mode: types.ModeLive, Quantity: 250, EntryPrice: decimal.NewFromInt(100)}
	b.NotifyTrade(sess, open)

	closed := *open
	closed.ExitReason = types.ExitKillSwitch
	closed.ExitPrice = decimal.NewFromInt(97)
	closed.RealizedPnL = decimal.NewFromInt(-750)
	b.NotifyTrade(sess, &closed)

	b.NotifyWarning(sess, "exit order timed out")

	require.Len(t, sender.texts, 3)
	assert.Contains(t, sender.texts[0], "OPEN")
	assert.Contains(t, sender.texts[1], "KILL_SWITCH")
	assert.Contains(t, sender.texts[1], "not confirmed")
	assert.Contains(t, sender.texts[2], "exit order timed out")
}
