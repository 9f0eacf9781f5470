package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradeengine/types"
)

func closes(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func snap(last float64, window ...float64) types.Snapshot {
	return types.Snapshot{Instrument: "NIFTY", LastPrice: decimal.NewFromFloat(last), Window: closes(window...)}
}

func TestBreakout_Entry(t *testing.T) {
	t.Parallel()

	b := NewBreakout(3, decimal.Zero, true)
	ctx := context.Background()

	sig, err := b.CheckEntry(ctx, snap(106, 100, 103, 105, 104))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, types.Long, sig.Side)
	assert.True(t, sig.StopLoss.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, BreakoutName, sig.Strategy)
	assert.True(t, sig.Validate())

	sig, err = b.CheckEntry(ctx, snap(99, 100, 103, 105, 104))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, types.Short, sig.Side)
	assert.True(t, sig.StopLoss.Equal(decimal.NewFromInt(105)))

	sig, err = b.CheckEntry(ctx, snap(104, 100, 103, 105, 104))
	require.NoError(t, err)
	assert.Nil(t, sig)

	// Too little history
	sig, err = b.CheckEntry(ctx, snap(200, 100))
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestMeanRevert_EntryAndExit(t *testing.T) {
	t.Parallel()

	m := NewMeanRevert(4, decimal.NewFromInt(1), false)
	ctx := context.Background()

	sig, err := m.CheckEntry(ctx, snap(90, 100, 102, 98, 100))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, types.Long, sig.Side)
	assert.True(t, sig.Target.Equal(decimal.NewFromInt(100)))

	trade := &types.Trade{Side: types.Long, EntryPrice: decimal.NewFromInt(90), StopLoss: decimal.NewFromInt(85)}
	reason, err := m.CheckExit(ctx, trade, snap(101, 100, 102, 98, 100))
	require.NoError(t, err)
	assert.Equal(t, ExitMeanReverted, reason)

	reason, err = m.CheckExit(ctx, trade, snap(84, 100, 102, 98, 100))
	require.NoError(t, err)
	assert.Equal(t, types.ExitStopLoss, reason)
}

func TestCheckStopTarget(t *testing.T) {
	t.Parallel()

	long := &types.Trade{Side: types.Long, StopLoss: decimal.NewFromInt(95), Target: decimal.NewFromInt(110)}
	short := &types.Trade{Side: types.Short, StopLoss: decimal.NewFromInt(105), Target: decimal.NewFromInt(90)}

	assert.Equal(t, types.ExitStopLoss, CheckStopTarget(long, decimal.NewFromInt(95)))
	assert.Equal(t, types.ExitTarget, CheckStopTarget(long, decimal.NewFromInt(111)))
	assert.Equal(t, "", CheckStopTarget(long, decimal.NewFromInt(100)))
	assert.Equal(t, types.ExitStopLoss, CheckStopTarget(short, decimal.NewFromInt(106)))
	assert.Equal(t, types.ExitTarget, CheckStopTarget(short, decimal.NewFromInt(90)))
	assert.Equal(t, "", CheckStopTarget(short, decimal.Zero))
}

type stubStrategy struct {
	name   string
	signal *Signal
	exit   string
	err    error
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) CheckEntry(context.Context, types.Snapshot) (*Signal, error) {
	return s.signal, s.err
}
func (s *stubStrategy) CheckExit(context.Context, *types.Trade, types.Snapshot) (string, error) {
	return s.exit, nil
}

func TestRegistry_AutoFirstSignalWins(t *testing.T) {
	t.Parallel()

	quiet := &stubStrategy{name: "quiet"}
	loud := &stubStrategy{name: "loud", signal: &Signal{Side: types.Long, Entry: decimal.NewFromInt(10)}, exit: "LOUD_EXIT"}
	r := NewRegistry(quiet, loud)

	s, err := r.Resolve(AutoSelector)
	require.NoError(t, err)

	sig, err := s.CheckEntry(context.Background(), types.Snapshot{})
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, "loud", sig.Strategy)

	reason, err := s.CheckExit(context.Background(), &types.Trade{StrategyName: "loud"}, types.Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, "LOUD_EXIT", reason)

	_, err = r.Resolve("missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"loud", "quiet"}, r.Names())
}

func TestRegistry_AutoPropagatesErrors(t *testing.T) {
	t.Parallel()

	r := NewRegistry(&stubStrategy{name: "broken", err: errors.New("boom")})
	s, err := r.Resolve(AutoSelector)
	require.NoError(t, err)

	_, err = s.CheckEntry(context.Background(), types.Snapshot{})
	assert.ErrorContains(t, err, "broken")
}

type fixedBias decimal.Decimal

func (f fixedBias) Bias(context.Context, string) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}

func TestValidators(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	long := &Signal{Side: types.Long}
	short := &Signal{Side: types.Short}

	bullish := NewBiasValidator(fixedBias(decimal.NewFromFloat(0.6)), decimal.NewFromFloat(0.3))
	ok, err := bullish.Validate(ctx, types.Snapshot{}, long)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = bullish.Validate(ctx, types.Snapshot{}, short)
	assert.False(t, ok)

	trend := NewTrendValidator(3)
	ok, _ = trend.Validate(ctx, snap(110, 100, 101, 102), long)
	assert.True(t, ok)
	ok, _ = trend.Validate(ctx, snap(110, 100, 101, 102), short)
	assert.False(t, ok)
	ok, _ = trend.Validate(ctx, snap(110), long)
	assert.False(t, ok)
}

func TestSignalBuilder_Validate(t *testing.T) {
	t.Parallel()

	sig := NewSignal().
		Side(types.Short).
		Entry(decimal.NewFromInt(100)).
		StopLoss(decimal.NewFromInt(102)).
		Target(decimal.NewFromInt(96)).
		Reason("fade").
		Strategy("meanrevert").
		Build()
	assert.True(t, sig.Validate())
	assert.Equal(t, "meanrevert", sig.Strategy)

	// Long by default, stop must sit below entry
	bad := NewSignal().Entry(decimal.NewFromInt(100)).StopLoss(decimal.NewFromInt(101)).Build()
	assert.Equal(t, types.Long, bad.Side)
	assert.False(t, bad.Validate())

	assert.False(t, NewSignal().Build().Validate())
}
