package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradeengine/types"
)

func TestSize_RiskBasedQuantity(t *testing.T) {
	t.Parallel()

	s := NewSizer(DefaultConfig())
	got, err := s.Size(SizeRequest{
		Capital:  dec(100_000),
		RiskPct:  dec(0.01),
		Side:     types.Long,
		Entry:    dec(100),
		StopLoss: dec(97),
	})
	require.NoError(t, err)

	// 1000 / 3 = 333.33 -> 333
	assert.Equal(t, int64(333), got.Quantity)
	assert.True(t, got.MaxLoss.Equal(dec(1000)))
	assert.True(t, got.StopLoss.Equal(dec(97)))
	// default target: 100 + 3*2
	assert.True(t, got.Target.Equal(dec(106)), got.Target.String())
}

func TestSize_DefaultStopShort(t *testing.T) {
	t.Parallel()

	s := NewSizer(DefaultConfig())
	got, err := s.Size(SizeRequest{
		Capital: dec(50_000),
		RiskPct: dec(0.02),
		Side:    types.Short,
		Entry:   dec(200),
	})
	require.NoError(t, err)

	// stop 1% above entry, target two stop distances below
	assert.True(t, got.StopLoss.Equal(dec(202)), got.StopLoss.String())
	assert.True(t, got.Target.Equal(dec(196)), got.Target.String())
	assert.Equal(t, int64(500), got.Quantity)
}

func TestSize_TargetPctWhenNoRewardMultiple(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RewardMultiple = decimal.Zero
	s := NewSizer(cfg)

	got, err := s.Size(SizeRequest{
		Capital: dec(10_000), RiskPct: dec(0.01), Side: types.Long, Entry: dec(100),
	})
	require.NoError(t, err)
	assert.True(t, got.Target.Equal(dec(102)), got.Target.String())
}

func TestSize_SessionRiskFallsBackToConfig(t *testing.T) {
	t.Parallel()

	s := NewSizer(DefaultConfig())
	got, err := s.Size(SizeRequest{
		Capital: dec(10_000), Side: types.Long, Entry: dec(100), StopLoss: dec(99),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Quantity)
}

func TestSize_Rejections(t *testing.T) {
	t.Parallel()

	s := NewSizer(DefaultConfig())
	cases := map[string]SizeRequest{
		"quantity zero": {
			Capital: dec(100), RiskPct: dec(0.01), Side: types.Long, Entry: dec(100), StopLoss: dec(90),
		},
		"stop equals entry": {
			Capital: dec(100_000), RiskPct: dec(0.01), Side: types.Long, Entry: dec(100), StopLoss: dec(100),
		},
		"stop on wrong side": {
			Capital: dec(100_000), RiskPct: dec(0.01), Side: types.Long, Entry: dec(100), StopLoss: dec(101),
		},
		"daily loss limit": {
			Capital: dec(100_000), RiskPct: dec(0.01), DailyPnL: dec(-2_500), Side: types.Long,
			Entry: dec(100), StopLoss: dec(99),
		},
		"zero entry": {
			Capital: dec(100_000), RiskPct: dec(0.01), Side: types.Long,
		},
	}
	for name, req := range cases {
		req := req
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := s.Size(req)
			assert.True(t, types.IsRejection(err, types.RejectRiskLimit), "got %v", err)
		})
	}
}

func TestSize_DailyLimitBoundary(t *testing.T) {
	t.Parallel()

	s := NewSizer(DefaultConfig())
	// -2000 - 1000 = -3000, exactly the limit: allowed
	_, err := s.Size(SizeRequest{
		Capital: dec(100_000), RiskPct: dec(0.01), DailyPnL: dec(-2_000),
		Side: types.Long, Entry: dec(100), StopLoss: dec(99),
	})
	assert.NoError(t, err)
}
