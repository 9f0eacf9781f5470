package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/tradeengine/types"
)

func newTestGate() *Gate {
	return NewGate(NewStaticPolicyStore(DefaultFrequencyPolicy()), NewSizer(DefaultConfig()))
}

func TestGate_FrequencyCheckedBeforeSizing(t *testing.T) {
	t.Parallel()

	g := newTestGate()
	sess := &types.Session{
		ID:               "s1",
		Capital:          dec(150_000),
		RiskPerTradePct:  dec(0.01),
		HourlyTradeCount: 3,
	}

	// Sizing would also fail (stop on wrong side) but the hourly limit wins
	_, err := g.CanEnter(g.Policy(), sess, EntryRequest{Side: types.Long, Entry: dec(100), StopLoss: dec(101)})
	assert.True(t, types.IsRejection(err, types.RejectHourlyLimit), "got %v", err)
}

func TestGate_Approves(t *testing.T) {
	t.Parallel()

	g := newTestGate()
	sess := &types.Session{ID: "s1", Capital: dec(150_000), RiskPerTradePct: dec(0.01)}

	ap, err := g.CanEnter(g.Policy(), sess, EntryRequest{Side: types.Long, Entry: dec(100), StopLoss: dec(98)})
	require.NoError(t, err)
	assert.Equal(t, 3, ap.Limit.Limit)
	assert.Equal(t, int64(750), ap.Sizing.Quantity)
	assert.True(t, ap.Sizing.MaxLoss.Equal(decimal.NewFromInt(1_500)))
}

func TestGate_RiskLimit(t *testing.T) {
	t.Parallel()

	g := newTestGate()
	sess := &types.Session{ID: "s1", Capital: dec(1_000), RiskPerTradePct: dec(0.001)}

	_, err := g.CanEnter(g.Policy(), sess, EntryRequest{Side: types.Long, Entry: dec(100), StopLoss: dec(95)})
	assert.True(t, types.IsRejection(err, types.RejectRiskLimit), "got %v", err)
}
