package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrade_JSONExitFieldsNullUntilClosed(t *testing.T) {
	t.Parallel()

	entry := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	trade := Trade{
		ID:         "T1",
		Instrument: "NIFTY",
		Side:       Long,
		Quantity:   10,
		EntryPrice: decimal.NewFromInt(100),
		EntryTime:  entry,
	}

	decode := func(v any) map[string]any {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		out := map[string]any{}
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	}

	open := decode(&trade)
	assert.Nil(t, open["exit_price"])
	assert.Nil(t, open["exit_time"])
	assert.Nil(t, open["realized_pnl"])
	assert.Equal(t, "100", open["entry_price"])
	assert.Equal(t, "NIFTY", open["instrument"])
	assert.NotContains(t, open, "exit_reason")

	trade.ExitPrice = decimal.NewFromInt(103)
	trade.ExitTime = entry.Add(4 * time.Minute)
	trade.ExitReason = ExitTarget
	trade.RealizedPnL = trade.PnLAt(trade.ExitPrice)

	closed := decode(trade)
	assert.Equal(t, "103", closed["exit_price"])
	assert.Equal(t, "2024-03-01T10:09:00Z", closed["exit_time"])
	assert.Equal(t, "30", closed["realized_pnl"])
	assert.Equal(t, ExitTarget, closed["exit_reason"])
}
