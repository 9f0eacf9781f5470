package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/internal/id"
	"github.com/web3guy0/tradeengine/types"
)

// PaperExecutor fills every order immediately at the order price with no
// slippage and never touches a transport. The same type backs BACKTEST.
type PaperExecutor struct {
	mu     sync.Mutex
	mode   types.ExecutionMode
	prefix string
	now    func() time.Time

	// Metrics
	totalOrders int64
	totalVolume decimal.Decimal
}

// NewPaperExecutor creates the PAPER executor
func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{mode: types.ModePaper, prefix: "PAPER", now: time.Now}
}

// NewSimulator creates the BACKTEST fill simulator. now supplies simulated time.
func NewSimulator(now func() time.Time) *PaperExecutor {
	return &PaperExecutor{mode: types.ModeBacktest, prefix: "BT", now: now}
}

func (p *PaperExecutor) Mode() types.ExecutionMode { return p.mode }

// Submit simulates order execution for paper trading
func (p *PaperExecutor) Submit(ctx context.Context, order Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, &types.ExecutionFailure{Reason: "context done", Err: err}
	}
	if order.Quantity <= 0 || !order.Price.IsPositive() {
		return Fill{}, &types.ExecutionFailure{Reason: fmt.Sprintf("bad order qty=%d price=%s", order.Quantity, order.Price)}
	}

	ts := p.now()
	fill := Fill{
		OrderID:   p.prefix + "-" + id.At(ts),
		Price:     order.Price,
		Quantity:  order.Quantity,
		Timestamp: ts,
	}

	p.mu.Lock()
	p.totalOrders++
	p.totalVolume = p.totalVolume.Add(order.Price.Mul(decimal.NewFromInt(order.Quantity)))
	p.mu.Unlock()

	if p.mode == types.ModePaper {
		log.Info().
			Str("order_id", fill.OrderID).
			Str("session", order.SessionID).
			Str("instrument", order.Instrument).
			Str("action", string(order.Action)).
			Int64("qty", order.Quantity).
			Str("price", order.Price.StringFixed(2)).
			Msg("✅ Order filled (PAPER)")
	}
	return fill, nil
}

// GetMetrics returns execution metrics
func (p *PaperExecutor) GetMetrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{
		"mode":         string(p.mode),
		"total_orders": p.totalOrders,
		"total_volume": p.totalVolume.StringFixed(2),
	}
}
