package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/internal/id"
	"github.com/web3guy0/tradeengine/types"
)

// Broker is the brokerage transport used by the LIVE executor
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	OrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	CancelOrder(ctx context.Context, orderID string) error
	Positions(ctx context.Context) (map[string]int64, error) // signed net quantity per instrument
}

// OrderRequest is what the broker receives
type OrderRequest struct {
	ClientID   string          `json:"client_id"`
	Instrument string          `json:"instrument"`
	Action     Action          `json:"action"`
	Quantity   int64           `json:"quantity"`
	Type       string          `json:"type"`
	Price      decimal.Decimal `json:"price"` // reference only for MARKET
}

// OrderStatus is the broker's view of an order
type OrderStatus struct {
	OrderID   string          `json:"order_id"`
	State     OrderState      `json:"state"`
	FilledQty int64           `json:"filled_qty"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	Reason    string          `json:"reason,omitempty"`
}

// LiveExecutor sends orders to the broker and waits for a confirmed fill
type LiveExecutor struct {
	mu     sync.RWMutex
	broker Broker
	config ExecutorConfig

	// Metrics
	totalOrders    int64
	filledOrders   int64
	rejectedOrders int64
}

// NewLiveExecutor creates the LIVE executor
func NewLiveExecutor(broker Broker, config ExecutorConfig) *LiveExecutor {
	def := DefaultExecutorConfig()
	if config.FillTimeout <= 0 {
		config.FillTimeout = def.FillTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.CancelTimeout <= 0 {
		config.CancelTimeout = def.CancelTimeout
	}

	log.Info().
		Str("mode", "LIVE").
		Int("max_retries", config.MaxRetries).
		Dur("fill_timeout", config.FillTimeout).
		Msg("⚡ Executor initialized")

	return &LiveExecutor{broker: broker, config: config}
}

func (e *LiveExecutor) Mode() types.ExecutionMode { return types.ModeLive }

// Submit places the order and blocks until FILLED, a terminal failure, or
// FillTimeout. Only a confirmed fill is returned without error.
func (e *LiveExecutor) Submit(ctx context.Context, order Order) (Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.FillTimeout)
	defer cancel()

	if order.ClientID == "" {
		order.ClientID = id.Prefixed("TE")
	}

	e.mu.Lock()
	e.totalOrders++
	e.mu.Unlock()

	log.Info().
		Str("client_id", order.ClientID).
		Str("session", order.SessionID).
		Str("instrument", order.Instrument).
		Str("action", string(order.Action)).
		Str("purpose", string(order.Purpose)).
		Int64("qty", order.Quantity).
		Str("strategy", order.Strategy).
		Msg("📤 Order submitted")

	orderID, err := e.place(ctx, order)
	if err != nil {
		e.recordReject()
		return Fill{}, &types.ExecutionFailure{Reason: "submission failed", Err: err}
	}

	fill, err := e.awaitFill(ctx, order, orderID)
	if err != nil {
		e.recordReject()
		log.Error().
			Err(err).
			Str("order_id", orderID).
			Str("session", order.SessionID).
			Msg("❌ Order not confirmed")
		return Fill{}, err
	}

	e.mu.Lock()
	e.filledOrders++
	e.mu.Unlock()

	log.Info().
		Str("order_id", orderID).
		Str("session", order.SessionID).
		Str("fill_price", fill.Price.StringFixed(2)).
		Int64("qty", fill.Quantity).
		Msg("✅ Order filled (LIVE)")

	return fill, nil
}

// place submits with bounded retries on transport errors
func (e *LiveExecutor) place(ctx context.Context, order Order) (string, error) {
	req := OrderRequest{
		ClientID:   order.ClientID,
		Instrument: order.Instrument,
		Action:     order.Action,
		Quantity:   order.Quantity,
		Type:       "MARKET",
		Price:      order.Price,
	}

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		orderID, err := e.broker.PlaceOrder(ctx, req)
		if err == nil {
			return orderID, nil
		}
		lastErr = err

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("client_id", order.ClientID).
			Msg("⚠️ Order submission failed, retrying...")

		if attempt < e.config.MaxRetries {
			select {
			case <-ctx.Done():
				return "", errors.Join(lastErr, ctx.Err())
			case <-time.After(time.Duration(100*(attempt+1)) * time.Millisecond):
			}
		}
	}
	return "", lastErr
}

// awaitFill polls order status until a decision can be made
func (e *LiveExecutor) awaitFill(ctx context.Context, order Order, orderID string) (Fill, error) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	var last OrderStatus
	for {
		st, err := e.broker.OrderStatus(ctx, orderID)
		if err == nil {
			last = st
			switch st.State {
			case OrderStateFilled:
				if st.FilledQty > 0 && st.AvgPrice.IsPositive() {
					return e.toFill(orderID, st), nil
				}
				// Not confirmed until the broker reports what actually filled
				log.Debug().
					Str("order_id", orderID).
					Int64("filled", st.FilledQty).
					Str("avg_price", st.AvgPrice.String()).
					Msg("Order FILLED without fill details, polling again")
			case OrderStateRejected, OrderStateCancelled, OrderStateExpired, OrderStateFailed:
				return Fill{}, &types.ExecutionFailure{OrderID: orderID, Reason: "order " + string(st.State) + " " + st.Reason}
			}
		} else if ctx.Err() == nil {
			log.Debug().Err(err).Str("order_id", orderID).Msg("Order status poll failed")
		}

		select {
		case <-ctx.Done():
			return e.onTimeout(order, orderID, last)
		case <-ticker.C:
		}
	}
}

// onTimeout cancels the remainder. Entries keep a partial fill; exits need all of it.
func (e *LiveExecutor) onTimeout(order Order, orderID string, last OrderStatus) (Fill, error) {
	cctx, cancel := context.WithTimeout(context.Background(), e.config.CancelTimeout)
	defer cancel()
	if err := e.broker.CancelOrder(cctx, orderID); err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Msg("Cancel after timeout failed")
	}

	if order.Purpose == PurposeEntry && last.FilledQty > 0 && last.AvgPrice.IsPositive() {
		log.Warn().
			Str("order_id", orderID).
			Int64("filled", last.FilledQty).
			Int64("requested", order.Quantity).
			Msg("⚠️ Partial fill adopted after timeout")
		return e.toFill(orderID, last), nil
	}

	return Fill{}, &types.ExecutionFailure{
		OrderID: orderID,
		Reason:  "fill not confirmed within " + e.config.FillTimeout.String(),
		Err:     context.DeadlineExceeded,
	}
}

// toFill builds the fill from broker-reported values only
func (e *LiveExecutor) toFill(orderID string, st OrderStatus) Fill {
	return Fill{
		OrderID:   orderID,
		Price:     st.AvgPrice,
		Quantity:  st.FilledQty,
		Timestamp: time.Now(),
	}
}

func (e *LiveExecutor) recordReject() {
	e.mu.Lock()
	e.rejectedOrders++
	e.mu.Unlock()
}

// GetMetrics returns execution metrics
func (e *LiveExecutor) GetMetrics() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	fillRate := float64(0)
	if e.totalOrders > 0 {
		fillRate = float64(e.filledOrders) / float64(e.totalOrders) * 100
	}

	return map[string]interface{}{
		"mode":            "LIVE",
		"total_orders":    e.totalOrders,
		"filled_orders":   e.filledOrders,
		"rejected_orders": e.rejectedOrders,
		"fill_rate":       fillRate,
	}
}
