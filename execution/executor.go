package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION LAYER - Order State Machine
// ═══════════════════════════════════════════════════════════════════════════════
//
// Responsibilities:
// 1. Order lifecycle management (submit → ack → fill/cancel)
// 2. Fill confirmation within a bounded wait
// 3. One interface for PAPER, LIVE and BACKTEST
//
// Order Flow:
//   Decision step → Router → Executor → Broker
//                              ↓
//                        State Machine
//                         ↓    ↓    ↓
//                    FILLED  PARTIAL  REJECTED
//
// Executors only return fills; the decision step applies them to the
// session identically for every mode.
//
// ═══════════════════════════════════════════════════════════════════════════════

// OrderState represents the lifecycle state of an order
type OrderState string

const (
	OrderStatePending   OrderState = "PENDING"   // Submitted, awaiting ack
	OrderStateOpen      OrderState = "OPEN"      // Acknowledged, in book
	OrderStateFilled    OrderState = "FILLED"    // Fully filled
	OrderStatePartial   OrderState = "PARTIAL"   // Partially filled
	OrderStateCancelled OrderState = "CANCELLED" // Cancelled by user or system
	OrderStateRejected  OrderState = "REJECTED"  // Rejected by exchange
	OrderStateExpired   OrderState = "EXPIRED"   // Timed out
	OrderStateFailed    OrderState = "FAILED"    // Internal failure
)

// Terminal reports whether the broker will not change the order further
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected, OrderStateExpired, OrderStateFailed:
		return true
	}
	return false
}

// Action is the order direction
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// EntryAction returns the order action that opens side
func EntryAction(side types.Side) Action {
	if side == types.Short {
		return Sell
	}
	return Buy
}

// ExitAction returns the order action that closes side
func ExitAction(side types.Side) Action {
	if side == types.Short {
		return Buy
	}
	return Sell
}

// Purpose distinguishes opening from closing orders
type Purpose string

const (
	PurposeEntry Purpose = "ENTRY"
	PurposeExit  Purpose = "EXIT"
)

// Order represents an order in the execution system
type Order struct {
	ID         string          `json:"id"`
	ClientID   string          `json:"client_id"`
	SessionID  string          `json:"session_id"`
	Instrument string          `json:"instrument"`
	Action     Action          `json:"action"`
	Purpose    Purpose         `json:"purpose"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"` // snapshot price at decision time
	Strategy   string          `json:"strategy"`
	Reason     string          `json:"reason,omitempty"`
}

// Fill is the confirmed execution of an order
type Fill struct {
	OrderID   string          `json:"order_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
}

// Executor submits an order and returns its confirmed fill
type Executor interface {
	Mode() types.ExecutionMode
	Submit(ctx context.Context, order Order) (Fill, error)
}

// ExecutorConfig holds executor settings
type ExecutorConfig struct {
	MaxRetries    int           // Max submission retries (default: 2)
	FillTimeout   time.Duration // Wait for fill (default: 5s)
	PollInterval  time.Duration // Status poll cadence (default: 250ms)
	CancelTimeout time.Duration // Wait for cancel ack (default: 2s)
}

// DefaultExecutorConfig returns sensible defaults
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRetries:    2,
		FillTimeout:   5 * time.Second,
		PollInterval:  250 * time.Millisecond,
		CancelTimeout: 2 * time.Second,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTER - mode → executor
// ═══════════════════════════════════════════════════════════════════════════════

// Router selects the executor for a session's mode. BACKTEST never routes here;
// replay drives its own simulator.
type Router struct {
	executors map[types.ExecutionMode]Executor
}

// NewRouter creates a router over the given executors
func NewRouter(executors ...Executor) *Router {
	r := &Router{executors: make(map[types.ExecutionMode]Executor)}
	for _, ex := range executors {
		r.executors[ex.Mode()] = ex
	}
	return r
}

// Route returns the executor for mode
func (r *Router) Route(mode types.ExecutionMode) (Executor, error) {
	if mode == types.ModeBacktest {
		return nil, fmt.Errorf("backtest sessions run through replay, not the live router")
	}
	ex, ok := r.executors[mode]
	if !ok {
		return nil, fmt.Errorf("no executor configured for %s", mode)
	}
	return ex, nil
}

// Supports reports whether mode can be routed
func (r *Router) Supports(mode types.ExecutionMode) bool {
	_, err := r.Route(mode)
	return err == nil
}

// Metrics returns per-mode counters from executors that keep them
func (r *Router) Metrics() map[types.ExecutionMode]map[string]interface{} {
	out := make(map[types.ExecutionMode]map[string]interface{}, len(r.executors))
	for mode, ex := range r.executors {
		if m, ok := ex.(interface{ GetMetrics() map[string]interface{} }); ok {
			out[mode] = m.GetMetrics()
		}
	}
	return out
}
