package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// ExecutionMode selects where order intent is routed
type ExecutionMode string

const (
	ModePaper    ExecutionMode = "PAPER"
	ModeLive     ExecutionMode = "LIVE"
	ModeBacktest ExecutionMode = "BACKTEST"
)

// Valid reports whether m is a known mode
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModePaper, ModeLive, ModeBacktest:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session. STOPPED and AUTO_CLOSED are terminal.
type SessionStatus string

const (
	StatusActive     SessionStatus = "ACTIVE"
	StatusStopped    SessionStatus = "STOPPED"
	StatusAutoClosed SessionStatus = "AUTO_CLOSED"
)

// Terminal reports whether no further transition is allowed
func (s SessionStatus) Terminal() bool {
	return s == StatusStopped || s == StatusAutoClosed
}

// FrequencyMode reflects the drawdown regime of the current hour
type FrequencyMode string

const (
	FrequencyNormal    FrequencyMode = "NORMAL"
	FrequencyReduced   FrequencyMode = "REDUCED"
	FrequencyHardLimit FrequencyMode = "HARD_LIMIT"
)

// Side of a position
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Sign returns +1 for LONG and -1 for SHORT
func (s Side) Sign() decimal.Decimal {
	if s == Short {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Exit reasons set by the engine itself. Strategies supply their own.
const (
	ExitCutoff     = "CUTOFF"
	ExitKillSwitch = "KILL_SWITCH"
	ExitUserStop   = "USER_STOP"
	ExitStopLoss   = "STOP_LOSS"
	ExitTarget     = "TARGET"
)

// Stop reasons recorded on the session
const (
	StopReasonUser             = "USER_STOP"
	StopReasonKill             = "KILL_SWITCH"
	StopReasonCutoff           = "CUTOFF"
	StopReasonFailureThreshold = "FAILURE_THRESHOLD"
)

// Session is one user-started trading session on a single instrument
type Session struct {
	ID                 string
	Instrument         string
	Capital            decimal.Decimal
	RiskPerTradePct    decimal.Decimal // fraction, 0.01 = 1%
	Mode               ExecutionMode
	StrategySelector   string // strategy name or "auto"
	ExternalValidation bool

	Status     SessionStatus
	StopReason string

	TradesTakenToday int
	DailyPnL         decimal.Decimal
	Balance          decimal.Decimal // virtual for PAPER, reference for LIVE
	CurrentTrade     *Trade

	HourBlock        time.Time
	HourlyTradeCount int
	FrequencyMode    FrequencyMode

	CutoffAt  time.Time
	LastPrice decimal.Decimal

	ConsecutiveFailures int
	LastError           string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InTrade reports whether a position is open
func (s *Session) InTrade() bool {
	return s.CurrentTrade != nil
}

// Clone returns a deep copy safe to hand out of the session lock
func (s *Session) Clone() *Session {
	c := *s
	if s.CurrentTrade != nil {
		t := *s.CurrentTrade
		c.CurrentTrade = &t
	}
	return &c
}

// Trade is a single position from entry to exit
type Trade struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	Instrument   string          `json:"instrument"`
	Side         Side            `json:"side"`
	Mode         ExecutionMode   `json:"mode"`
	Quantity     int64           `json:"quantity"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	EntryTime    time.Time       `json:"entry_time"`
	StopLoss     decimal.Decimal `json:"stop_loss"`
	Target       decimal.Decimal `json:"target"`
	StrategyName string          `json:"strategy"`
	EntryOrderID string          `json:"entry_order_id"`

	ExitPrice     decimal.Decimal `json:"exit_price"`
	ExitTime      time.Time       `json:"exit_time"`
	ExitReason    string          `json:"exit_reason,omitempty"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	ExitOrderID   string          `json:"exit_order_id,omitempty"`
	ExitConfirmed bool            `json:"exit_confirmed"`
}

// Closed reports whether the trade has an exit recorded
func (t *Trade) Closed() bool {
	return t.ExitReason != ""
}

// MarshalJSON reports exit fields as null until the trade is closed
func (t Trade) MarshalJSON() ([]byte, error) {
	type plain Trade
	out := struct {
		plain
		ExitPrice   decimal.NullDecimal `json:"exit_price"`
		ExitTime    *time.Time          `json:"exit_time"`
		RealizedPnL decimal.NullDecimal `json:"realized_pnl"`
	}{plain: plain(t)}
	if t.Closed() {
		exitTime := t.ExitTime
		out.ExitPrice = decimal.NewNullDecimal(t.ExitPrice)
		out.ExitTime = &exitTime
		out.RealizedPnL = decimal.NewNullDecimal(t.RealizedPnL)
	}
	return json.Marshal(out)
}

// PnLAt computes sign-adjusted P&L if the trade were closed at price
func (t *Trade) PnLAt(price decimal.Decimal) decimal.Decimal {
	return price.Sub(t.EntryPrice).Mul(decimal.NewFromInt(t.Quantity)).Mul(t.Side.Sign())
}

// Candle is one OHLCV bar starting at Time
type Candle struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// Snapshot is the market view handed to strategies on each tick
type Snapshot struct {
	Instrument string
	LastPrice  decimal.Decimal
	Time       time.Time
	Window     []decimal.Decimal // recent closes, oldest first
}
