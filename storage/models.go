package storage

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/web3guy0/tradeengine/types"
)

// Trade row states
const (
	TradeOpen   = "OPEN"
	TradeClosed = "CLOSED"
)

// SessionRecord is the persisted session. Soft delete is archival.
type SessionRecord struct {
	ID                  string          `gorm:"primaryKey"`
	Instrument          string          `gorm:"index"`
	Capital             decimal.Decimal `gorm:"type:decimal(20,4)"`
	RiskPerTradePct     decimal.Decimal `gorm:"type:decimal(10,6)"`
	Mode                string
	StrategySelector    string
	ExternalValidation  bool
	Status              string `gorm:"index"`
	StopReason          string
	TradesTakenToday    int
	DailyPnL            decimal.Decimal `gorm:"column:daily_pnl;type:decimal(20,4)"`
	Balance             decimal.Decimal `gorm:"type:decimal(20,4)"`
	HourBlock           time.Time
	HourlyTradeCount    int
	FrequencyMode       string
	CutoffAt            time.Time
	LastPrice           decimal.Decimal `gorm:"type:decimal(20,6)"`
	ConsecutiveFailures int
	LastError           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           gorm.DeletedAt `gorm:"index"`
}

func (SessionRecord) TableName() string { return "sessions" }

// TradeRecord is one row of append-only trade history
type TradeRecord struct {
	ID            string `gorm:"primaryKey"`
	SessionID     string `gorm:"index"`
	Instrument    string
	Side          string
	Mode          string `gorm:"index"`
	Quantity      int64
	EntryPrice    decimal.Decimal `gorm:"type:decimal(20,6)"`
	EntryTime     time.Time
	StopLoss      decimal.Decimal `gorm:"type:decimal(20,6)"`
	Target        decimal.Decimal `gorm:"type:decimal(20,6)"`
	StrategyName  string
	EntryOrderID  string
	Status        string              `gorm:"index"`
	ExitPrice     decimal.NullDecimal `gorm:"type:decimal(20,6)"`
	ExitTime      *time.Time
	ExitReason    string
	RealizedPnL   decimal.NullDecimal `gorm:"column:realized_pnl;type:decimal(20,4)"`
	ExitOrderID   string
	ExitConfirmed bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (TradeRecord) TableName() string { return "trades" }

func sessionToRecord(s *types.Session) *SessionRecord {
	return &SessionRecord{
		ID:                  s.ID,
		Instrument:          s.Instrument,
		Capital:             s.Capital,
		RiskPerTradePct:     s.RiskPerTradePct,
		Mode:                string(s.Mode),
		StrategySelector:    s.StrategySelector,
		ExternalValidation:  s.ExternalValidation,
		Status:              string(s.Status),
		StopReason:          s.StopReason,
		TradesTakenToday:    s.TradesTakenToday,
		DailyPnL:            s.DailyPnL,
		Balance:             s.Balance,
		HourBlock:           s.HourBlock,
		HourlyTradeCount:    s.HourlyTradeCount,
		FrequencyMode:       string(s.FrequencyMode),
		CutoffAt:            s.CutoffAt,
		LastPrice:           s.LastPrice,
		ConsecutiveFailures: s.ConsecutiveFailures,
		LastError:           s.LastError,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func (r *SessionRecord) toSession() *types.Session {
	return &types.Session{
		ID:                  r.ID,
		Instrument:          r.Instrument,
		Capital:             r.Capital,
		RiskPerTradePct:     r.RiskPerTradePct,
		Mode:                types.ExecutionMode(r.Mode),
		StrategySelector:    r.StrategySelector,
		ExternalValidation:  r.ExternalValidation,
		Status:              types.SessionStatus(r.Status),
		StopReason:          r.StopReason,
		TradesTakenToday:    r.TradesTakenToday,
		DailyPnL:            r.DailyPnL,
		Balance:             r.Balance,
		HourBlock:           r.HourBlock,
		HourlyTradeCount:    r.HourlyTradeCount,
		FrequencyMode:       types.FrequencyMode(r.FrequencyMode),
		CutoffAt:            r.CutoffAt,
		LastPrice:           r.LastPrice,
		ConsecutiveFailures: r.ConsecutiveFailures,
		LastError:           r.LastError,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

func tradeToRecord(t *types.Trade) *TradeRecord {
	r := &TradeRecord{
		ID:            t.ID,
		SessionID:     t.SessionID,
		Instrument:    t.Instrument,
		Side:          string(t.Side),
		Mode:          string(t.Mode),
		Quantity:      t.Quantity,
		EntryPrice:    t.EntryPrice,
		EntryTime:     t.EntryTime,
		StopLoss:      t.StopLoss,
		Target:        t.Target,
		StrategyName:  t.StrategyName,
		EntryOrderID:  t.EntryOrderID,
		Status:        TradeOpen,
		ExitReason:    t.ExitReason,
		ExitOrderID:   t.ExitOrderID,
		ExitConfirmed: t.ExitConfirmed,
	}
	if t.Closed() {
		exitTime := t.ExitTime
		r.Status = TradeClosed
		r.ExitPrice = decimal.NewNullDecimal(t.ExitPrice)
		r.ExitTime = &exitTime
		r.RealizedPnL = decimal.NewNullDecimal(t.RealizedPnL)
	}
	return r
}

func (r *TradeRecord) toTrade() *types.Trade {
	t := &types.Trade{
		ID:            r.ID,
		SessionID:     r.SessionID,
		Instrument:    r.Instrument,
		Side:          types.Side(r.Side),
		Mode:          types.ExecutionMode(r.Mode),
		Quantity:      r.Quantity,
		EntryPrice:    r.EntryPrice,
		EntryTime:     r.EntryTime,
		StopLoss:      r.StopLoss,
		Target:        r.Target,
		StrategyName:  r.StrategyName,
		EntryOrderID:  r.EntryOrderID,
		ExitReason:    r.ExitReason,
		ExitOrderID:   r.ExitOrderID,
		ExitConfirmed: r.ExitConfirmed,
	}
	if r.ExitPrice.Valid {
		t.ExitPrice = r.ExitPrice.Decimal
	}
	if r.RealizedPnL.Valid {
		t.RealizedPnL = r.RealizedPnL.Decimal
	}
	if r.ExitTime != nil {
		t.ExitTime = *r.ExitTime
	}
	return t
}
