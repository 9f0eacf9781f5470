package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SESSION STORE - sessions + append-only trade history
// ═══════════════════════════════════════════════════════════════════════════════
//
// PostgreSQL when the DSN starts with postgres://, SQLite file otherwise.
// A step's session update and its trade rows commit in one transaction.
// Closed trade rows are never updated again.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrTradeClosed is returned when a write would modify a closed trade
var ErrTradeClosed = errors.New("trade already closed")

// ErrNotTerminal is returned when archiving a session that is still ACTIVE
var ErrNotTerminal = errors.New("session is not terminal")

type Store struct {
	db *gorm.DB
}

// New opens the store and migrates the schema
func New(dsn string) (*Store, error) {
	var db *gorm.DB
	var err error

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		// Single writer avoids "database is locked" under parallel ticks
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
		log.Info().Str("path", dsn).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&SessionRecord{}, &TradeRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSession inserts a new session
func (s *Store) CreateSession(ctx context.Context, sess *types.Session) error {
	return s.db.WithContext(ctx).Create(sessionToRecord(sess)).Error
}

// SaveSession writes the session row only
func (s *Store) SaveSession(ctx context.Context, sess *types.Session) error {
	return s.db.WithContext(ctx).Save(sessionToRecord(sess)).Error
}

// CommitStep persists a session together with the trade it opened or closed
func (s *Store) CommitStep(ctx context.Context, sess *types.Session, opened, closed *types.Trade) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(sessionToRecord(sess)).Error; err != nil {
			return err
		}
		if closed != nil {
			if err := closeTrade(tx, closed); err != nil {
				return err
			}
		}
		if opened != nil {
			if err := tx.Create(tradeToRecord(opened)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func closeTrade(tx *gorm.DB, t *types.Trade) error {
	rec := tradeToRecord(t)
	res := tx.Model(&TradeRecord{}).
		Where("id = ? AND status = ?", t.ID, TradeOpen).
		Updates(map[string]interface{}{
			"status":         TradeClosed,
			"quantity":       rec.Quantity,
			"exit_price":     rec.ExitPrice,
			"exit_time":      rec.ExitTime,
			"exit_reason":    rec.ExitReason,
			"realized_pnl":   rec.RealizedPnL,
			"exit_order_id":  rec.ExitOrderID,
			"exit_confirmed": rec.ExitConfirmed,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := tx.Model(&TradeRecord{}).Where("id = ?", t.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrTradeClosed, t.ID)
	}
	// Never persisted as open (opened and closed inside one step)
	return tx.Create(rec).Error
}

// GetSession loads a session with its open trade
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	sess := rec.toSession()
	if err := s.attachOpenTrade(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns sessions, optionally filtered by status, oldest first
func (s *Store) ListSessions(ctx context.Context, statuses ...types.SessionStatus) ([]*types.Session, error) {
	q := s.db.WithContext(ctx).Order("created_at, id")
	if len(statuses) > 0 {
		vals := make([]string, len(statuses))
		for i, st := range statuses {
			vals[i] = string(st)
		}
		q = q.Where("status IN ?", vals)
	}

	var recs []SessionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}

	out := make([]*types.Session, 0, len(recs))
	for i := range recs {
		sess := recs[i].toSession()
		if err := s.attachOpenTrade(ctx, sess); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) attachOpenTrade(ctx context.Context, sess *types.Session) error {
	var rec TradeRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sess.ID, TradeOpen).
		Order("entry_time DESC").
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return err
	}
	if rec.ID != "" {
		sess.CurrentTrade = rec.toTrade()
	}
	return nil
}

// TradeHistory returns the closed trades of a session in exit order
func (s *Store) TradeHistory(ctx context.Context, sessionID string) ([]types.Trade, error) {
	var recs []TradeRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, TradeClosed).
		Order("exit_time, id").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]types.Trade, len(recs))
	for i := range recs {
		out[i] = *recs[i].toTrade()
	}
	return out, nil
}

// OpenTrades returns every open trade across sessions
func (s *Store) OpenTrades(ctx context.Context) ([]*types.Trade, error) {
	var recs []TradeRecord
	if err := s.db.WithContext(ctx).Where("status = ?", TradeOpen).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Trade, len(recs))
	for i := range recs {
		out[i] = recs[i].toTrade()
	}
	return out, nil
}

// UnconfirmedExits lists instruments whose LIVE exit was closed locally without broker confirmation
func (s *Store) UnconfirmedExits(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).
		Model(&TradeRecord{}).
		Where("status = ? AND mode = ? AND exit_confirmed = ?", TradeClosed, string(types.ModeLive), false).
		Distinct().
		Pluck("instrument", &out).Error
	return out, err
}

// ArchiveSession soft-deletes a terminal session
func (s *Store) ArchiveSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !sess.Status.Terminal() {
		return ErrNotTerminal
	}
	return s.db.WithContext(ctx).Delete(&SessionRecord{}, "id = ?", id).Error
}
