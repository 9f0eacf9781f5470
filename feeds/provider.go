package feeds

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET SNAPSHOT PROVIDER
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every feed reduces to the same thing the engine sees on a tick:
//   last traded price + closes of the most recent completed bars
//
// Missing or stale data is a TransientDataError; the tick is skipped.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	ErrNoData    = errors.New("no price yet")
	ErrStaleData = errors.New("price is stale")
)

// Provider returns the current market snapshot for an instrument
type Provider interface {
	Snapshot(ctx context.Context, instrument string) (types.Snapshot, error)
}

// Watcher is implemented by feeds that must be told which instruments to stream
type Watcher interface {
	Watch(instrument string) error
}

// ═══════════════════════════════════════════════════════════════════════════════
// BAR BUILDER - trades → fixed-interval bars
// ═══════════════════════════════════════════════════════════════════════════════

type series struct {
	current *types.Candle
	closed  []types.Candle
	last    decimal.Decimal
	lastAt  time.Time
}

// BarBuilder aggregates last-trade prints into bars and keeps a rolling window
type BarBuilder struct {
	mu       sync.RWMutex
	interval time.Duration
	window   int
	series   map[string]*series
}

// NewBarBuilder creates a builder keeping window completed bars per instrument
func NewBarBuilder(interval time.Duration, window int) *BarBuilder {
	if interval <= 0 {
		interval = time.Minute
	}
	if window <= 0 {
		window = 20
	}
	return &BarBuilder{
		interval: interval,
		window:   window,
		series:   make(map[string]*series),
	}
}

// Add records a trade print. Prints older than the bar in progress are dropped.
func (b *BarBuilder) Add(instrument string, price decimal.Decimal, at time.Time) {
	if !price.IsPositive() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.series[instrument]
	if !ok {
		s = &series{}
		b.series[instrument] = s
	}

	start := at.Truncate(b.interval)
	switch {
	case s.current == nil:
		s.current = newCandle(start, price)
	case start.Before(s.current.Time):
		return
	case start.After(s.current.Time):
		b.push(s, *s.current)
		s.current = newCandle(start, price)
	default:
		c := s.current
		c.High = decimal.Max(c.High, price)
		c.Low = decimal.Min(c.Low, price)
		c.Close = price
	}
	s.current.Volume = s.current.Volume.Add(decimal.NewFromInt(1))

	if at.After(s.lastAt) || s.lastAt.IsZero() {
		s.last = price
		s.lastAt = at
	}
}

func (b *BarBuilder) push(s *series, c types.Candle) {
	s.closed = append(s.closed, c)
	if len(s.closed) > b.window {
		s.closed = s.closed[len(s.closed)-b.window:]
	}
}

// Snapshot returns last price and the closes of bars completed by now.
// maxStale of zero disables the staleness check.
func (b *BarBuilder) Snapshot(instrument string, now time.Time, maxStale time.Duration) (types.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.series[instrument]
	if !ok || s.last.IsZero() {
		return types.Snapshot{}, &types.TransientDataError{Instrument: instrument, Err: ErrNoData}
	}
	if maxStale > 0 && now.Sub(s.lastAt) > maxStale {
		return types.Snapshot{}, &types.TransientDataError{Instrument: instrument, Err: ErrStaleData}
	}

	bars := s.closed
	if s.current != nil && !now.Before(s.current.Time.Add(b.interval)) {
		bars = append(append([]types.Candle(nil), s.closed...), *s.current)
	}
	if len(bars) > b.window {
		bars = bars[len(bars)-b.window:]
	}

	window := make([]decimal.Decimal, len(bars))
	for i, c := range bars {
		window[i] = c.Close
	}
	return types.Snapshot{
		Instrument: instrument,
		LastPrice:  s.last,
		Time:       s.lastAt,
		Window:     window,
	}, nil
}

func newCandle(start time.Time, price decimal.Decimal) *types.Candle {
	return &types.Candle{Time: start, Open: price, High: price, Low: price, Close: price}
}
