package feeds

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// StaticFeed serves snapshots set by hand. Used for demos and tests.
type StaticFeed struct {
	mu    sync.RWMutex
	snaps map[string]types.Snapshot
	errs  map[string]error
	delay time.Duration
}

// NewStaticFeed creates an empty static feed
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{
		snaps: make(map[string]types.Snapshot),
		errs:  make(map[string]error),
	}
}

// SetPrice sets the last price, keeping the existing window
func (f *StaticFeed) SetPrice(instrument string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snaps[instrument]
	s.Instrument = instrument
	s.LastPrice = price
	s.Time = time.Now()
	f.snaps[instrument] = s
	delete(f.errs, instrument)
}

// Set replaces the whole snapshot
func (f *StaticFeed) Set(s types.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[s.Instrument] = s
	delete(f.errs, s.Instrument)
}

// Fail makes Snapshot return err for instrument until the next Set
func (f *StaticFeed) Fail(instrument string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[instrument] = err
}

// SetDelay makes every Snapshot call block for d or until ctx is done
func (f *StaticFeed) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Snapshot implements Provider
func (f *StaticFeed) Snapshot(ctx context.Context, instrument string) (types.Snapshot, error) {
	f.mu.RLock()
	delay := f.delay
	s, ok := f.snaps[instrument]
	err := f.errs[instrument]
	f.mu.RUnlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return types.Snapshot{}, &types.TransientDataError{Instrument: instrument, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	if err != nil {
		return types.Snapshot{}, err
	}
	if !ok || s.LastPrice.IsZero() {
		return types.Snapshot{}, &types.TransientDataError{Instrument: instrument, Err: ErrNoData}
	}
	s.Window = append([]decimal.Decimal(nil), s.Window...)
	return s, nil
}
