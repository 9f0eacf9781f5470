package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// REST QUOTE FEED - polled last traded price
// ═══════════════════════════════════════════════════════════════════════════════
//
// Fallback when no streaming gateway is available. Polls
//   GET {base}/quote?instrument=X  →  {"price": "...", "ts": <unix ms>}
// and feeds the prints into the same bar builder as the websocket feed.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PollConfig configures the REST feed
type PollConfig struct {
	BaseURL      string
	Interval     time.Duration
	BarInterval  time.Duration
	Window       int
	MaxStaleness time.Duration
}

// PollFeed provides polled prices
type PollFeed struct {
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}

	cfg         PollConfig
	client      *http.Client
	instruments map[string]bool
	bars        *BarBuilder
}

// NewPollFeed creates a new polling feed
func NewPollFeed(cfg PollConfig) *PollFeed {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &PollFeed{
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		client:      &http.Client{Timeout: 5 * time.Second},
		instruments: make(map[string]bool),
		bars:        NewBarBuilder(cfg.BarInterval, cfg.Window),
	}
}

// Start begins polling
func (f *PollFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.pollLoop()
	log.Info().Dur("interval", f.cfg.Interval).Msg("📈 Quote feed started")
}

// Stop stops the feed
func (f *PollFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}

	f.running = false
	close(f.stopCh)
	log.Info().Msg("Quote feed stopped")
}

// Watch adds an instrument to the poll set
func (f *PollFeed) Watch(instrument string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instruments[instrument] = true
	return nil
}

// Snapshot returns the current snapshot for an instrument
func (f *PollFeed) Snapshot(_ context.Context, instrument string) (types.Snapshot, error) {
	return f.bars.Snapshot(instrument, time.Now(), f.cfg.MaxStaleness)
}

// pollLoop continuously fetches prices
func (f *PollFeed) pollLoop() {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	f.fetchAll()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.fetchAll()
		}
	}
}

// fetchAll gets current prices for every watched instrument
func (f *PollFeed) fetchAll() {
	f.mu.RLock()
	instruments := make([]string, 0, len(f.instruments))
	for inst := range f.instruments {
		instruments = append(instruments, inst)
	}
	f.mu.RUnlock()

	for _, inst := range instruments {
		price, at, err := f.fetchQuote(inst)
		if err != nil {
			log.Debug().Err(err).Str("instrument", inst).Msg("Quote fetch failed")
			continue
		}
		f.bars.Add(inst, price, at)
	}
}

// fetchQuote gets a single quote
func (f *PollFeed) fetchQuote(instrument string) (decimal.Decimal, time.Time, error) {
	u := fmt.Sprintf("%s/quote?instrument=%s", f.cfg.BaseURL, url.QueryEscape(instrument))

	resp, err := f.client.Get(u)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, time.Time{}, fmt.Errorf("quote status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}

	var result struct {
		Price decimal.Decimal `json:"price"`
		Ts    int64           `json:"ts"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, time.Time{}, err
	}

	at := time.Now()
	if result.Ts > 0 {
		at = time.UnixMilli(result.Ts)
	}
	return result.Price, at, nil
}
