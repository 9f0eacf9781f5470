package feeds

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LAST-TRADE WEBSOCKET FEED
// ═══════════════════════════════════════════════════════════════════════════════
//
// Connects to a market data gateway streaming trade prints and builds bars
// in memory for fast snapshot lookups. Reconnects forever until stopped.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
)

// WSConfig configures the websocket feed
type WSConfig struct {
	URL          string
	BarInterval  time.Duration
	Window       int
	MaxStaleness time.Duration
}

// WSFeed manages the WebSocket connection and bar state
type WSFeed struct {
	mu sync.RWMutex

	cfg       WSConfig
	conn      *websocket.Conn
	connected bool
	running   bool
	stopCh    chan struct{}

	instruments map[string]bool
	bars        *BarBuilder
	now         func() time.Time
}

// NewWSFeed creates a new feed instance
func NewWSFeed(cfg WSConfig) *WSFeed {
	return &WSFeed{
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		instruments: make(map[string]bool),
		bars:        NewBarBuilder(cfg.BarInterval, cfg.Window),
		now:         time.Now,
	}
}

// Start connects and begins processing
func (f *WSFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop()
	log.Info().Str("url", f.cfg.URL).Msg("📡 Feed started")
}

// Stop closes the connection
func (f *WSFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}

	f.running = false
	close(f.stopCh)

	if f.conn != nil {
		f.conn.Close()
	}

	log.Info().Msg("Feed stopped")
}

// Connected reports whether the socket is up
func (f *WSFeed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Watch adds an instrument to the subscription set
func (f *WSFeed) Watch(instrument string) error {
	f.mu.Lock()
	if f.instruments[instrument] {
		f.mu.Unlock()
		return nil
	}
	f.instruments[instrument] = true
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		// Sent on connect
		return nil
	}
	return f.writeJSON(conn, subscribeMsg{Action: "subscribe", Instruments: []string{instrument}})
}

// Snapshot returns the current snapshot for an instrument
func (f *WSFeed) Snapshot(_ context.Context, instrument string) (types.Snapshot, error) {
	return f.bars.Snapshot(instrument, f.now(), f.cfg.MaxStaleness)
}

// connectionLoop maintains the WebSocket connection
func (f *WSFeed) connectionLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.connect(); err != nil {
			log.Error().Err(err).Msg("Connection failed, retrying...")
			if !f.sleep(reconnectDelay) {
				return
			}
			continue
		}

		f.readLoop()
		if !f.sleep(reconnectDelay) {
			return
		}
	}
}

func (f *WSFeed) sleep(d time.Duration) bool {
	select {
	case <-f.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// connect establishes WebSocket connection and replays subscriptions
func (f *WSFeed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.cfg.URL, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	instruments := make([]string, 0, len(f.instruments))
	for inst := range f.instruments {
		instruments = append(instruments, inst)
	}
	f.mu.Unlock()

	log.Info().Int("instruments", len(instruments)).Msg("🔌 WebSocket connected")

	if len(instruments) > 0 {
		if err := f.writeJSON(conn, subscribeMsg{Action: "subscribe", Instruments: instruments}); err != nil {
			return err
		}
	}

	go f.pingLoop(conn)
	return nil
}

// writeJSON serialises writes; gorilla allows one concurrent writer
func (f *WSFeed) writeJSON(conn *websocket.Conn, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return conn.WriteJSON(v)
}

// pingLoop sends periodic pings to keep connection alive
func (f *WSFeed) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.conn != conn || !f.connected {
				f.mu.Unlock()
				return
			}
			err := conn.WriteMessage(websocket.PingMessage, nil)
			f.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readLoop reads messages from WebSocket
func (f *WSFeed) readLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Read error")
			f.mu.Lock()
			f.connected = false
			f.mu.Unlock()
			return
		}

		f.processMessage(message)
	}
}

type subscribeMsg struct {
	Action      string   `json:"action"`
	Instruments []string `json:"instruments"`
}

// TradeMessage is one print from the gateway. Ts is unix milliseconds.
type TradeMessage struct {
	Type       string          `json:"type"`
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Ts         int64           `json:"ts"`
}

// processMessage accepts a single message or a batch
func (f *WSFeed) processMessage(data []byte) {
	var msgs []TradeMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		var msg TradeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("Unparseable feed message")
			return
		}
		msgs = []TradeMessage{msg}
	}

	for _, msg := range msgs {
		if msg.Type != "trade" || msg.Instrument == "" {
			continue
		}
		at := f.now()
		if msg.Ts > 0 {
			at = time.UnixMilli(msg.Ts)
		}
		f.bars.Add(msg.Instrument, msg.Price, at)
	}
}
