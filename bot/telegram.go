package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/core"
	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Session notifications & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   💰 Trade notifications (open/close with reason and P&L)
//   ⚠️ Warnings (execution failures, reconciliation mismatches)
//   🎛️ Session control (/sessions, /status, /stop, /kill, /trades)
//
// Only the configured chat is answered.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Controller is the session surface the bot drives
type Controller interface {
	List(ctx context.Context) ([]core.StatusView, error)
	Status(ctx context.Context, id string) (core.StatusView, error)
	Stop(ctx context.Context, id string) (*types.Session, error)
	Kill(ctx context.Context, id string) (*types.Session, error)
	Trades(ctx context.Context, id string) ([]types.Trade, error)
}

// Sender delivers outgoing messages; *tgbotapi.BotAPI satisfies it
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	sender  Sender
	chatID  int64
	running bool
	stopCh  chan struct{}

	ctl            Controller
	commandTimeout time.Duration
}

var _ core.Notifier = (*TelegramBot)(nil)

// NewTelegramBot creates a new Telegram bot
func NewTelegramBot(token string, chatID int64, ctl Controller) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := newBot(api, chatID, ctl)
	bot.api = api

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return bot, nil
}

func newBot(sender Sender, chatID int64, ctl Controller) *TelegramBot {
	return &TelegramBot{
		sender:         sender,
		chatID:         chatID,
		stopCh:         make(chan struct{}),
		ctl:            ctl,
		commandTimeout: 10 * time.Second,
	}
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running || b.api == nil {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	b.api.StopReceivingUpdates()
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyTrade sends an open or close alert
func (b *TelegramBot) NotifyTrade(sess *types.Session, trade *types.Trade) {
	b.sendMarkdown(formatTrade(sess, trade))
}

// NotifyWarning sends a warning tied to a session
func (b *TelegramBot) NotifyWarning(sess *types.Session, msg string) {
	b.sendMarkdown(fmt.Sprintf("⚠️ *WARNING* `%s` %s\n\n%s", shortID(sess.ID), sess.Instrument, msg))
}

// NotifyStartup sends startup notification
func (b *TelegramBot) NotifyStartup(resumed int, modes []types.ExecutionMode) {
	names := make([]string, 0, len(modes))
	for _, m := range modes {
		names = append(names, string(m))
	}
	b.sendMarkdown(fmt.Sprintf(`🚀 *TRADE ENGINE STARTED*
━━━━━━━━━━━━━━━━━━━━

♻️ Resumed sessions: *%d*
📊 Modes: *%s*

Use /help for commands`, resumed, strings.Join(names, ", ")))
}

func formatTrade(sess *types.Session, t *types.Trade) string {
	if !t.Closed() {
		emoji := "🟢"
		if t.Side == types.Short {
			emoji = "🔴"
		}
		return fmt.Sprintf(`%s *OPEN* %s %s
━━━━━━━━━━━━━━━━
💵 Entry: *%s* x %d
🎯 Target: *%s*
🛑 Stop: *%s*
📊 %s | %s`,
			emoji, t.Instrument, t.Side,
			t.EntryPrice.StringFixed(2), t.Quantity,
			t.Target.StringFixed(2),
			t.StopLoss.StringFixed(2),
			t.Mode, t.StrategyName,
		)
	}

	emoji := "📊"
	switch t.ExitReason {
	case types.ExitTarget:
		emoji = "💰"
	case types.ExitStopLoss:
		emoji = "🛑"
	case types.ExitKillSwitch:
		emoji = "🚨"
	case types.ExitCutoff:
		emoji = "⏰"
	}

	msg := fmt.Sprintf(`%s *CLOSED* %s %s — %s
━━━━━━━━━━━━━━━━
💵 %s → %s x %d
💰 P&L: *%s*
📈 Day: *%s*`,
		emoji, t.Instrument, t.Side, t.ExitReason,
		t.EntryPrice.StringFixed(2), t.ExitPrice.StringFixed(2), t.Quantity,
		signed(t.RealizedPnL),
		signed(sess.DailyPnL),
	)
	if !t.ExitConfirmed && t.Mode == types.ModeLive {
		msg += "\n⚠️ Exit not confirmed by broker"
	}
	return msg
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message.Command(), update.Message.CommandArguments())
		}
	}
}

func (b *TelegramBot) handleCommand(cmd, args string) {
	ctx, cancel := context.WithTimeout(context.Background(), b.commandTimeout)
	defer cancel()
	b.sendMarkdown(b.Reply(ctx, cmd, args))
}

// Reply computes the answer to one command
func (b *TelegramBot) Reply(ctx context.Context, cmd, args string) string {
	id := strings.TrimSpace(args)

	switch strings.ToLower(cmd) {
	case "start", "help":
		return helpText
	case "sessions":
		return b.cmdSessions(ctx)
	case "status":
		if id == "" {
			return "❓ Usage: /status <session-id>"
		}
		return b.cmdStatus(ctx, id)
	case "stop":
		if id == "" {
			return "❓ Usage: /stop <session-id>"
		}
		return b.cmdStop(ctx, id)
	case "kill":
		if id == "" {
			return "❓ Usage: /kill <session-id>"
		}
		return b.cmdKill(ctx, id)
	case "trades":
		if id == "" {
			return "❓ Usage: /trades <session-id>"
		}
		return b.cmdTrades(ctx, id)
	case "ping":
		return "🏓 Pong!"
	default:
		return "❓ Unknown command. Use /help"
	}
}

const helpText = `🤖 *TRADE ENGINE COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📋 /sessions — Active and recent sessions
📊 /status <id> — Session status
⏹️ /stop <id> — Stop a session
🚨 /kill <id> — Flatten and stop now
📜 /trades <id> — Closed trades
🏓 /ping — Test connection`

func (b *TelegramBot) cmdSessions(ctx context.Context) string {
	views, err := b.ctl.List(ctx)
	if err != nil {
		return "❌ Failed to list sessions"
	}
	if len(views) == 0 {
		return "📭 No sessions"
	}

	var sb strings.Builder
	sb.WriteString("📋 *SESSIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n")
	for _, v := range views {
		pos := "flat"
		if v.CurrentTrade != nil {
			pos = string(v.CurrentTrade.Side)
		}
		fmt.Fprintf(&sb, "%s `%s` %s %s — %s | P&L %s\n",
			statusEmoji(v.Status), v.ID, v.Instrument, v.Mode, pos, signed(v.DailyPnL))
	}
	return sb.String()
}

func (b *TelegramBot) cmdStatus(ctx context.Context, id string) string {
	v, err := b.ctl.Status(ctx, id)
	if err != nil {
		return failure(err)
	}

	pos := "📭 Flat"
	if t := v.CurrentTrade; t != nil {
		pos = fmt.Sprintf("💼 %s %d @ %s (SL %s / TP %s)",
			t.Side, t.Quantity, t.EntryPrice.StringFixed(2), t.StopLoss.StringFixed(2), t.Target.StringFixed(2))
	}

	msg := fmt.Sprintf(`📊 *SESSION* `+"`%s`"+`
━━━━━━━━━━━━━━━━━━━━

%s %s %s
%s
📊 Mode: *%s* | Strategy: *%s*
💵 Last: *%s*
💰 Day P&L: *%s* | Balance: *%s*
⏱️ Hour: *%d/%d* (%s)
🔢 Trades today: *%d*
⏰ Cutoff: %s`,
		v.ID,
		statusEmoji(v.Status), v.Instrument, v.Status,
		pos,
		v.Mode, v.Strategy,
		v.LastPrice.StringFixed(2),
		signed(v.DailyPnL), v.Balance.StringFixed(2),
		v.HourlyTradeCount, v.HourlyLimit, v.FrequencyMode,
		v.TradesTakenToday,
		v.CutoffAt.Format("15:04"),
	)
	if v.StopReason != "" {
		msg += "\n🏁 Stop reason: " + v.StopReason
	}
	if v.LastError != "" {
		msg += "\n⚠️ " + v.LastError
	}
	return msg
}

func (b *TelegramBot) cmdStop(ctx context.Context, id string) string {
	sess, err := b.ctl.Stop(ctx, id)
	if err != nil {
		return failure(err)
	}
	log.Info().Str("session", id).Msg("Session stopped via Telegram")
	if sess.InTrade() {
		return fmt.Sprintf("⏹️ `%s` stopped, position left open (%s)", shortID(id), sess.CurrentTrade.Side)
	}
	return fmt.Sprintf("⏹️ `%s` stopped", shortID(id))
}

func (b *TelegramBot) cmdKill(ctx context.Context, id string) string {
	sess, err := b.ctl.Kill(ctx, id)
	if err != nil {
		return failure(err)
	}
	log.Warn().Str("session", id).Msg("Kill switch via Telegram")
	return fmt.Sprintf("🚨 `%s` killed — flat, day P&L %s", shortID(id), signed(sess.DailyPnL))
}

func (b *TelegramBot) cmdTrades(ctx context.Context, id string) string {
	trades, err := b.ctl.Trades(ctx, id)
	if err != nil {
		return failure(err)
	}
	if len(trades) == 0 {
		return "📭 No trade history yet"
	}

	// Newest ten
	if len(trades) > 10 {
		trades = trades[len(trades)-10:]
	}

	var sb strings.Builder
	sb.WriteString("📜 *TRADES*\n━━━━━━━━━━━━━━━━━━━━\n\n")
	for _, t := range trades {
		fmt.Fprintf(&sb, "%s %s %d @ %s → %s | %s | P&L %s\n   _%s_\n\n",
			t.Side, t.Instrument, t.Quantity,
			t.EntryPrice.StringFixed(2), t.ExitPrice.StringFixed(2),
			t.ExitReason, signed(t.RealizedPnL),
			t.ExitTime.Format("Jan 2 15:04"),
		)
	}
	return sb.String()
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func failure(err error) string {
	if errors.Is(err, types.ErrSessionNotFound) {
		return "❌ Session not found"
	}
	return "❌ " + err.Error()
}

func statusEmoji(s types.SessionStatus) string {
	switch s {
	case types.StatusActive:
		return "🟢"
	case types.StatusAutoClosed:
		return "⏰"
	default:
		return "⏹️"
	}
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[len(id)-10:]
	}
	return id
}

func (b *TelegramBot) sendMarkdown(text string) {
	if b.sender == nil {
		return
	}
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.sender.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
