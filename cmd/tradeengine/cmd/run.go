package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/web3guy0/tradeengine/api"
	"github.com/web3guy0/tradeengine/bot"
	"github.com/web3guy0/tradeengine/core"
	"github.com/web3guy0/tradeengine/exec"
	"github.com/web3guy0/tradeengine/execution"
	"github.com/web3guy0/tradeengine/feeds"
	"github.com/web3guy0/tradeengine/internal/config"
	"github.com/web3guy0/tradeengine/internal/trace"
	"github.com/web3guy0/tradeengine/risk"
	"github.com/web3guy0/tradeengine/storage"
	"github.com/web3guy0/tradeengine/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the session scheduler with the HTTP API and Telegram bot",
	Long: `Run resumes ACTIVE sessions from the store, then ticks every session on
TICK_INTERVAL until interrupted. Sessions are created and controlled through
the HTTP API (API_ADDR) and, when configured, the Telegram bot.

Examples:
  tradeengine run
  FEED_URL=wss://feed.example/trades tradeengine run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log.Info().
		Str("version", version).
		Dur("tick", cfg.TickInterval).
		Str("timezone", cfg.MarketTimezone).
		Str("stop_policy", string(cfg.StopPolicy)).
		Bool("live", cfg.LiveEnabled()).
		Msg("⚡ Trade engine starting...")

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := trace.Init(cfg.TracingEnabled); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = trace.Shutdown(sctx)
	}()

	// Initialize database
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	policies, err := risk.NewPolicyStore(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("load frequency policy: %w", err)
	}

	// ====== MARKET DATA ======
	feed, stopFeed := newFeed(cfg)
	defer stopFeed()

	// ====== EXECUTION ======
	executors := []execution.Executor{execution.NewPaperExecutor()}
	var reconciler *execution.Reconciler
	if cfg.LiveEnabled() {
		client, err := exec.NewClient(exec.Config{
			BaseURL:   cfg.BrokerURL,
			APIKey:    cfg.BrokerAPIKey,
			APISecret: cfg.BrokerAPISecret,
		})
		if err != nil {
			return fmt.Errorf("create broker client: %w", err)
		}
		executors = append(executors, execution.NewLiveExecutor(client, cfg.ExecutorConfig()))
		reconciler = execution.NewReconciler(client)
	} else {
		log.Warn().Msg("⚠️ Broker credentials not set, LIVE sessions are refused")
	}
	router := execution.NewRouter(executors...)

	// ====== SCHEDULER ======
	sched := core.NewScheduler(cfg.SchedulerConfig(), store, feed, router, newStepper(cfg, policies))
	if reconciler != nil {
		sched.SetReconciler(reconciler)
	}

	var tg *bot.TelegramBot
	if cfg.TelegramToken != "" {
		tg, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, sched)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram bot disabled")
			tg = nil
		} else {
			sched.SetNotifier(tg)
			tg.Start()
			defer tg.Stop()
		}
	}

	resumed, err := sched.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume sessions: %w", err)
	}
	if tg != nil {
		modes := []types.ExecutionMode{types.ModePaper}
		if cfg.LiveEnabled() {
			modes = append(modes, types.ModeLive)
		}
		tg.NotifyStartup(resumed, modes)
	}

	// ====== API ======
	srv := api.NewServer(cfg.APIAddr, sched, policies)
	srv.SetRouter(router)
	srv.SetFeed(feed)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start api: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("API shutdown")
		}
	}()

	sched.Run(ctx)

	ticks, sessions, active := sched.Stats()
	log.Info().
		Int64("ticks", ticks).
		Int("sessions", sessions).
		Int("active", active).
		Msg("👋 Trade engine stopped")
	return nil
}

// newFeed picks the market data transport from the FEED_URL scheme
func newFeed(cfg *config.Config) (feeds.Provider, func()) {
	switch {
	case strings.HasPrefix(cfg.FeedURL, "ws://"), strings.HasPrefix(cfg.FeedURL, "wss://"):
		f := feeds.NewWSFeed(feeds.WSConfig{
			URL:          cfg.FeedURL,
			BarInterval:  cfg.FeedBarInterval,
			Window:       cfg.FeedWindow,
			MaxStaleness: cfg.FeedMaxStaleness,
		})
		f.Start()
		log.Info().Str("url", cfg.FeedURL).Msg("📈 WebSocket trade feed started")
		return f, f.Stop

	case strings.HasPrefix(cfg.FeedURL, "http://"), strings.HasPrefix(cfg.FeedURL, "https://"):
		f := feeds.NewPollFeed(feeds.PollConfig{
			BaseURL:      cfg.FeedURL,
			Interval:     time.Second,
			BarInterval:  cfg.FeedBarInterval,
			Window:       cfg.FeedWindow,
			MaxStaleness: cfg.FeedMaxStaleness,
		})
		f.Start()
		log.Info().Str("url", cfg.FeedURL).Msg("📊 Polling quote feed started")
		return f, f.Stop

	default:
		log.Warn().Msg("⚠️ FEED_URL not set, sessions will see no market data")
		return feeds.NewStaticFeed(), func() {}
	}
}
