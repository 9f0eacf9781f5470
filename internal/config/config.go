package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/core"
	"github.com/web3guy0/tradeengine/execution"
	"github.com/web3guy0/tradeengine/risk"
)

// Config holds all configuration for the engine
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Mode
	Debug          bool
	LogFormat      string // console or json
	TracingEnabled bool

	// Scheduler
	TickInterval       time.Duration
	MaxParallel        int
	SnapshotTimeout    time.Duration
	StopPolicy         core.StopPolicy
	MaxSessionFailures int
	MarketTimezone     string
	DefaultCutoff      string

	// Risk
	RiskPerTradePct   decimal.Decimal
	DailyLossLimitPct decimal.Decimal
	StopLossPct       decimal.Decimal
	TargetPct         decimal.Decimal
	RewardMultiple    decimal.Decimal
	PolicyFile        string // empty uses the built-in slabs

	// Live execution
	BrokerURL        string
	BrokerAPIKey     string
	BrokerAPISecret  string
	LiveFillTimeout  time.Duration
	LivePollInterval time.Duration
	LiveMaxRetries   int

	// Market data
	FeedURL          string // ws:// or wss:// streams trades, http(s):// polls quotes
	FeedWindow       int
	FeedBarInterval  time.Duration
	FeedMaxStaleness time.Duration

	// Validation
	TrendPeriod int

	// Storage & API
	DatabasePath string
	APIAddr      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		// Mode
		Debug:          getEnvBool("DEBUG", false),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", false),

		// Scheduler
		TickInterval:       getEnvDuration("TICK_INTERVAL", 15*time.Second),
		MaxParallel:        getEnvInt("MAX_PARALLEL_SESSIONS", 8),
		SnapshotTimeout:    getEnvDuration("SNAPSHOT_TIMEOUT", 3*time.Second),
		StopPolicy:         core.StopPolicy(strings.ToUpper(getEnv("STOP_POLICY", string(core.StopFreeze)))),
		MaxSessionFailures: getEnvInt("MAX_SESSION_FAILURES", 5),
		MarketTimezone:     getEnv("MARKET_TIMEZONE", "Asia/Kolkata"),
		DefaultCutoff:      getEnv("DEFAULT_CUTOFF", "15:15"),

		// Risk
		RiskPerTradePct:   getEnvDecimal("RISK_PER_TRADE_PCT", decimal.NewFromFloat(0.01)),
		DailyLossLimitPct: getEnvDecimal("DAILY_LOSS_LIMIT_PCT", decimal.NewFromFloat(0.03)),
		StopLossPct:       getEnvDecimal("STOP_LOSS_PCT", decimal.NewFromFloat(0.01)),
		TargetPct:         getEnvDecimal("TARGET_PCT", decimal.NewFromFloat(0.02)),
		RewardMultiple:    getEnvDecimal("REWARD_MULTIPLE", decimal.NewFromInt(2)),
		PolicyFile:        os.Getenv("POLICY_FILE"),

		// Live execution
		BrokerURL:        os.Getenv("BROKER_URL"),
		BrokerAPIKey:     os.Getenv("BROKER_API_KEY"),
		BrokerAPISecret:  os.Getenv("BROKER_API_SECRET"),
		LiveFillTimeout:  getEnvDuration("LIVE_FILL_TIMEOUT", 5*time.Second),
		LivePollInterval: getEnvDuration("LIVE_POLL_INTERVAL", 250*time.Millisecond),
		LiveMaxRetries:   getEnvInt("LIVE_MAX_RETRIES", 2),

		// Market data
		FeedURL:          os.Getenv("FEED_URL"),
		FeedWindow:       getEnvInt("FEED_WINDOW", 20),
		FeedBarInterval:  getEnvDuration("FEED_BAR_INTERVAL", time.Minute),
		FeedMaxStaleness: getEnvDuration("FEED_MAX_STALENESS", 30*time.Second),

		// Validation
		TrendPeriod: getEnvInt("TREND_PERIOD", 20),

		// Storage & API
		DatabasePath: getEnv("DATABASE_PATH", "data/sessions.db"),
		APIAddr:      getEnv("API_ADDR", ":8080"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the engine
func (c *Config) Validate() error {
	if c.StopPolicy != core.StopFreeze && c.StopPolicy != core.StopSquareOff {
		return fmt.Errorf("STOP_POLICY must be FREEZE or SQUARE_OFF, got %q", c.StopPolicy)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive")
	}
	if !c.RiskPerTradePct.IsPositive() || c.RiskPerTradePct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("RISK_PER_TRADE_PCT must be in (0, 1]")
	}
	if !c.DailyLossLimitPct.IsPositive() {
		return fmt.Errorf("DAILY_LOSS_LIMIT_PCT must be positive")
	}
	if _, err := time.LoadLocation(c.MarketTimezone); err != nil {
		return fmt.Errorf("invalid MARKET_TIMEZONE: %w", err)
	}
	if _, err := time.Parse("15:04", c.DefaultCutoff); err != nil {
		return fmt.Errorf("DEFAULT_CUTOFF must be HH:MM: %w", err)
	}
	return nil
}

// Location returns the market time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LiveEnabled reports whether broker credentials are configured
func (c *Config) LiveEnabled() bool {
	return c.BrokerURL != "" && c.BrokerAPIKey != "" && c.BrokerAPISecret != ""
}

// SchedulerConfig maps the scheduler keys
func (c *Config) SchedulerConfig() core.Config {
	return core.Config{
		TickInterval:    c.TickInterval,
		MaxParallel:     c.MaxParallel,
		SnapshotTimeout: c.SnapshotTimeout,
		StopPolicy:      c.StopPolicy,
		MaxFailures:     c.MaxSessionFailures,
		DefaultCutoff:   c.DefaultCutoff,
		DefaultRiskPct:  c.RiskPerTradePct,
	}
}

// RiskConfig maps the sizer keys
func (c *Config) RiskConfig() risk.Config {
	return risk.Config{
		RiskPerTradePct:   c.RiskPerTradePct,
		DailyLossLimitPct: c.DailyLossLimitPct,
		StopLossPct:       c.StopLossPct,
		TargetPct:         c.TargetPct,
		RewardMultiple:    c.RewardMultiple,
	}
}

// ExecutorConfig maps the live execution keys
func (c *Config) ExecutorConfig() execution.ExecutorConfig {
	ec := execution.DefaultExecutorConfig()
	ec.FillTimeout = c.LiveFillTimeout
	ec.PollInterval = c.LivePollInterval
	ec.MaxRetries = c.LiveMaxRetries
	return ec
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
