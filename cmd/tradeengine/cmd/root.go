package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/web3guy0/tradeengine/core"
	"github.com/web3guy0/tradeengine/internal/config"
	"github.com/web3guy0/tradeengine/risk"
	"github.com/web3guy0/tradeengine/strategy"
)

const version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "tradeengine",
	Short: "Intraday trading session engine",
	Long: `Trade Engine runs user-started trading sessions on a fixed tick.

Each session trades one instrument under an hourly frequency policy,
a per-trade risk budget and a daily loss cap, in PAPER or LIVE mode.
The same decision step replays historical candles as a backtest.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func setupLogging() {
	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	if os.Getenv("LOG_FORMAT") != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// strategies builds the registry of built-in strategies
func strategies() *strategy.Registry {
	return strategy.NewRegistry(
		strategy.NewBreakoutFromEnv(),
		strategy.NewMeanRevertFromEnv(),
	)
}

// newStepper wires the decision step shared by live and replay
func newStepper(cfg *config.Config, policies *risk.PolicyStore) *core.Stepper {
	gate := risk.NewGate(policies, risk.NewSizer(cfg.RiskConfig()))
	return core.NewStepper(gate, strategies(), strategy.NewTrendValidator(cfg.TrendPeriod), cfg.Location())
}
