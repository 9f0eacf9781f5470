package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/web3guy0/tradeengine/internal/config"
	"github.com/web3guy0/tradeengine/replay"
	"github.com/web3guy0/tradeengine/risk"
	"github.com/web3guy0/tradeengine/storage"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Backtest a session over historical candles",
	Long: `Replay steps a simulated session at the live tick interval over a CSV of
candles (time,open,high,low,close[,volume]). At every instant the price is
the close of the latest completed candle, exactly what the live feed would
have shown.

Examples:
  tradeengine replay -c data/nifty_1m.csv -i NIFTY --capital 100000
  tradeengine replay -c data/nifty_1m.csv -i NIFTY -s breakout --db data/backtest.db`,
	RunE: runReplay,
}

var (
	replayCandlesPath string
	replayInstrument  string
	replayCapital     float64
	replayRiskPct     float64
	replayStrategy    string
	replayValidation  bool
	replayCutoff      string
	replayDBPath      string
	replayWindow      int
	replayDecisions   bool
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayCandlesPath, "candles", "c", "", "CSV file of candles")
	replayCmd.Flags().StringVarP(&replayInstrument, "instrument", "i", "", "instrument name")
	replayCmd.Flags().Float64Var(&replayCapital, "capital", 100_000, "session capital")
	replayCmd.Flags().Float64Var(&replayRiskPct, "risk", 0, "risk per trade as a fraction (0 uses RISK_PER_TRADE_PCT)")
	replayCmd.Flags().StringVarP(&replayStrategy, "strategy", "s", "auto", "strategy name or auto")
	replayCmd.Flags().BoolVar(&replayValidation, "validate", false, "consult the external validator on entries")
	replayCmd.Flags().StringVar(&replayCutoff, "cutoff", "", "HH:MM cutoff in market time (default DEFAULT_CUTOFF)")
	replayCmd.Flags().StringVarP(&replayDBPath, "db", "d", "", "persist the BACKTEST session to this store")
	replayCmd.Flags().IntVar(&replayWindow, "window", 0, "closes exposed to strategies (default FEED_WINDOW)")
	replayCmd.Flags().BoolVar(&replayDecisions, "decisions", false, "print the decision log as JSON")

	_ = replayCmd.MarkFlagRequired("candles")
	_ = replayCmd.MarkFlagRequired("instrument")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	candles, err := replay.LoadCSVFile(replayCandlesPath)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}

	policies, err := risk.NewPolicyStore(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("load frequency policy: %w", err)
	}

	window := replayWindow
	if window <= 0 {
		window = cfg.FeedWindow
	}
	engine := replay.NewEngine(replay.Config{
		TickInterval: cfg.TickInterval,
		Window:       window,
	}, newStepper(cfg, policies))

	if replayDBPath != "" {
		store, err := storage.New(replayDBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
		engine.SetStore(store)
	}

	cutoff := replayCutoff
	if cutoff == "" {
		cutoff = cfg.DefaultCutoff
	}

	res, err := engine.Run(ctx, replay.Request{
		Instrument:         replayInstrument,
		Capital:            decimal.NewFromFloat(replayCapital),
		RiskPerTradePct:    decimal.NewFromFloat(replayRiskPct),
		StrategySelector:   replayStrategy,
		ExternalValidation: replayValidation,
		CutoffTime:         cutoff,
	}, candles)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nReplay complete: %s (%s)\n", res.Session.Instrument, res.Session.ID)
	fmt.Fprintf(out, "  Window:   %s → %s (%d ticks)\n", res.Start.Format("2006-01-02 15:04:05"), res.End.Format("15:04:05"), res.Ticks)
	fmt.Fprintf(out, "  Trades:   %d (%d wins, %d losses)\n", len(res.Trades), res.Wins, res.Losses)
	fmt.Fprintf(out, "  P&L:      %s\n", res.TotalPnL.StringFixed(2))
	fmt.Fprintf(out, "  Balance:  %s\n", res.FinalBalance.StringFixed(2))
	fmt.Fprintf(out, "  Max DD:   %s\n", res.MaxDrawdown.StringFixed(2))
	fmt.Fprintf(out, "  Status:   %s\n", res.Session.Status)
	if res.Session.InTrade() {
		fmt.Fprintf(out, "  Open:     %s %d @ %s\n", res.Session.CurrentTrade.Side, res.Session.CurrentTrade.Quantity, res.Session.CurrentTrade.EntryPrice.StringFixed(2))
	}

	for _, t := range res.Trades {
		fmt.Fprintf(out, "  %s  %-5s %6d  %10s → %-10s %-12s %10s\n",
			t.EntryTime.Format("15:04:05"), t.Side, t.Quantity,
			t.EntryPrice.StringFixed(2), t.ExitPrice.StringFixed(2),
			t.ExitReason, t.RealizedPnL.StringFixed(2))
	}

	if replayDecisions {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Decisions); err != nil {
			return err
		}
	}
	return nil
}
