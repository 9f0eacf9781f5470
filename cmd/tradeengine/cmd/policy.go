package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/web3guy0/tradeengine/risk"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Frequency policy tools",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "Validate a frequency policy file and show its limits",
	Long: `Check loads a YAML frequency policy, validates it and prints the hourly
limit each slab grants in NORMAL, REDUCED and HARD_LIMIT modes.

Examples:
  tradeengine policy check configs/policy.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicyCheck,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyCheckCmd)
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	p, err := risk.LoadPolicy(args[0])
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ %s is valid\n", args[0])
	fmt.Fprintf(out, "  soft drawdown %s, hard drawdown %s, reduction %s, hourly cap %d\n\n",
		p.SoftDrawdownPct, p.HardDrawdownPct, p.ReductionFactor, p.MaxHourlyCap)

	for _, s := range p.Slabs {
		upper := "∞"
		if s.MaxCapital != nil {
			upper = s.MaxCapital.String()
		}
		// Probe each mode at the slab's lower bound
		capital := s.MinCapital
		if capital.IsZero() {
			capital = decimal.NewFromInt(1)
		}
		normal := p.Evaluate(capital, decimal.Zero)
		reduced := p.Evaluate(capital, p.SoftDrawdownPct.Mul(capital).Neg())
		hard := p.Evaluate(capital, p.HardDrawdownPct.Mul(capital).Neg())

		fmt.Fprintf(out, "  [%s, %s)  normal %d  reduced %d  hard %d\n",
			s.MinCapital, upper, normal.Limit, reduced.Limit, hard.Limit)
	}
	return nil
}
