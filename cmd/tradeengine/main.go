// Trade Engine - intraday session scheduler with paper, live and replay modes
package main

import (
	"os"

	"github.com/web3guy0/tradeengine/cmd/tradeengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
