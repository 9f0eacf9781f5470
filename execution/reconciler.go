package execution

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RECONCILIATION - Startup position check
// ═══════════════════════════════════════════════════════════════════════════════
//
// On startup, LIVE trades restored from the store are compared with the
// broker's net positions. Differences are reported, never auto-corrected:
// a human decides whether to kill the session or flatten at the broker.
//
// This catches "ghost positions" after crashes and exits the kill switch
// could not confirm.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Mismatch is one instrument whose local and broker positions disagree
type Mismatch struct {
	Instrument string
	Local      int64
	Broker     int64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: local %d, broker %d", m.Instrument, m.Local, m.Broker)
}

// Reconciler compares local open trades with the broker
type Reconciler struct {
	broker Broker
}

// NewReconciler creates a position reconciler
func NewReconciler(broker Broker) *Reconciler {
	return &Reconciler{broker: broker}
}

// Reconcile checks open LIVE trades plus instruments whose last exit went unconfirmed
func (r *Reconciler) Reconcile(ctx context.Context, open []*types.Trade, unconfirmed []string) ([]Mismatch, error) {
	brokerPos, err := r.broker.Positions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("❌ Failed to load broker positions")
		return nil, err
	}

	local := make(map[string]int64)
	for _, t := range open {
		if t.Mode != types.ModeLive {
			continue
		}
		local[t.Instrument] += t.Quantity * t.Side.Sign().IntPart()
	}
	for _, inst := range unconfirmed {
		if _, ok := local[inst]; !ok {
			local[inst] = 0
		}
	}

	var out []Mismatch
	for inst, qty := range local {
		if brokerPos[inst] != qty {
			out = append(out, Mismatch{Instrument: inst, Local: qty, Broker: brokerPos[inst]})
		}
	}

	if len(out) == 0 {
		log.Info().Int("instruments", len(local)).Msg("📦 Broker positions reconciled")
		return nil, nil
	}
	for _, m := range out {
		log.Warn().
			Str("instrument", m.Instrument).
			Int64("local", m.Local).
			Int64("broker", m.Broker).
			Msg("⚠️ Position mismatch with broker")
	}
	return out, nil
}
