package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/web3guy0/tradeengine/types"
)

// AutoSelector is the selector name that tries every registered strategy
const AutoSelector = "auto"

// Registry maps strategy names to implementations. Order of registration is
// the order the auto selector tries them in.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Strategy
	order []string
}

// NewRegistry creates a registry with the given strategies
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{byKey: make(map[string]Strategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a strategy
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.byKey[s.Name()] = s
}

// Get returns a strategy by exact name
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byKey[name]
	return s, ok
}

// Names returns registered names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// Resolve turns a session selector into a Strategy
func (r *Registry) Resolve(selector string) (Strategy, error) {
	if selector == AutoSelector {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if len(r.order) == 0 {
			return nil, fmt.Errorf("no strategies registered")
		}
		return &auto{registry: r}, nil
	}
	s, ok := r.Get(selector)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", selector)
	}
	return s, nil
}

// auto tries each registered strategy in order; the first signal wins.
// Exits go back to the strategy that opened the trade.
type auto struct {
	registry *Registry
}

func (a *auto) Name() string { return AutoSelector }

func (a *auto) CheckEntry(ctx context.Context, snap types.Snapshot) (*Signal, error) {
	a.registry.mu.RLock()
	names := append([]string(nil), a.registry.order...)
	a.registry.mu.RUnlock()

	for _, name := range names {
		s, ok := a.registry.Get(name)
		if !ok {
			continue
		}
		sig, err := s.CheckEntry(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if sig != nil {
			if sig.Strategy == "" {
				sig.Strategy = name
			}
			return sig, nil
		}
	}
	return nil, nil
}

func (a *auto) CheckExit(ctx context.Context, trade *types.Trade, snap types.Snapshot) (string, error) {
	s, ok := a.registry.Get(trade.StrategyName)
	if !ok {
		// Unknown owner: fall back to plain stop/target
		return CheckStopTarget(trade, snap.LastPrice), nil
	}
	return s.CheckExit(ctx, trade, snap)
}
