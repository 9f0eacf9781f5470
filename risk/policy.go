package risk

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// policyFile is the on-disk YAML shape of a FrequencyPolicy
type policyFile struct {
	Slabs []struct {
		MinCapital       float64  `yaml:"min_capital"`
		MaxCapital       *float64 `yaml:"max_capital"`
		MaxTradesPerHour int      `yaml:"max_trades_per_hour"`
	} `yaml:"slabs"`
	MaxHourlyCap    int     `yaml:"max_hourly_cap"`
	SoftDrawdownPct float64 `yaml:"soft_drawdown_pct"`
	HardDrawdownPct float64 `yaml:"hard_drawdown_pct"`
	ReductionFactor float64 `yaml:"reduction_factor"`
}

// ParsePolicy decodes and validates a YAML frequency policy
func ParsePolicy(data []byte) (*FrequencyPolicy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}

	p := &FrequencyPolicy{
		MaxHourlyCap:    f.MaxHourlyCap,
		SoftDrawdownPct: decimal.NewFromFloat(f.SoftDrawdownPct),
		HardDrawdownPct: decimal.NewFromFloat(f.HardDrawdownPct),
		ReductionFactor: decimal.NewFromFloat(f.ReductionFactor),
	}
	for _, s := range f.Slabs {
		slab := Slab{
			MinCapital:       decimal.NewFromFloat(s.MinCapital),
			MaxTradesPerHour: s.MaxTradesPerHour,
		}
		if s.MaxCapital != nil {
			m := decimal.NewFromFloat(*s.MaxCapital)
			slab.MaxCapital = &m
		}
		p.Slabs = append(p.Slabs, slab)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPolicy reads a policy file
func LoadPolicy(path string) (*FrequencyPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// PolicyStore holds the process-wide policy. Readers take one pointer per tick,
// so a reload is seen from the next tick on and never alters admitted trades.
type PolicyStore struct {
	path    string
	current atomic.Pointer[FrequencyPolicy]
}

// NewPolicyStore loads path, or the default policy when path is empty
func NewPolicyStore(path string) (*PolicyStore, error) {
	ps := &PolicyStore{path: path}
	if path == "" {
		ps.current.Store(DefaultFrequencyPolicy())
		return ps, nil
	}
	if err := ps.Reload(); err != nil {
		return nil, err
	}
	return ps, nil
}

// NewStaticPolicyStore wraps a fixed policy
func NewStaticPolicyStore(p *FrequencyPolicy) *PolicyStore {
	ps := &PolicyStore{}
	ps.current.Store(p)
	return ps
}

// Current returns the active policy
func (ps *PolicyStore) Current() *FrequencyPolicy {
	return ps.current.Load()
}

// Reload re-reads the policy file and swaps it in. A bad file keeps the old policy.
func (ps *PolicyStore) Reload() error {
	if ps.path == "" {
		return fmt.Errorf("no policy file configured")
	}
	p, err := LoadPolicy(ps.path)
	if err != nil {
		return err
	}
	ps.current.Store(p)

	log.Info().
		Str("file", ps.path).
		Int("slabs", len(p.Slabs)).
		Int("max_hourly_cap", p.MaxHourlyCap).
		Msg("📋 Frequency policy loaded")
	return nil
}
