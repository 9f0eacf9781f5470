package replay

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/types"
)

// Series answers "what would the live feed have shown at instant t" from
// historical candles. The price at t is the close of the latest candle
// completed at or before t; the window is the closes of completed candles.
type Series struct {
	instrument string
	candles    []types.Candle
	bar        time.Duration
	window     int
}

// NewSeries sorts candles by start time. A zero bar is inferred from the
// smallest gap between consecutive candles.
func NewSeries(instrument string, candles []types.Candle, bar time.Duration, window int) (*Series, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles")
	}
	sorted := append([]types.Candle(nil), candles...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	if bar <= 0 {
		for i := 1; i < len(sorted); i++ {
			gap := sorted[i].Time.Sub(sorted[i-1].Time)
			if gap > 0 && (bar == 0 || gap < bar) {
				bar = gap
			}
		}
		if bar <= 0 {
			return nil, fmt.Errorf("cannot infer bar interval from %d candle(s)", len(sorted))
		}
	}
	if window <= 0 {
		window = 20
	}

	return &Series{instrument: instrument, candles: sorted, bar: bar, window: window}, nil
}

// Bar returns the candle interval
func (s *Series) Bar() time.Duration { return s.bar }

// Start is the instant the first candle completes
func (s *Series) Start() time.Time { return s.candles[0].Time.Add(s.bar) }

// End is the instant the last candle completes
func (s *Series) End() time.Time { return s.candles[len(s.candles)-1].Time.Add(s.bar) }

// Len returns the number of candles
func (s *Series) Len() int { return len(s.candles) }

// Snapshot returns the market view at t; false before the first candle completes
func (s *Series) Snapshot(t time.Time) (types.Snapshot, bool) {
	// First candle not yet complete at t
	n := sort.Search(len(s.candles), func(i int) bool {
		return s.candles[i].Time.Add(s.bar).After(t)
	})
	if n == 0 {
		return types.Snapshot{}, false
	}

	from := n - s.window
	if from < 0 {
		from = 0
	}
	window := make([]decimal.Decimal, 0, n-from)
	for _, c := range s.candles[from:n] {
		window = append(window, c.Close)
	}

	last := s.candles[n-1]
	return types.Snapshot{
		Instrument: s.instrument,
		LastPrice:  last.Close,
		Time:       last.Time.Add(s.bar),
		Window:     window,
	}, true
}
