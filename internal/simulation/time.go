// Package simulation drives one scenario: a simulated clock over historical
// price and gas series, and the pipeline event loop that advances it.
package simulation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"liqsim/internal/core"
	apperrors "liqsim/pkg/errors"
)

// SimulationTime is the per-scenario time cursor over pre-materialized price
// and gas series. Series are populated before a run starts; the hot loop
// performs no I/O. Lookups at a timestamp with no entry fail deterministically.
type SimulationTime struct {
	now    int64
	prices map[core.Asset]map[int64]decimal.Decimal
	gas    map[int64]decimal.Decimal
}

// NewSimulationTime wraps the given series. The caller retains no obligation
// to keep them alive; maps are referenced, not copied, and treated read-only.
func NewSimulationTime(prices map[core.Asset]map[int64]decimal.Decimal, gas map[int64]decimal.Decimal) *SimulationTime {
	return &SimulationTime{prices: prices, gas: gas}
}

// SetNow moves the cursor. The pipeline only ever moves it forward.
func (s *SimulationTime) SetNow(ts int64) { s.now = ts }

// Now returns the cursor timestamp.
func (s *SimulationTime) Now() int64 { return s.now }

// Price returns the asset's price at the cursor timestamp.
func (s *SimulationTime) Price(asset core.Asset) (decimal.Decimal, error) {
	series, ok := s.prices[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no series for %s", apperrors.ErrPriceNotPopulated, asset.Symbol)
	}
	price, ok := series[s.now]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s at %d", apperrors.ErrPriceNotPopulated, asset.Symbol, s.now)
	}
	return price, nil
}

// GasPrice returns the gas price at the cursor timestamp.
func (s *SimulationTime) GasPrice() (decimal.Decimal, error) {
	gas, ok := s.gas[s.now]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: gas at %d", apperrors.ErrPriceNotPopulated, s.now)
	}
	return gas, nil
}

// Timestamps returns the sorted, deduplicated union of all timestamps
// present in the price series.
func (s *SimulationTime) Timestamps() []int64 {
	seen := make(map[int64]struct{})
	for _, series := range s.prices {
		for ts := range series {
			seen[ts] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
