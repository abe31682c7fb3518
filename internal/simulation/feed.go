package simulation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"liqsim/internal/core"
)

// FeedSpec parameterizes a deterministic synthetic feed: a fixed-interval
// timestamp grid with multiplicative price drift per step and a constant gas
// price. Useful for demos and smoke runs; production runs inject recorded
// series instead.
type FeedSpec struct {
	Steps           int
	IntervalSeconds int64
	StartTimestamp  int64
	DriftPerStep    float64
	StartPrices     map[string]decimal.Decimal // keyed by asset symbol
	GasPrice        decimal.Decimal
}

// GenerateFeed materializes price and gas series for the given assets.
// Every asset must have a start price; prices are truncated to integers at
// every step so downstream math stays in fixed point.
func GenerateFeed(spec FeedSpec, assets []core.Asset) (map[core.Asset]map[int64]decimal.Decimal, map[int64]decimal.Decimal, error) {
	if spec.Steps <= 0 {
		return nil, nil, fmt.Errorf("feed: steps must be positive, got %d", spec.Steps)
	}
	if spec.IntervalSeconds <= 0 {
		return nil, nil, fmt.Errorf("feed: interval must be positive, got %d", spec.IntervalSeconds)
	}

	drift := decimal.NewFromFloat(1 + spec.DriftPerStep)
	prices := make(map[core.Asset]map[int64]decimal.Decimal, len(assets))
	gas := make(map[int64]decimal.Decimal, spec.Steps)

	for _, asset := range assets {
		start, ok := spec.StartPrices[asset.Symbol]
		if !ok {
			return nil, nil, fmt.Errorf("feed: no start price for %s", asset.Symbol)
		}
		series := make(map[int64]decimal.Decimal, spec.Steps)
		price := start
		for i := 0; i < spec.Steps; i++ {
			ts := spec.StartTimestamp + int64(i)*spec.IntervalSeconds
			series[ts] = price.Truncate(0)
			price = price.Mul(drift)
		}
		prices[asset] = series
	}

	for i := 0; i < spec.Steps; i++ {
		ts := spec.StartTimestamp + int64(i)*spec.IntervalSeconds
		gas[ts] = spec.GasPrice
	}

	return prices, gas, nil
}
