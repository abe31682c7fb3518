// Package core defines the domain types and interfaces for the liquidation simulator
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IMarketClock provides the simulated time cursor and the pre-materialized
// price and gas series. Lookups fail with ErrPriceNotPopulated when the
// cursor timestamp has no entry.
type IMarketClock interface {
	Now() int64
	Price(asset Asset) (decimal.Decimal, error)
	GasPrice() (decimal.Decimal, error)
}

// ISlippageModel estimates the fractional price impact of selling amount of
// sellAsset into buyAsset. Unknown pairs return zero.
type ISlippageModel interface {
	Impact(sellAsset, buyAsset Asset, amount decimal.Decimal) decimal.Decimal
}

// IDebtModel initializes one margin account's debt from the scenario
// exposure cap, current prices and the collateral template. It returns the
// debt and the collateral value, both in numeraire units. The model is
// expected to respect the exposure cap; the engine does not re-check it.
type IDebtModel interface {
	Compute(exposure decimal.Decimal, prices map[Asset]decimal.Decimal, collateral []CollateralPosition, numeraire Asset) (debt, collateralValue decimal.Decimal)
}

// IResultSink receives the three record kinds a pipeline emits. WriteRunParams
// is called once per run before the first step. Implementations must be safe
// for concurrent use from multiple pipelines.
type IResultSink interface {
	WriteRunParams(ctx context.Context, rec RunParams) error
	WriteStepRecord(ctx context.Context, rec StepRecord) error
	WriteStepMetrics(ctx context.Context, rec StepMetrics) error
	Close() error
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
