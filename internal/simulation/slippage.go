package simulation

import (
	"github.com/shopspring/decimal"

	"liqsim/internal/core"
)

// PairKey identifies a trading pair for the slippage table.
type PairKey struct {
	Sell string
	Buy  string
}

// TableSlippage is a market-impact model backed by a per-pair table: the
// fractional impact grows linearly with trade size relative to the pair's
// configured depth. Unknown pairs cost nothing, per the external contract.
type TableSlippage struct {
	depth map[PairKey]decimal.Decimal // trade size at which impact reaches baseImpact
	base  map[PairKey]decimal.Decimal // fractional impact at full depth
}

// NewTableSlippage builds the model from parallel depth and impact tables.
func NewTableSlippage(depth, base map[PairKey]decimal.Decimal) *TableSlippage {
	return &TableSlippage{depth: depth, base: base}
}

// Impact implements core.ISlippageModel.
func (t *TableSlippage) Impact(sellAsset, buyAsset core.Asset, amount decimal.Decimal) decimal.Decimal {
	key := PairKey{Sell: sellAsset.Symbol, Buy: buyAsset.Symbol}
	depth, ok := t.depth[key]
	if !ok || depth.IsZero() {
		return decimal.Zero
	}
	impact := t.base[key].Mul(amount).Div(depth)
	// cap at 100%; a trade can not lose more than its value to impact
	if impact.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return impact
}

// NoSlippage reports zero impact for every pair.
type NoSlippage struct{}

// Impact implements core.ISlippageModel.
func (NoSlippage) Impact(core.Asset, core.Asset, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
