package orchestrator

import (
	"github.com/shopspring/decimal"

	"liqsim/internal/core"
)

// DebtModelKind selects one of the closed set of debt-initialization models.
type DebtModelKind string

const (
	// DebtModelFixedRatio sets debt to a fixed fraction of collateral value.
	DebtModelFixedRatio DebtModelKind = "fixed_ratio"
	// DebtModelMaxExposure borrows up to the exposure cap.
	DebtModelMaxExposure DebtModelKind = "max_exposure"
)

// FixedRatioDebtModel initializes debt as ratio * collateral value, capped
// at the scenario exposure.
type FixedRatioDebtModel struct {
	Ratio decimal.Decimal
}

// Compute implements core.IDebtModel.
func (m FixedRatioDebtModel) Compute(exposure decimal.Decimal, prices map[core.Asset]decimal.Decimal, collateral []core.CollateralPosition, numeraire core.Asset) (decimal.Decimal, decimal.Decimal) {
	value := collateralValue(prices, collateral)
	debt := value.Mul(m.Ratio).Truncate(0)
	if debt.GreaterThan(exposure) {
		debt = exposure
	}
	return debt, value
}

// MaxExposureDebtModel initializes debt at the exposure cap, bounded by the
// collateral value so accounts never start underwater.
type MaxExposureDebtModel struct{}

// Compute implements core.IDebtModel.
func (MaxExposureDebtModel) Compute(exposure decimal.Decimal, prices map[core.Asset]decimal.Decimal, collateral []core.CollateralPosition, numeraire core.Asset) (decimal.Decimal, decimal.Decimal) {
	value := collateralValue(prices, collateral)
	debt := exposure
	if debt.GreaterThan(value) {
		debt = value
	}
	return debt, value
}

// NewDebtModel maps a configured kind to its model. Unknown kinds fall back
// to the fixed-ratio model with the given ratio.
func NewDebtModel(kind DebtModelKind, ratio decimal.Decimal) core.IDebtModel {
	switch kind {
	case DebtModelMaxExposure:
		return MaxExposureDebtModel{}
	default:
		return FixedRatioDebtModel{Ratio: ratio}
	}
}

func collateralValue(prices map[core.Asset]decimal.Decimal, collateral []core.CollateralPosition) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range collateral {
		total = total.Add(core.ValueOf(pos.Metadata.CurrentAmount, prices[pos.Asset], pos.Asset.Decimals))
	}
	return total
}
