// Package auction implements the fixed-point Dutch-auction pricing math.
// All functions are pure and mirror the on-chain integer arithmetic: division
// points truncate, shares are scaled x1e6 and the decay base x1e18.
package auction

import (
	"fmt"

	"github.com/shopspring/decimal"

	"liqsim/internal/core"
	apperrors "liqsim/pkg/errors"
)

// priceDivisor collapses the x1e18 decay blend and the x1e6 share and x1e4
// multiplier scales back to numeraire fixed-point.
var priceDivisor = decimal.New(1, 28)

// CalculateAskedShare sums, over the requested assets, the x1e6 fraction of
// the auction's value the asked amounts represent. Every requested asset
// must be part of the auction.
func CalculateAskedShare(info *core.AuctionInformation, asked map[core.Asset]decimal.Decimal) (decimal.Decimal, error) {
	total := decimal.Zero
	for asset, amount := range asked {
		meta, ok := info.Assets[asset]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", apperrors.ErrUnknownAsset, asset.Symbol)
		}
		if meta.Amount.IsZero() {
			continue
		}
		contribution := amount.Mul(meta.Share).Div(meta.Amount).Truncate(0)
		total = total.Add(contribution)
	}
	return total, nil
}

// CalculateBidPrice returns the numeraire cost of buying askedShare (x1e6)
// of the auction at the given timestamp. With base < 1e18 the price is
// non-increasing in time and decays toward the MinPriceMultiplier floor.
//
//	price = startDebt * share * (decay*(startMult-minMult) + 1e18*minMult) / 1e28
func CalculateBidPrice(info *core.AuctionInformation, askedShare decimal.Decimal, now int64) (decimal.Decimal, error) {
	timePassed := now - info.StartTime
	if timePassed < 0 {
		return decimal.Zero, fmt.Errorf("%w: now=%d start=%d", apperrors.ErrInvalidTime, now, info.StartTime)
	}

	decay := decayFactor(info.Base, timePassed)
	multiplierSpread := info.StartPriceMultiplier.Sub(info.MinPriceMultiplier)
	blend := decay.Mul(multiplierSpread).Add(core.Scale1e18.Mul(info.MinPriceMultiplier))

	price := info.StartDebt.Mul(askedShare).Mul(blend).Div(priceDivisor).Truncate(0)
	return price, nil
}

// decayGuardDigits bounds intermediate products in decayFactor. The ratio is
// below one, so each truncation loses under 1e-38 and the accumulated error
// stays far beneath the x1e18 output resolution.
const decayGuardDigits = 38

// decayFactor computes (base/1e18)^timePassed rescaled to x1e18 by
// square-and-multiply over decimals. The integer exponent keeps the
// computation exact at the output scale.
func decayFactor(base decimal.Decimal, timePassed int64) decimal.Decimal {
	if timePassed == 0 {
		return core.Scale1e18
	}
	result := decimal.New(1, 0)
	acc := base.Div(core.Scale1e18)
	for t := timePassed; t > 0; t >>= 1 {
		if t&1 == 1 {
			result = result.Mul(acc).Truncate(decayGuardDigits)
		}
		acc = acc.Mul(acc).Truncate(decayGuardDigits)
	}
	return result.Mul(core.Scale1e18).Truncate(0)
}

// PrepareAssetsInMarginAccount assigns each collateral position its x1e6
// share of the account's total value at current prices. It mutates the
// positions' metadata in place. Fails when the total value is zero, since
// shares cannot be allocated.
func PrepareAssetsInMarginAccount(positions []core.CollateralPosition, prices map[core.Asset]decimal.Decimal) error {
	values := make([]decimal.Decimal, len(positions))
	totalValue := decimal.Zero
	for i, pos := range positions {
		values[i] = core.ValueOf(pos.Metadata.CurrentAmount, prices[pos.Asset], pos.Asset.Decimals)
		totalValue = totalValue.Add(values[i])
	}
	if totalValue.IsZero() {
		return apperrors.ErrZeroValueAuction
	}
	for i := range positions {
		positions[i].Metadata.Share = values[i].Div(totalValue).Mul(core.ShareScale).Round(0)
	}
	return nil
}

// IsLiquidatable reports whether the account's liquidation value, the sum of
// collateral values weighted by each asset's liquidation factor in numeraire
// fixed-point, is positive and does not exceed the debt.
func IsLiquidatable(account *core.MarginAccount, prices map[core.Asset]decimal.Decimal, risk map[core.Asset]core.AssetRiskMetadata) bool {
	liquidationValue := decimal.Zero
	for _, pos := range account.Collateral {
		value := core.ValueOf(pos.Metadata.CurrentAmount, prices[pos.Asset], pos.Asset.Decimals)
		liquidationValue = liquidationValue.Add(value.Mul(risk[pos.Asset].LiquidationFactor).Truncate(0))
	}
	return liquidationValue.IsPositive() && liquidationValue.LessThanOrEqual(account.Debt)
}
