// Package orchestrator expands the risk-parameter grid into scenarios and
// fans one pipeline per scenario out to a worker pool.
package orchestrator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"liqsim/internal/core"
)

// ParamRange holds the candidate values for one asset's risk parameters.
type ParamRange struct {
	CollateralFactors  []decimal.Decimal
	LiquidationFactors []decimal.Decimal
	Exposures          []decimal.Decimal
}

// AssetGrid pairs an asset with its parameter ranges.
type AssetGrid struct {
	Asset core.Asset
	Range ParamRange
}

// Scenario is one concrete risk-parameter combination across all assets.
type Scenario struct {
	ID   string
	Risk map[core.Asset]core.AssetRiskMetadata
}

// ExpandAssetCombinations returns, for one asset, every admissible
// (collateral factor, liquidation factor, exposure) combination. A
// combination is admissible when the liquidation factor strictly exceeds the
// collateral factor and their ratio survives a worst-case price drop from
// the start multiplier down to the minimum multiplier.
func ExpandAssetCombinations(r ParamRange, minPriceMultiplier, startPriceMultiplier decimal.Decimal) []core.AssetRiskMetadata {
	worstCase := minPriceMultiplier.Div(startPriceMultiplier)
	var out []core.AssetRiskMetadata
	for _, cf := range r.CollateralFactors {
		for _, lf := range r.LiquidationFactors {
			if !lf.GreaterThan(cf) || lf.IsZero() {
				continue
			}
			if cf.Div(lf).LessThan(worstCase) {
				continue
			}
			for _, exp := range r.Exposures {
				out = append(out, core.AssetRiskMetadata{
					CollateralFactor:  cf,
					LiquidationFactor: lf,
					Exposure:          exp,
				})
			}
		}
	}
	return out
}

// ExpandScenarios takes the Cartesian product of the per-asset admissible
// combinations across all assets. The grid order is deterministic: scenario
// ids are stable across runs with the same config.
func ExpandScenarios(grids []AssetGrid, minPriceMultiplier, startPriceMultiplier decimal.Decimal) []Scenario {
	perAsset := make([][]core.AssetRiskMetadata, len(grids))
	for i, g := range grids {
		perAsset[i] = ExpandAssetCombinations(g.Range, minPriceMultiplier, startPriceMultiplier)
		if len(perAsset[i]) == 0 {
			return nil
		}
	}

	var scenarios []Scenario
	indices := make([]int, len(grids))
	for {
		risk := make(map[core.Asset]core.AssetRiskMetadata, len(grids))
		for i, g := range grids {
			risk[g.Asset] = perAsset[i][indices[i]]
		}
		scenarios = append(scenarios, Scenario{
			ID:   fmt.Sprintf("scenario-%05d", len(scenarios)),
			Risk: risk,
		})

		// odometer increment over the per-asset index vector
		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(perAsset[pos]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return scenarios
		}
	}
}
