package engine

import (
	"github.com/shopspring/decimal"

	"liqsim/internal/core"
)

// EngineMetrics is a consistent snapshot of the engine's aggregates at one
// timestamp. Insolvency is the numeraire value of the collateral still held
// by open auctions.
type EngineMetrics struct {
	OpenAuctions        int
	LiquidatedAccounts  int
	ProtocolRevenue     decimal.Decimal
	RevenuePerAsset     map[core.Asset]decimal.Decimal
	InsolvencyPerAsset  map[core.Asset]decimal.Decimal
	InsolvencyByAccount map[string]decimal.Decimal
	BadDebt             decimal.Decimal

	// lending-pool bookkeeping
	InitiationRewards  decimal.Decimal
	TerminationRewards decimal.Decimal
	Penalties          decimal.Decimal
}

// Metrics drains the knockoff queue and aggregates the remaining open
// auctions. Knocking off first keeps closed auctions out of the insolvency
// totals.
func (e *LiquidationEngine) Metrics() (EngineMetrics, error) {
	e.SafeKnockoff()

	m := EngineMetrics{
		OpenAuctions:        len(e.auctions),
		LiquidatedAccounts:  len(e.allLiquidated),
		ProtocolRevenue:     e.protocolRevenue,
		RevenuePerAsset:     make(map[core.Asset]decimal.Decimal, len(e.revenuePerAsset)),
		InsolvencyPerAsset:  make(map[core.Asset]decimal.Decimal),
		InsolvencyByAccount: make(map[string]decimal.Decimal, len(e.auctions)),
		BadDebt:             e.badDebt,
		InitiationRewards:   e.initiationRewards,
		TerminationRewards:  e.terminationRewards,
		Penalties:           e.penalties,
	}
	for asset, v := range e.revenuePerAsset {
		m.RevenuePerAsset[asset] = v
	}

	for _, address := range e.OpenAuctions() {
		info := e.auctions[address]
		accountTotal := decimal.Zero
		for _, asset := range info.AssetOrder {
			meta := info.Assets[asset]
			price, err := e.clock.Price(asset)
			if err != nil {
				return EngineMetrics{}, err
			}
			value := core.ValueOf(meta.CurrentAmount, price, asset.Decimals)
			accountTotal = accountTotal.Add(value)
			m.InsolvencyPerAsset[asset] = m.InsolvencyPerAsset[asset].Add(value)
		}
		m.InsolvencyByAccount[address] = accountTotal
	}
	return m, nil
}
