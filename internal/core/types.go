package core

import (
	"github.com/shopspring/decimal"
)

// Asset identifies one collateral or numeraire token. Identity is the full
// five-tuple minus the pricing strategy tag; two listings of the same symbol
// on different chains are distinct assets. Immutable once constructed.
type Asset struct {
	Symbol          string
	Name            string
	Decimals        int32
	Address         string
	Chain           string
	PricingStrategy string
}

// AssetRiskMetadata holds the per-scenario risk parameters for one asset.
// Factors are fractions in [0,1]; Exposure is a fixed-point cap in asset units.
type AssetRiskMetadata struct {
	CollateralFactor  decimal.Decimal
	LiquidationFactor decimal.Decimal
	Exposure          decimal.Decimal
}

// AssetMetadata tracks one asset's quantities inside an auction.
// Share is scaled x1e6 and assigned once when the auction opens; all shares
// within one auction sum to 1e6 within rounding tolerance.
type AssetMetadata struct {
	Amount        decimal.Decimal // quantity at auction start
	CurrentAmount decimal.Decimal // remaining quantity, never increases while open
	Share         decimal.Decimal // fraction of total auctioned value, x1e6
}

// CollateralPosition pairs an asset with its mutable auction metadata.
// The account and its open auction reference the same metadata, so a
// settled bid is visible through both.
type CollateralPosition struct {
	Asset    Asset
	Metadata *AssetMetadata
}

// MarginAccount is one simulated borrower. Debt is fixed-point in numeraire
// units, never negative, and only decreases via bid settlement. Accounts are
// created once per scenario and never deleted; fully liquidated accounts are
// tracked on the engine side.
type MarginAccount struct {
	Address    string
	Debt       decimal.Decimal
	Numeraire  Asset
	Collateral []CollateralPosition
}

// Position returns the collateral position for the given asset, or nil.
func (a *MarginAccount) Position(asset Asset) *CollateralPosition {
	for i := range a.Collateral {
		if a.Collateral[i].Asset == asset {
			return &a.Collateral[i]
		}
	}
	return nil
}

// AuctionInformation is the immutable snapshot plus mutable per-asset state
// of one open Dutch auction. Created by Liquidate, removed only through the
// deferred knockoff queue. Exactly one per account at any time.
type AuctionInformation struct {
	StartDebt            decimal.Decimal // debt snapshot when the auction opened
	Base                 decimal.Decimal // decay-rate constant, x1e18, < 1e18
	StartTime            int64
	CutoffTimestamp      int64           // StartTime + maximum auction duration
	StartPriceMultiplier decimal.Decimal // x1e4
	MinPriceMultiplier   decimal.Decimal // x1e4
	MinimumMargin        decimal.Decimal
	Creditor             string // account address
	Numeraire            Asset

	Assets     map[Asset]*AssetMetadata
	AssetOrder []Asset // deterministic iteration order
}

// PoolRewardConfig holds the lending-pool reward parameters. These feed
// off-chain revenue bookkeeping only, never auction pricing.
type PoolRewardConfig struct {
	InitiationRewardWeight  decimal.Decimal // fraction of start debt
	TerminationRewardWeight decimal.Decimal // fraction of start debt
	MaxInitiationReward     decimal.Decimal // cap, numeraire units
	MaxTerminationReward    decimal.Decimal // cap, numeraire units
	PenaltyWeight           decimal.Decimal // fraction of each settled price
}

// LiquidationConfig parameterizes the auction lifecycle for one scenario.
type LiquidationConfig struct {
	Base                 decimal.Decimal // x1e18
	MaxAuctionDuration   int64           // seconds
	StartPriceMultiplier decimal.Decimal // x1e4
	MinPriceMultiplier   decimal.Decimal // x1e4
	MinimumMargin        decimal.Decimal // numeraire units
	Pool                 PoolRewardConfig
}

// BidResult is the outcome of a bid or dry run. OK is false when the
// requested amounts exceed remaining liquidity; Price is quoted either way
// so callers can size down without special-casing control flow.
type BidResult struct {
	OK    bool
	Price decimal.Decimal
}
