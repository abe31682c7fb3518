package core

import (
	"github.com/shopspring/decimal"
)

// RunParams is written once per pipeline run and identifies the scenario.
type RunParams struct {
	RunID      string                       `json:"run_id"`
	ScenarioID string                       `json:"scenario_id"`
	Accounts   int                          `json:"accounts"`
	Risk       map[string]AssetRiskMetadata `json:"risk"` // keyed by asset symbol
	Numeraire  string                       `json:"numeraire"`
}

// BidEvent describes one aggregate bid a liquidator submitted.
type BidEvent struct {
	Liquidator string                     `json:"liquidator"`
	Account    string                     `json:"account"`
	Price      decimal.Decimal            `json:"price"`
	AskedShare decimal.Decimal            `json:"asked_share"`
	Amounts    map[string]decimal.Decimal `json:"amounts"` // keyed by asset symbol
	Profit     decimal.Decimal            `json:"profit"`
	Gas        decimal.Decimal            `json:"gas"`
}

// StepRecord captures the bid and auction activity of one timestep.
type StepRecord struct {
	RunID          string     `json:"run_id"`
	ScenarioID     string     `json:"scenario_id"`
	Timestamp      int64      `json:"timestamp"`
	AuctionsOpened int        `json:"auctions_opened"`
	Bids           []BidEvent `json:"bids"`
}

// StepMetrics captures the engine aggregates of one timestep.
type StepMetrics struct {
	RunID               string                     `json:"run_id"`
	ScenarioID          string                     `json:"scenario_id"`
	Timestamp           int64                      `json:"timestamp"`
	OpenAuctions        int                        `json:"open_auctions"`
	LiquidatedAccounts  int                        `json:"liquidated_accounts"`
	ProtocolRevenue     decimal.Decimal            `json:"protocol_revenue"`
	RevenuePerAsset     map[string]decimal.Decimal `json:"revenue_per_asset"`
	InsolvencyPerAsset  map[string]decimal.Decimal `json:"insolvency_per_asset"`
	InsolvencyByAccount map[string]decimal.Decimal `json:"insolvency_by_account"`
	BadDebt             decimal.Decimal            `json:"bad_debt"`
}
