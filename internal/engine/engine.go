// Package engine owns the per-scenario auction and account state and
// enforces the auction lifecycle invariants.
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"liqsim/internal/auction"
	"liqsim/internal/core"
	apperrors "liqsim/pkg/errors"
)

// LiquidationEngine holds every margin account of one scenario together with
// the open auctions over them. One engine instance belongs to exactly one
// pipeline; none of its state is shared across scenarios, so no locking is
// needed.
type LiquidationEngine struct {
	cfg   core.LiquidationConfig
	clock core.IMarketClock
	risk  map[core.Asset]core.AssetRiskMetadata

	accounts     map[string]*core.MarginAccount
	accountOrder []string

	auctions      map[string]*core.AuctionInformation
	auctionOrder  []string
	auctionsToEnd []string

	allLiquidated map[string]struct{}

	protocolRevenue decimal.Decimal
	revenuePerAsset map[core.Asset]decimal.Decimal
	badDebt         decimal.Decimal

	// lending-pool reward bookkeeping, never part of auction pricing
	initiationRewards  decimal.Decimal
	terminationRewards decimal.Decimal
	penalties          decimal.Decimal

	logger core.ILogger
}

// NewLiquidationEngine builds an engine over the given accounts. The account
// slice order fixes the scan order for the whole run.
func NewLiquidationEngine(cfg core.LiquidationConfig, clock core.IMarketClock, risk map[core.Asset]core.AssetRiskMetadata, accounts []*core.MarginAccount, logger core.ILogger) *LiquidationEngine {
	e := &LiquidationEngine{
		cfg:                cfg,
		clock:              clock,
		risk:               risk,
		accounts:           make(map[string]*core.MarginAccount, len(accounts)),
		auctions:           make(map[string]*core.AuctionInformation),
		allLiquidated:      make(map[string]struct{}),
		protocolRevenue:    decimal.Zero,
		revenuePerAsset:    make(map[core.Asset]decimal.Decimal),
		badDebt:            decimal.Zero,
		initiationRewards:  decimal.Zero,
		terminationRewards: decimal.Zero,
		penalties:          decimal.Zero,
		logger:             logger.WithField("component", "liquidation_engine"),
	}
	for _, acct := range accounts {
		e.accounts[acct.Address] = acct
		e.accountOrder = append(e.accountOrder, acct.Address)
	}
	return e
}

// Accounts returns every margin account in scan order.
func (e *LiquidationEngine) Accounts() []*core.MarginAccount {
	out := make([]*core.MarginAccount, 0, len(e.accountOrder))
	for _, addr := range e.accountOrder {
		out = append(out, e.accounts[addr])
	}
	return out
}

// OpenAuctions returns the addresses with an open auction in opening order.
// Entries already queued for knockoff are still included until SafeKnockoff
// runs; removal never happens mid-scan.
func (e *LiquidationEngine) OpenAuctions() []string {
	out := make([]string, 0, len(e.auctionOrder))
	for _, addr := range e.auctionOrder {
		if _, ok := e.auctions[addr]; ok {
			out = append(out, addr)
		}
	}
	return out
}

// Auction returns the open auction for the address, or nil.
func (e *LiquidationEngine) Auction(address string) *core.AuctionInformation {
	return e.auctions[address]
}

// IsFullyLiquidated reports whether the account's collateral has reached zero.
func (e *LiquidationEngine) IsFullyLiquidated(address string) bool {
	_, ok := e.allLiquidated[address]
	return ok
}

// AllAccountsLiquidated reports whether every account has been fully drained,
// the pipeline's early-termination condition.
func (e *LiquidationEngine) AllAccountsLiquidated() bool {
	return len(e.allLiquidated) == len(e.accounts)
}

// IsAccountLiquidatable evaluates the liquidation condition at current
// prices without opening an auction.
func (e *LiquidationEngine) IsAccountLiquidatable(address string) (bool, error) {
	acct, ok := e.accounts[address]
	if !ok {
		return false, fmt.Errorf("%w: %s", apperrors.ErrUnknownAccount, address)
	}
	prices, err := e.collateralPrices(acct.Collateral)
	if err != nil {
		return false, err
	}
	return auction.IsLiquidatable(acct, prices, e.risk), nil
}

// Liquidate opens a Dutch auction over the account's collateral. It snapshots
// the debt, fixes the cutoff timestamp and assigns per-asset shares. The debt
// itself is untouched until bids settle.
func (e *LiquidationEngine) Liquidate(address string) error {
	acct, ok := e.accounts[address]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownAccount, address)
	}
	if _, exists := e.auctions[address]; exists {
		return fmt.Errorf("%w: %s", apperrors.ErrAuctionAlreadyExists, address)
	}

	prices, err := e.collateralPrices(acct.Collateral)
	if err != nil {
		return err
	}
	if !auction.IsLiquidatable(acct, prices, e.risk) {
		return fmt.Errorf("%w: %s", apperrors.ErrAccountNotLiquidatable, address)
	}
	if err := auction.PrepareAssetsInMarginAccount(acct.Collateral, prices); err != nil {
		return err
	}
	// re-snapshot start quantities; a timed-out account can re-enter with
	// less collateral than its previous auction started with
	for _, pos := range acct.Collateral {
		pos.Metadata.Amount = pos.Metadata.CurrentAmount
	}

	now := e.clock.Now()
	info := &core.AuctionInformation{
		StartDebt:            acct.Debt,
		Base:                 e.cfg.Base,
		StartTime:            now,
		CutoffTimestamp:      now + e.cfg.MaxAuctionDuration,
		StartPriceMultiplier: e.cfg.StartPriceMultiplier,
		MinPriceMultiplier:   e.cfg.MinPriceMultiplier,
		MinimumMargin:        e.cfg.MinimumMargin,
		Creditor:             address,
		Numeraire:            acct.Numeraire,
		Assets:               make(map[core.Asset]*core.AssetMetadata, len(acct.Collateral)),
	}
	for _, pos := range acct.Collateral {
		info.Assets[pos.Asset] = pos.Metadata
		info.AssetOrder = append(info.AssetOrder, pos.Asset)
	}
	e.auctions[address] = info
	e.auctionOrder = append(e.auctionOrder, address)

	e.initiationRewards = e.initiationRewards.Add(cappedReward(acct.Debt, e.cfg.Pool.InitiationRewardWeight, e.cfg.Pool.MaxInitiationReward))

	e.logger.Debug("auction opened", "account", address, "start_debt", acct.Debt, "cutoff", info.CutoffTimestamp)
	return nil
}

// DryRunBid quotes a bid without mutating anything. The returned BidResult
// carries OK=false when any asked amount exceeds the remaining liquidity.
func (e *LiquidationEngine) DryRunBid(address string, asked map[core.Asset]decimal.Decimal) (core.BidResult, error) {
	info, ok := e.auctions[address]
	if !ok {
		return core.BidResult{}, fmt.Errorf("%w: %s", apperrors.ErrAuctionDoesNotExist, address)
	}
	return e.quote(info, asked)
}

// Bid purchases the asked amounts at the current decayed price and settles
// the proceeds against the account's debt. All validation happens before any
// mutation, so a rejected bid leaves the engine untouched.
func (e *LiquidationEngine) Bid(address string, asked map[core.Asset]decimal.Decimal) (core.BidResult, error) {
	info, ok := e.auctions[address]
	if !ok {
		return core.BidResult{}, fmt.Errorf("%w: %s", apperrors.ErrAuctionDoesNotExist, address)
	}
	res, err := e.quote(info, asked)
	if err != nil || !res.OK {
		return res, err
	}

	for asset, amount := range asked {
		meta := info.Assets[asset]
		meta.CurrentAmount = meta.CurrentAmount.Sub(amount)
	}

	acct := e.accounts[info.Creditor]
	price := res.Price
	if acct.Debt.LessThanOrEqual(price) {
		surplus := price.Sub(acct.Debt)
		e.settleSurplus(info, asked, surplus)
		acct.Debt = decimal.Zero
	} else {
		acct.Debt = acct.Debt.Sub(price)
	}
	e.penalties = e.penalties.Add(price.Mul(e.cfg.Pool.PenaltyWeight).Truncate(0))

	if err := e.closeIfSettled(info, acct); err != nil {
		return core.BidResult{}, err
	}
	return res, nil
}

// quote computes share and price for the asked amounts and validates
// liquidity, touching no state.
func (e *LiquidationEngine) quote(info *core.AuctionInformation, asked map[core.Asset]decimal.Decimal) (core.BidResult, error) {
	share, err := auction.CalculateAskedShare(info, asked)
	if err != nil {
		return core.BidResult{}, err
	}
	price, err := auction.CalculateBidPrice(info, share, e.clock.Now())
	if err != nil {
		return core.BidResult{}, err
	}
	for asset, amount := range asked {
		if amount.GreaterThan(info.Assets[asset].CurrentAmount) {
			return core.BidResult{OK: false, Price: price}, nil
		}
	}
	return core.BidResult{OK: true, Price: price}, nil
}

// settleSurplus accrues a fully-repaid bid's surplus to protocol revenue,
// split across the traded assets in proportion to their share contribution.
func (e *LiquidationEngine) settleSurplus(info *core.AuctionInformation, asked map[core.Asset]decimal.Decimal, surplus decimal.Decimal) {
	e.protocolRevenue = e.protocolRevenue.Add(surplus)
	if surplus.IsZero() {
		return
	}
	contributions := make(map[core.Asset]decimal.Decimal, len(asked))
	totalShare := decimal.Zero
	for asset, amount := range asked {
		meta := info.Assets[asset]
		if meta.Amount.IsZero() {
			continue
		}
		c := amount.Mul(meta.Share).Div(meta.Amount).Truncate(0)
		contributions[asset] = c
		totalShare = totalShare.Add(c)
	}
	if totalShare.IsZero() {
		return
	}
	for asset, c := range contributions {
		part := surplus.Mul(c).Div(totalShare).Truncate(0)
		e.revenuePerAsset[asset] = e.revenuePerAsset[asset].Add(part)
	}
}

// closeIfSettled applies the post-settlement lifecycle rules: happy close
// when collateral covers debt plus margin buffer or the debt is fully
// repaid, bad-debt close when collateral is exhausted, timeout close past
// the cutoff. Closes are only queued; removal happens in SafeKnockoff.
func (e *LiquidationEngine) closeIfSettled(info *core.AuctionInformation, acct *core.MarginAccount) error {
	prices, err := e.collateralPrices(acct.Collateral)
	if err != nil {
		return err
	}
	collateralValue := decimal.Zero
	drained := true
	for _, pos := range acct.Collateral {
		collateralValue = collateralValue.Add(core.ValueOf(pos.Metadata.CurrentAmount, prices[pos.Asset], pos.Asset.Decimals))
		if pos.Metadata.CurrentAmount.IsPositive() {
			drained = false
		}
	}
	usedMargin := acct.Debt.Add(info.MinimumMargin)

	switch {
	case collateralValue.GreaterThanOrEqual(usedMargin) || usedMargin.Equal(info.MinimumMargin):
		// debt repaid or buffer restored
		e.queueKnockoff(info.Creditor)
		e.terminationRewards = e.terminationRewards.Add(cappedReward(info.StartDebt, e.cfg.Pool.TerminationRewardWeight, e.cfg.Pool.MaxTerminationReward))
		if drained {
			e.allLiquidated[info.Creditor] = struct{}{}
		}
		e.logger.Debug("auction closed", "account", info.Creditor, "reason", "happy", "drained", drained)
	case drained:
		// collateral exhausted with debt remaining
		e.queueKnockoff(info.Creditor)
		e.allLiquidated[info.Creditor] = struct{}{}
		e.badDebt = e.badDebt.Add(acct.Debt)
		e.logger.Debug("auction closed", "account", info.Creditor, "reason", "bad_debt", "remaining_debt", acct.Debt)
	case e.clock.Now() > info.CutoffTimestamp:
		// the account may re-enter liquidation later
		e.queueKnockoff(info.Creditor)
		e.logger.Debug("auction closed", "account", info.Creditor, "reason", "timeout")
	}
	return nil
}

func (e *LiquidationEngine) queueKnockoff(address string) {
	for _, queued := range e.auctionsToEnd {
		if queued == address {
			return
		}
	}
	e.auctionsToEnd = append(e.auctionsToEnd, address)
}

// SafeKnockoff drains the pending-removal queue, deleting each queued
// auction and its opening-order entry. A timed-out account re-enters
// liquidation with a fresh auctionOrder slot, so stale entries would list
// the address twice. Idempotent; must run before any metrics read.
func (e *LiquidationEngine) SafeKnockoff() {
	for _, address := range e.auctionsToEnd {
		delete(e.auctions, address)
		for i, addr := range e.auctionOrder {
			if addr == address {
				e.auctionOrder = append(e.auctionOrder[:i], e.auctionOrder[i+1:]...)
				break
			}
		}
	}
	e.auctionsToEnd = e.auctionsToEnd[:0]
}

func (e *LiquidationEngine) collateralPrices(positions []core.CollateralPosition) (map[core.Asset]decimal.Decimal, error) {
	prices := make(map[core.Asset]decimal.Decimal, len(positions))
	for _, pos := range positions {
		p, err := e.clock.Price(pos.Asset)
		if err != nil {
			return nil, err
		}
		prices[pos.Asset] = p
	}
	return prices, nil
}

func cappedReward(base, weight, cap decimal.Decimal) decimal.Decimal {
	reward := base.Mul(weight).Truncate(0)
	if cap.IsPositive() && reward.GreaterThan(cap) {
		return cap
	}
	return reward
}
