// Package liquidator implements the bidding strategy: scan accounts for
// liquidatability, then buy discounted collateral wherever the recoverable
// value beats the decayed bid price net of slippage, fees and gas.
package liquidator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"liqsim/internal/core"
	"liqsim/internal/engine"
	apperrors "liqsim/pkg/errors"
)

// GasConfig holds the fixed gas-unit estimates of the cost model. Costs are
// an approximation feeding the liquidator's PnL only; they never touch
// settlement amounts.
type GasConfig struct {
	InitUnits        decimal.Decimal // per asset, charged at the auction's first observed step
	BidUnits         decimal.Decimal // one aggregate bid per auction per step
	TerminationUnits decimal.Decimal // charged when the bid drains every asset
}

// Ledger accumulates a liquidator's realized outcome across a run.
type Ledger struct {
	Profit   decimal.Decimal
	GasSpent decimal.Decimal
	Acquired map[core.Asset]decimal.Decimal
	Bids     int
}

// Liquidator drives one bidding actor against one engine.
type Liquidator struct {
	name       string
	engine     *engine.LiquidationEngine
	clock      core.IMarketClock
	slippage   core.ISlippageModel
	gas        GasConfig
	tradingFee decimal.Decimal // fraction of market value

	ledger Ledger
	logger core.ILogger
}

// New creates a liquidator bound to an engine and clock.
func New(name string, eng *engine.LiquidationEngine, clock core.IMarketClock, slippage core.ISlippageModel, gas GasConfig, tradingFee decimal.Decimal, logger core.ILogger) *Liquidator {
	return &Liquidator{
		name:       name,
		engine:     eng,
		clock:      clock,
		slippage:   slippage,
		gas:        gas,
		tradingFee: tradingFee,
		ledger:     Ledger{Profit: decimal.Zero, GasSpent: decimal.Zero, Acquired: make(map[core.Asset]decimal.Decimal)},
		logger:     logger.WithField("component", "liquidator").WithField("liquidator", name),
	}
}

// Name returns the liquidator's identifier used in step records.
func (l *Liquidator) Name() string { return l.name }

// Ledger returns the accumulated PnL bookkeeping.
func (l *Liquidator) Ledger() Ledger { return l.ledger }

// ScanAccount opens an auction over the account if it is liquidatable and
// not already fully drained. A racing liquidator that lost the open reports
// false without error; everything else propagates.
func (l *Liquidator) ScanAccount(account *core.MarginAccount) (bool, error) {
	if l.engine.IsFullyLiquidated(account.Address) {
		return false, nil
	}
	liquidatable, err := l.engine.IsAccountLiquidatable(account.Address)
	if err != nil {
		return false, err
	}
	if !liquidatable {
		return false, nil
	}
	if err := l.engine.Liquidate(account.Address); err != nil {
		if errors.Is(err, apperrors.ErrAuctionAlreadyExists) {
			l.logger.Debug("auction already open", "account", account.Address)
			return false, nil
		}
		return false, err
	}
	l.logger.Debug("opened auction", "account", account.Address)
	return true, nil
}

// ScanAuctions walks every open auction, assembles the profit-maximizing
// aggregate bid and submits it when profit net of gas is positive. Returns
// the bids submitted this step. Closed auctions are knocked off afterwards.
func (l *Liquidator) ScanAuctions() ([]core.BidEvent, error) {
	gasPrice, err := l.clock.GasPrice()
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()

	var events []core.BidEvent
	for _, address := range l.engine.OpenAuctions() {
		info := l.engine.Auction(address)
		event, submitted, err := l.bidOnAuction(address, info, gasPrice, now)
		if err != nil {
			return nil, err
		}
		if submitted {
			events = append(events, event)
		}
	}
	l.engine.SafeKnockoff()
	return events, nil
}

// bidOnAuction evaluates one auction. Each asset is screened with a
// full-amount dry run: it joins the aggregate bid only when its market value
// net of slippage, per-trade gas and trading fee exceeds its quoted price.
func (l *Liquidator) bidOnAuction(address string, info *core.AuctionInformation, gasPrice decimal.Decimal, now int64) (core.BidEvent, bool, error) {
	asked := make(map[core.Asset]decimal.Decimal)
	totalProfit := decimal.Zero
	perTradeGas := gasPrice.Mul(l.gas.BidUnits).Truncate(0)
	drains := true

	for _, asset := range info.AssetOrder {
		meta := info.Assets[asset]
		if meta.CurrentAmount.IsZero() {
			continue
		}

		dry, err := l.engine.DryRunBid(address, map[core.Asset]decimal.Decimal{asset: meta.CurrentAmount})
		if err != nil {
			return core.BidEvent{}, false, err
		}
		price, err := l.clock.Price(asset)
		if err != nil {
			return core.BidEvent{}, false, err
		}

		marketValue := core.ValueOf(meta.CurrentAmount, price, asset.Decimals)
		slippage := marketValue.Mul(l.slippage.Impact(asset, info.Numeraire, meta.CurrentAmount)).Truncate(0)
		fee := marketValue.Mul(l.tradingFee).Truncate(0)
		net := marketValue.Sub(slippage).Sub(perTradeGas).Sub(fee)

		if dry.OK && net.GreaterThan(dry.Price) {
			asked[asset] = meta.CurrentAmount
			totalProfit = totalProfit.Add(net.Sub(dry.Price))
		} else {
			drains = false
		}
	}
	if len(asked) == 0 {
		return core.BidEvent{}, false, nil
	}

	totalGas := perTradeGas
	if info.StartTime == now {
		initGas := gasPrice.Mul(l.gas.InitUnits).Mul(decimal.NewFromInt(int64(len(info.AssetOrder)))).Truncate(0)
		totalGas = totalGas.Add(initGas)
	}
	if drains {
		totalGas = totalGas.Add(gasPrice.Mul(l.gas.TerminationUnits).Truncate(0))
	}

	if !totalProfit.Sub(totalGas).IsPositive() {
		return core.BidEvent{}, false, nil
	}

	res, err := l.engine.Bid(address, asked)
	if err != nil {
		return core.BidEvent{}, false, err
	}
	if !res.OK {
		// liquidity was validated by the dry runs above
		l.logger.Warn("bid rejected despite dry-run validation", "account", address)
		return core.BidEvent{}, false, nil
	}

	share, err := l.askedShareOf(info, asked)
	if err != nil {
		return core.BidEvent{}, false, err
	}

	netProfit := totalProfit.Sub(totalGas)
	l.ledger.Profit = l.ledger.Profit.Add(netProfit)
	l.ledger.GasSpent = l.ledger.GasSpent.Add(totalGas)
	l.ledger.Bids++
	amounts := make(map[string]decimal.Decimal, len(asked))
	for asset, amount := range asked {
		l.ledger.Acquired[asset] = l.ledger.Acquired[asset].Add(amount)
		amounts[asset.Symbol] = amount
	}

	l.logger.Debug("bid settled", "account", address, "price", res.Price, "profit", netProfit)
	return core.BidEvent{
		Liquidator: l.name,
		Account:    address,
		Price:      res.Price,
		AskedShare: share,
		Amounts:    amounts,
		Profit:     netProfit,
		Gas:        totalGas,
	}, true, nil
}

// askedShareOf recomputes the aggregate share for the record. Amounts were
// already deducted, so the stored share snapshot is used, not a new quote.
func (l *Liquidator) askedShareOf(info *core.AuctionInformation, asked map[core.Asset]decimal.Decimal) (decimal.Decimal, error) {
	total := decimal.Zero
	for asset, amount := range asked {
		meta, ok := info.Assets[asset]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", apperrors.ErrUnknownAsset, asset.Symbol)
		}
		if meta.Amount.IsZero() {
			continue
		}
		total = total.Add(amount.Mul(meta.Share).Div(meta.Amount).Truncate(0))
	}
	return total, nil
}
