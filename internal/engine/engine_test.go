package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liqsim/internal/core"
	apperrors "liqsim/pkg/errors"
	"liqsim/pkg/logging"
)

var (
	weth = core.Asset{Symbol: "WETH", Decimals: 18}
	usdc = core.Asset{Symbol: "USDC", Decimals: 6}
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type stubClock struct {
	now    int64
	prices map[core.Asset]decimal.Decimal
	gas    decimal.Decimal
}

func (c *stubClock) Now() int64 { return c.now }

func (c *stubClock) Price(asset core.Asset) (decimal.Decimal, error) {
	p, ok := c.prices[asset]
	if !ok {
		return decimal.Zero, apperrors.ErrPriceNotPopulated
	}
	return p, nil
}

func (c *stubClock) GasPrice() (decimal.Decimal, error) { return c.gas, nil }

func testConfig() core.LiquidationConfig {
	return core.LiquidationConfig{
		Base:                 d("999807477651317446"),
		MaxAuctionDuration:   14400,
		StartPriceMultiplier: decimal.NewFromInt(15000),
		MinPriceMultiplier:   decimal.NewFromInt(6000),
		MinimumMargin:        d("2500000"),
		Pool: core.PoolRewardConfig{
			InitiationRewardWeight:  d("0.01"),
			TerminationRewardWeight: d("0.005"),
			MaxInitiationReward:     d("100000000"),
			MaxTerminationReward:    d("50000000"),
			PenaltyWeight:           d("0.05"),
		},
	}
}

func testAccount(debt string) *core.MarginAccount {
	return &core.MarginAccount{
		Address:   "acct-1",
		Debt:      d(debt),
		Numeraire: usdc,
		Collateral: []core.CollateralPosition{
			{Asset: weth, Metadata: &core.AssetMetadata{
				Amount:        d("1000000000000000000"),
				CurrentAmount: d("1000000000000000000"),
				Share:         decimal.Zero,
			}},
		},
	}
}

func testEngine(t *testing.T, debt, wethPrice string) (*LiquidationEngine, *stubClock) {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	clock := &stubClock{
		now:    1690000000,
		prices: map[core.Asset]decimal.Decimal{weth: d(wethPrice)},
		gas:    d("30000"),
	}
	risk := map[core.Asset]core.AssetRiskMetadata{
		weth: {CollateralFactor: d("0.5"), LiquidationFactor: d("0.9"), Exposure: d("2000000000000000000")},
	}
	eng := NewLiquidationEngine(testConfig(), clock, risk, []*core.MarginAccount{testAccount(debt)}, logger)
	return eng, clock
}

func TestLiquidate_OpensExactlyOneAuction(t *testing.T) {
	// 1 WETH at 1500 USDC, liquidation value 1350 <= debt 1400
	eng, _ := testEngine(t, "1400000000", "1500000000")

	require.NoError(t, eng.Liquidate("acct-1"))
	assert.Len(t, eng.OpenAuctions(), 1)

	info := eng.Auction("acct-1")
	require.NotNil(t, info)
	assert.Equal(t, "1400000000", info.StartDebt.String())
	assert.Equal(t, int64(1690014400), info.CutoffTimestamp)
	assert.Equal(t, "1000000", info.Assets[weth].Share.String())

	err := eng.Liquidate("acct-1")
	assert.ErrorIs(t, err, apperrors.ErrAuctionAlreadyExists)
}

func TestLiquidate_HealthyAccountRejected(t *testing.T) {
	// liquidation value 1800 > debt 1000
	eng, _ := testEngine(t, "1000000000", "2000000000")

	err := eng.Liquidate("acct-1")
	assert.ErrorIs(t, err, apperrors.ErrAccountNotLiquidatable)
	assert.Empty(t, eng.OpenAuctions())
}

func TestLiquidate_UnknownAccount(t *testing.T) {
	eng, _ := testEngine(t, "1000000000", "1500000000")
	err := eng.Liquidate("nobody")
	assert.ErrorIs(t, err, apperrors.ErrUnknownAccount)
}

func TestDryRunBid_IsPure(t *testing.T) {
	eng, _ := testEngine(t, "1400000000", "1500000000")
	require.NoError(t, eng.Liquidate("acct-1"))

	res, err := eng.DryRunBid("acct-1", map[core.Asset]decimal.Decimal{weth: d("1000000000000000000")})
	require.NoError(t, err)
	assert.True(t, res.OK)
	// full share at t=0 pays the 1.5x premium on start debt 1400
	assert.Equal(t, "2100000000", res.Price.String())

	acct := eng.Accounts()[0]
	assert.Equal(t, "1400000000", acct.Debt.String())
	assert.Equal(t, "1000000000000000000", acct.Collateral[0].Metadata.CurrentAmount.String())
}

func TestDryRunBid_InsufficientLiquidity(t *testing.T) {
	eng, _ := testEngine(t, "1400000000", "1500000000")
	require.NoError(t, eng.Liquidate("acct-1"))

	res, err := eng.DryRunBid("acct-1", map[core.Asset]decimal.Decimal{weth: d("2000000000000000000")})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.False(t, res.Price.IsZero(), "price quote still returned on liquidity failure")
}

func TestBid_NoAuction(t *testing.T) {
	eng, _ := testEngine(t, "1400000000", "1500000000")
	_, err := eng.Bid("acct-1", map[core.Asset]decimal.Decimal{weth: d("1")})
	assert.ErrorIs(t, err, apperrors.ErrAuctionDoesNotExist)
}

func TestBid_LiquidityFailureMutatesNothing(t *testing.T) {
	eng, _ := testEngine(t, "1400000000", "1500000000")
	require.NoError(t, eng.Liquidate("acct-1"))

	res, err := eng.Bid("acct-1", map[core.Asset]decimal.Decimal{weth: d("2000000000000000000")})
	require.NoError(t, err)
	assert.False(t, res.OK)

	acct := eng.Accounts()[0]
	assert.Equal(t, "1400000000", acct.Debt.String())
	assert.Equal(t, "1000000000000000000", acct.Collateral[0].Metadata.CurrentAmount.String())
	assert.Len(t, eng.OpenAuctions(), 1)
}

func TestBid_FullDrainWithSurplus(t *testing.T) {
	eng, _ := testEngine(t, "1400000000", "1500000000")
	require.NoError(t, eng.Liquidate("acct-1"))

	res, err := eng.Bid("acct-1", map[core.Asset]decimal.Decimal{weth: d("1000000000000000000")})
	require.NoError(t, err)
	require.True(t, res.OK)
	// price 2100 covers debt 1400, surplus 700 goes to the protocol
	assert.Equal(t, "2100000000", res.Price.String())

	acct := eng.Accounts()[0]
	assert.True(t, acct.Debt.IsZero())
	assert.True(t, acct.Collateral[0].Metadata.CurrentAmount.IsZero())
	assert.True(t, eng.IsFullyLiquidated("acct-1"))
	assert.True(t, eng.AllAccountsLiquidated())

	// closed auctions stay visible until the knockoff queue drains
	assert.Len(t, eng.OpenAuctions(), 1)
	eng.SafeKnockoff()
	assert.Empty(t, eng.OpenAuctions())
	assert.Nil(t, eng.Auction("acct-1"))

	m, err := eng.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 0, m.OpenAuctions)
	assert.Equal(t, 1, m.LiquidatedAccounts)
	assert.Equal(t, "700000000", m.ProtocolRevenue.String())
	assert.Equal(t, "700000000", m.RevenuePerAsset[weth].String())
	assert.True(t, m.BadDebt.IsZero())
}

func TestBid_PartialKeepsAuctionOpenWhenUnderwater(t *testing.T) {
	// collateral worth 900 < debt 1000: a small bid cannot restore margin
	eng, _ := testEngine(t, "1000000000", "900000000")
	require.NoError(t, eng.Liquidate("acct-1"))

	res, err := eng.Bid("acct-1", map[core.Asset]decimal.Decimal{weth: d("100000000000000000")})
	require.NoError(t, err)
	require.True(t, res.OK)
	// 10% share at t=0: 1000 * 0.1 * 1.5 = 150
	assert.Equal(t, "150000000", res.Price.String())

	acct := eng.Accounts()[0]
	assert.Equal(t, "850000000", acct.Debt.String())
	assert.Equal(t, "900000000000000000", acct.Collateral[0].Metadata.CurrentAmount.String())

	eng.SafeKnockoff()
	assert.Len(t, eng.OpenAuctions(), 1, "underwater auction stays open")
	assert.False(t, eng.IsFullyLiquidated("acct-1"))
}

func TestBid_BadDebtClose(t *testing.T) {
	eng, clock := testEngine(t, "1000000000", "900000000")
	require.NoError(t, eng.Liquidate("acct-1"))

	// deep into the decay the full-drain price sits below the debt
	clock.now += 14400
	res, err := eng.Bid("acct-1", map[core.Asset]decimal.Decimal{weth: d("1000000000000000000")})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.True(t, res.Price.LessThan(d("1000000000")), "price %s must undershoot the debt", res.Price)

	acct := eng.Accounts()[0]
	remaining := d("1000000000").Sub(res.Price)
	assert.Equal(t, remaining.String(), acct.Debt.String())
	assert.True(t, eng.IsFullyLiquidated("acct-1"))

	m, err := eng.Metrics()
	require.NoError(t, err)
	assert.Equal(t, remaining.String(), m.BadDebt.String())
	assert.True(t, m.ProtocolRevenue.IsZero())
}

func TestBid_TimeoutCloseAllowsReentry(t *testing.T) {
	eng, clock := testEngine(t, "1000000000", "900000000")
	require.NoError(t, eng.Liquidate("acct-1"))

	// past the cutoff a partial bid retires the auction without draining it
	clock.now += 14401
	res, err := eng.Bid("acct-1", map[core.Asset]decimal.Decimal{weth: d("100000000000000000")})
	require.NoError(t, err)
	require.True(t, res.OK)

	eng.SafeKnockoff()
	assert.Empty(t, eng.OpenAuctions())
	assert.False(t, eng.IsFullyLiquidated("acct-1"))

	// still liquidatable with the remaining collateral, so a new auction opens
	liquidatable, err := eng.IsAccountLiquidatable("acct-1")
	require.NoError(t, err)
	require.True(t, liquidatable)
	require.NoError(t, eng.Liquidate("acct-1"))

	info := eng.Auction("acct-1")
	require.NotNil(t, info)
	assert.Equal(t, "900000000000000000", info.Assets[weth].Amount.String(), "start quantity re-snapshots on re-entry")
	assert.Equal(t, eng.Accounts()[0].Debt.String(), info.StartDebt.String())

	// the knocked-off auction must not leave a stale opening-order entry,
	// or scanners would visit the re-entered auction twice per step
	assert.Equal(t, []string{"acct-1"}, eng.OpenAuctions())
}

func TestSafeKnockoff_Idempotent(t *testing.T) {
	eng, _ := testEngine(t, "1400000000", "1500000000")
	require.NoError(t, eng.Liquidate("acct-1"))

	_, err := eng.Bid("acct-1", map[core.Asset]decimal.Decimal{weth: d("1000000000000000000")})
	require.NoError(t, err)

	eng.SafeKnockoff()
	eng.SafeKnockoff()
	assert.Empty(t, eng.OpenAuctions())
}

func TestMetrics_InsolvencyOfOpenAuctions(t *testing.T) {
	eng, _ := testEngine(t, "1000000000", "900000000")
	require.NoError(t, eng.Liquidate("acct-1"))

	m, err := eng.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 1, m.OpenAuctions)
	assert.Equal(t, "900000000", m.InsolvencyPerAsset[weth].String())
	assert.Equal(t, "900000000", m.InsolvencyByAccount["acct-1"].String())
}

func TestMetrics_PoolBookkeeping(t *testing.T) {
	eng, _ := testEngine(t, "1400000000", "1500000000")
	require.NoError(t, eng.Liquidate("acct-1"))

	res, err := eng.Bid("acct-1", map[core.Asset]decimal.Decimal{weth: d("1000000000000000000")})
	require.NoError(t, err)
	require.True(t, res.OK)

	m, err := eng.Metrics()
	require.NoError(t, err)
	// initiation 1% of 1400 truncated, termination 0.5%, penalty 5% of the price
	assert.Equal(t, "14000000", m.InitiationRewards.String())
	assert.Equal(t, "7000000", m.TerminationRewards.String())
	assert.Equal(t, "105000000", m.Penalties.String())
}
