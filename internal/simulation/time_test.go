package simulation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liqsim/internal/core"
	apperrors "liqsim/pkg/errors"
)

var (
	weth = core.Asset{Symbol: "WETH", Decimals: 18}
	wbtc = core.Asset{Symbol: "WBTC", Decimals: 8}
	usdc = core.Asset{Symbol: "USDC", Decimals: 6}
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestSimulationTime_Lookups(t *testing.T) {
	st := NewSimulationTime(
		map[core.Asset]map[int64]decimal.Decimal{
			weth: {100: d("1800000000"), 200: d("1750000000")},
		},
		map[int64]decimal.Decimal{100: d("30000"), 200: d("31000")},
	)

	st.SetNow(100)
	assert.Equal(t, int64(100), st.Now())

	price, err := st.Price(weth)
	require.NoError(t, err)
	assert.Equal(t, "1800000000", price.String())

	gas, err := st.GasPrice()
	require.NoError(t, err)
	assert.Equal(t, "30000", gas.String())

	st.SetNow(200)
	price, err = st.Price(weth)
	require.NoError(t, err)
	assert.Equal(t, "1750000000", price.String())
}

func TestSimulationTime_MissingData(t *testing.T) {
	st := NewSimulationTime(
		map[core.Asset]map[int64]decimal.Decimal{
			weth: {100: d("1800000000")},
		},
		map[int64]decimal.Decimal{100: d("30000")},
	)

	st.SetNow(100)
	_, err := st.Price(wbtc)
	assert.ErrorIs(t, err, apperrors.ErrPriceNotPopulated)

	st.SetNow(150)
	_, err = st.Price(weth)
	assert.ErrorIs(t, err, apperrors.ErrPriceNotPopulated)
	_, err = st.GasPrice()
	assert.ErrorIs(t, err, apperrors.ErrPriceNotPopulated)
}

func TestSimulationTime_TimestampsSortedUnion(t *testing.T) {
	st := NewSimulationTime(
		map[core.Asset]map[int64]decimal.Decimal{
			weth: {300: d("1"), 100: d("1")},
			wbtc: {200: d("1"), 300: d("1")},
		},
		nil,
	)

	assert.Equal(t, []int64{100, 200, 300}, st.Timestamps())
}

func TestGenerateFeed(t *testing.T) {
	spec := FeedSpec{
		Steps:           3,
		IntervalSeconds: 300,
		StartTimestamp:  1000,
		DriftPerStep:    -0.5,
		StartPrices:     map[string]decimal.Decimal{"WETH": d("1000000000")},
		GasPrice:        d("30000"),
	}

	prices, gas, err := GenerateFeed(spec, []core.Asset{weth})
	require.NoError(t, err)
	require.Len(t, prices[weth], 3)
	require.Len(t, gas, 3)

	assert.Equal(t, "1000000000", prices[weth][1000].String())
	assert.Equal(t, "500000000", prices[weth][1300].String())
	assert.Equal(t, "250000000", prices[weth][1600].String())
	assert.Equal(t, "30000", gas[1600].String())
}

func TestGenerateFeed_MissingStartPrice(t *testing.T) {
	spec := FeedSpec{
		Steps:           1,
		IntervalSeconds: 300,
		StartPrices:     map[string]decimal.Decimal{},
		GasPrice:        d("30000"),
	}
	_, _, err := GenerateFeed(spec, []core.Asset{weth})
	assert.Error(t, err)
}

func TestGenerateFeed_RejectsDegenerateGrid(t *testing.T) {
	_, _, err := GenerateFeed(FeedSpec{Steps: 0, IntervalSeconds: 300}, nil)
	assert.Error(t, err)
	_, _, err = GenerateFeed(FeedSpec{Steps: 5, IntervalSeconds: 0}, nil)
	assert.Error(t, err)
}

func TestTableSlippage(t *testing.T) {
	key := PairKey{Sell: "WETH", Buy: "USDC"}
	model := NewTableSlippage(
		map[PairKey]decimal.Decimal{key: d("1000000000000000000000")}, // 1000 WETH depth
		map[PairKey]decimal.Decimal{key: d("0.01")},
	)

	// 100 WETH into 1000 depth: a tenth of the base impact
	impact := model.Impact(weth, usdc, d("100000000000000000000"))
	assert.Equal(t, "0.001", impact.String())

	// unknown pair costs nothing
	impact = model.Impact(wbtc, usdc, d("100000000"))
	assert.True(t, impact.IsZero())
}

func TestTableSlippage_CappedAtFullValue(t *testing.T) {
	key := PairKey{Sell: "WETH", Buy: "USDC"}
	model := NewTableSlippage(
		map[PairKey]decimal.Decimal{key: d("1")},
		map[PairKey]decimal.Decimal{key: d("1")},
	)

	impact := model.Impact(weth, usdc, d("50"))
	assert.Equal(t, "1", impact.String())
}

func TestNoSlippage(t *testing.T) {
	assert.True(t, NoSlippage{}.Impact(weth, usdc, d("1000")).IsZero())
}
