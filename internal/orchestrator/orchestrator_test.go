package orchestrator

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liqsim/internal/core"
	"liqsim/internal/liquidator"
	"liqsim/internal/simulation"
	"liqsim/internal/sink"
	"liqsim/pkg/logging"
)

func testOptions() Options {
	return Options{
		Liquidation: core.LiquidationConfig{
			Base:                 d("999807477651317446"),
			MaxAuctionDuration:   14400,
			StartPriceMultiplier: decimal.NewFromInt(15000),
			MinPriceMultiplier:   decimal.NewFromInt(6000),
			MinimumMargin:        d("2500000"),
		},
		Grids: []AssetGrid{
			{Asset: weth, Range: ParamRange{
				CollateralFactors:  []decimal.Decimal{d("0.5")},
				LiquidationFactors: []decimal.Decimal{d("0.9")},
				Exposures:          []decimal.Decimal{d("2000000000000000000")},
			}},
		},
		Numeraire:           usdc,
		AccountsPerScenario: 2,
		LiquidatorsPerRun:   1,
		CollateralTemplate:  map[core.Asset]decimal.Decimal{weth: d("1000000000000000000")},
		DebtModel:           FixedRatioDebtModel{Ratio: d("0.95")},
		Gas:                 liquidator.GasConfig{InitUnits: decimal.Zero, BidUnits: decimal.Zero, TerminationUnits: decimal.Zero},
		TradingFee:          decimal.Zero,
		Slippage:            simulation.NoSlippage{},
		Workers:             2,
	}
}

func testFeed(t *testing.T) (map[core.Asset]map[int64]decimal.Decimal, map[int64]decimal.Decimal) {
	t.Helper()
	prices, gas, err := simulation.GenerateFeed(simulation.FeedSpec{
		Steps:           48,
		IntervalSeconds: 300,
		StartTimestamp:  1690000000,
		DriftPerStep:    -0.004,
		StartPrices:     map[string]decimal.Decimal{"WETH": d("1800000000")},
		GasPrice:        decimal.Zero,
	}, []core.Asset{weth})
	require.NoError(t, err)
	return prices, gas
}

func TestOrchestrator_RunsEveryScenario(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	prices, gas := testFeed(t)
	memSink := sink.NewMemorySink()
	orch := New(testOptions(), prices, gas, memSink, logger)

	results, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "scenario-00000", results[0].ScenarioID)
	assert.NotEmpty(t, results[0].RunID)

	runs := memSink.RunParams()
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Accounts)
	assert.Equal(t, "USDC", runs[0].Numeraire)
	assert.Contains(t, runs[0].Risk, "WETH")

	records := memSink.StepRecords()
	require.NotEmpty(t, records)

	metrics := memSink.StepMetrics()
	require.NotEmpty(t, metrics)
	last := metrics[len(metrics)-1]
	assert.Equal(t, 2, last.LiquidatedAccounts, "both accounts fully liquidated")
}

func TestOrchestrator_EmptyGridFails(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	opts := testOptions()
	opts.Grids[0].Range.CollateralFactors = []decimal.Decimal{d("0.95")} // above every lf

	prices, gas := testFeed(t)
	_, err = New(opts, prices, gas, sink.NewMemorySink(), logger).Run(context.Background())
	assert.Error(t, err)
}

func TestOrchestrator_ScenarioFailureIsIsolated(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	// two scenarios share one feed that is missing the gas series, so both
	// fail inside their own pipelines without aborting the batch
	opts := testOptions()
	opts.Grids[0].Range.CollateralFactors = []decimal.Decimal{d("0.5"), d("0.6")}

	prices, _ := testFeed(t)
	results, err := New(opts, prices, nil, sink.NewMemorySink(), logger).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Error(t, res.Err)
	}
}

func TestMaterializeAccounts_ExposureCapsTemplate(t *testing.T) {
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	opts := testOptions()
	// template 1 WETH, but the scenario exposure only admits half of it
	opts.Grids[0].Range.Exposures = []decimal.Decimal{d("500000000000000000")}

	prices, gas := testFeed(t)
	memSink := sink.NewMemorySink()
	results, err := New(opts, prices, gas, memSink, logger).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	// first-step insolvency reflects the capped 0.5 WETH at 1800 USDC
	metrics := memSink.StepMetrics()
	require.NotEmpty(t, metrics)
	first := metrics[0]
	assert.Equal(t, "1800000000", first.InsolvencyPerAsset["WETH"].String())
}
