package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"liqsim/internal/core"
	"liqsim/internal/engine"
	"liqsim/internal/liquidator"
	"liqsim/internal/simulation"
	"liqsim/pkg/concurrency"
	"liqsim/pkg/telemetry"
)

// Options carries everything one simulation batch needs besides the feeds.
type Options struct {
	Liquidation         core.LiquidationConfig
	Grids               []AssetGrid
	Numeraire           core.Asset
	AccountsPerScenario int
	LiquidatorsPerRun   int
	CollateralTemplate  map[core.Asset]decimal.Decimal // initial amount per asset
	DebtModel           core.IDebtModel
	Gas                 liquidator.GasConfig
	TradingFee          decimal.Decimal
	Slippage            core.ISlippageModel
	Workers             int
}

// ScenarioResult is the per-scenario outcome emitted after a worker finishes.
type ScenarioResult struct {
	ScenarioID string
	RunID      string
	Err        error
	Elapsed    time.Duration
}

// Orchestrator expands the parameter grid and schedules one pipeline per
// scenario on a worker pool. Workers share nothing but the read-only feed
// maps and the concurrent-safe result sink.
type Orchestrator struct {
	opts   Options
	prices map[core.Asset]map[int64]decimal.Decimal
	gas    map[int64]decimal.Decimal
	sink   core.IResultSink
	logger core.ILogger
}

// New builds an orchestrator over pre-materialized price and gas series.
func New(opts Options, prices map[core.Asset]map[int64]decimal.Decimal, gas map[int64]decimal.Decimal, sink core.IResultSink, logger core.ILogger) *Orchestrator {
	if opts.AccountsPerScenario <= 0 {
		opts.AccountsPerScenario = 1
	}
	if opts.LiquidatorsPerRun <= 0 {
		opts.LiquidatorsPerRun = 1
	}
	if opts.Slippage == nil {
		opts.Slippage = simulation.NoSlippage{}
	}
	return &Orchestrator{
		opts:   opts,
		prices: prices,
		gas:    gas,
		sink:   sink,
		logger: logger.WithField("component", "orchestrator"),
	}
}

// Run expands the grid and executes every scenario. A failed scenario never
// affects its siblings; the error travels in its ScenarioResult.
func (o *Orchestrator) Run(ctx context.Context) ([]ScenarioResult, error) {
	scenarios := ExpandScenarios(o.opts.Grids, o.opts.Liquidation.MinPriceMultiplier, o.opts.Liquidation.StartPriceMultiplier)
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("parameter grid produced no admissible scenarios")
	}
	o.logger.Info("expanded parameter grid", "scenarios", len(scenarios), "workers", o.opts.Workers)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "scenarios",
		MaxWorkers:  o.opts.Workers,
		MaxCapacity: len(scenarios),
	}, o.logger)

	resultCh := make(chan ScenarioResult, len(scenarios))
	for _, sc := range scenarios {
		scenario := sc
		if err := pool.Submit(func() {
			resultCh <- o.runScenario(ctx, scenario)
		}); err != nil {
			resultCh <- ScenarioResult{ScenarioID: scenario.ID, Err: err}
		}
	}
	pool.StopAndWait()
	close(resultCh)

	metrics := telemetry.GetGlobalMetrics()
	results := make([]ScenarioResult, 0, len(scenarios))
	var failed int
	for res := range resultCh {
		results = append(results, res)
		if res.Err != nil {
			failed++
			metrics.AddScenariosFailed(1)
			o.logger.Error("scenario failed", "scenario_id", res.ScenarioID, "run_id", res.RunID, "error", res.Err)
		} else {
			metrics.AddScenariosCompleted(1)
		}
	}
	o.logger.Info("simulation batch finished", "scenarios", len(results), "failed", failed)
	return results, nil
}

// runScenario owns one full pipeline lifecycle. Every piece of mutable state
// is constructed here, so the worker shares nothing with its siblings.
func (o *Orchestrator) runScenario(ctx context.Context, scenario Scenario) ScenarioResult {
	started := time.Now()
	runID := uuid.NewString()

	tm := telemetry.GetGlobalMetrics()
	tm.ScenarioStarted()
	defer func() {
		tm.ScenarioFinished()
		tm.RecordScenarioDuration(time.Since(started).Seconds())
	}()

	simTime := simulation.NewSimulationTime(o.prices, o.gas)
	timestamps := simTime.Timestamps()
	if len(timestamps) == 0 {
		return ScenarioResult{ScenarioID: scenario.ID, RunID: runID, Err: fmt.Errorf("empty price feed")}
	}
	simTime.SetNow(timestamps[0])

	accounts, err := o.materializeAccounts(scenario, simTime)
	if err != nil {
		return ScenarioResult{ScenarioID: scenario.ID, RunID: runID, Err: err, Elapsed: time.Since(started)}
	}

	eng := engine.NewLiquidationEngine(o.opts.Liquidation, simTime, scenario.Risk, accounts, o.logger)
	liquidators := make([]*liquidator.Liquidator, 0, o.opts.LiquidatorsPerRun)
	for i := 0; i < o.opts.LiquidatorsPerRun; i++ {
		name := fmt.Sprintf("liquidator-%d", i+1)
		liquidators = append(liquidators, liquidator.New(name, eng, simTime, o.opts.Slippage, o.opts.Gas, o.opts.TradingFee, o.logger))
	}

	params := core.RunParams{
		RunID:      runID,
		ScenarioID: scenario.ID,
		Accounts:   len(accounts),
		Risk:       make(map[string]core.AssetRiskMetadata, len(scenario.Risk)),
		Numeraire:  o.opts.Numeraire.Symbol,
	}
	for asset, risk := range scenario.Risk {
		params.Risk[asset.Symbol] = risk
	}

	pipeline := simulation.NewPipeline(params, simTime, eng, liquidators, o.sink, o.logger)
	err = pipeline.EventLoop(ctx)
	return ScenarioResult{ScenarioID: scenario.ID, RunID: runID, Err: err, Elapsed: time.Since(started)}
}

// materializeAccounts replicates the scenario into N margin accounts. Every
// account gets a fresh copy of the collateral template, capped per asset at
// the scenario exposure, and its debt from the pluggable debt model.
func (o *Orchestrator) materializeAccounts(scenario Scenario, clock core.IMarketClock) ([]*core.MarginAccount, error) {
	var assets []core.Asset
	for _, g := range o.opts.Grids {
		assets = append(assets, g.Asset)
	}

	prices := make(map[core.Asset]decimal.Decimal, len(assets))
	for _, asset := range assets {
		p, err := clock.Price(asset)
		if err != nil {
			return nil, fmt.Errorf("initial prices: %w", err)
		}
		prices[asset] = p
	}

	accounts := make([]*core.MarginAccount, 0, o.opts.AccountsPerScenario)
	for i := 0; i < o.opts.AccountsPerScenario; i++ {
		collateral := make([]core.CollateralPosition, 0, len(assets))
		exposureValue := decimal.Zero
		for _, asset := range assets {
			amount := o.opts.CollateralTemplate[asset]
			if limit := scenario.Risk[asset].Exposure; limit.IsPositive() && amount.GreaterThan(limit) {
				amount = limit
			}
			collateral = append(collateral, core.CollateralPosition{
				Asset:    asset,
				Metadata: &core.AssetMetadata{Amount: amount, CurrentAmount: amount, Share: decimal.Zero},
			})
			exposureValue = exposureValue.Add(core.ValueOf(amount, prices[asset], asset.Decimals))
		}

		debt, _ := o.opts.DebtModel.Compute(exposureValue, prices, collateral, o.opts.Numeraire)
		accounts = append(accounts, &core.MarginAccount{
			Address:    fmt.Sprintf("%s-acct-%03d", scenario.ID, i),
			Debt:       debt,
			Numeraire:  o.opts.Numeraire,
			Collateral: collateral,
		})
	}
	return accounts, nil
}
