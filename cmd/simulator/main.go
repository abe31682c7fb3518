package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"liqsim/internal/bootstrap"
	"liqsim/internal/config"
	"liqsim/internal/core"
	"liqsim/internal/liquidator"
	"liqsim/internal/orchestrator"
	"liqsim/internal/simulation"
	"liqsim/internal/sink"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (empty uses built-in defaults)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("simulator version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		fmt.Print(app.Cfg.String())
		os.Exit(0)
	}

	app.Logger.Info("Starting simulator",
		"version", version,
		"assets", len(app.Cfg.Assets),
		"workers", app.Cfg.Workers(),
		"sink", app.Cfg.Sink.Type,
	)

	if err := app.Run(&simRunner{app: app}); err != nil {
		os.Exit(1)
	}
}

// simRunner adapts one simulation batch to the bootstrap lifecycle.
type simRunner struct {
	app *bootstrap.App
}

func (r *simRunner) Run(ctx context.Context) error {
	cfg := r.app.Cfg
	logger := r.app.Logger

	feed, err := feedSpec(cfg.Feed)
	if err != nil {
		return err
	}
	assets := make([]core.Asset, 0, len(cfg.Assets))
	for _, a := range cfg.Assets {
		assets = append(assets, a.Asset())
	}
	prices, gas, err := simulation.GenerateFeed(feed, assets)
	if err != nil {
		return err
	}

	resultSink, err := buildSink(cfg.Sink)
	if err != nil {
		return err
	}
	defer func() {
		if err := resultSink.Close(); err != nil {
			logger.Warn("Sink close failed", "error", err)
		}
	}()

	opts, err := buildOptions(cfg)
	if err != nil {
		return err
	}

	orch := orchestrator.New(opts, prices, gas, resultSink, logger)
	results, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	// Throttle per-scenario lines so large grids don't flood the log.
	limiter := rate.NewLimiter(rate.Limit(20), 20)
	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		if limiter.Allow() {
			logger.Info("Scenario finished",
				"scenario_id", res.ScenarioID,
				"run_id", res.RunID,
				"elapsed", res.Elapsed.String(),
			)
		}
	}
	logger.Info("Simulation batch complete", "scenarios", len(results), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
	}
	return nil
}

func feedSpec(fc config.FeedConfig) (simulation.FeedSpec, error) {
	startPrices := make(map[string]decimal.Decimal, len(fc.StartPrices))
	for symbol, raw := range fc.StartPrices {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return simulation.FeedSpec{}, fmt.Errorf("feed start price for %s: %w", symbol, err)
		}
		startPrices[symbol] = p
	}
	gasPrice, err := decimal.NewFromString(fc.GasPrice)
	if err != nil {
		return simulation.FeedSpec{}, fmt.Errorf("feed gas price: %w", err)
	}
	return simulation.FeedSpec{
		Steps:           fc.Steps,
		IntervalSeconds: fc.IntervalSeconds,
		StartTimestamp:  fc.StartTimestamp,
		DriftPerStep:    fc.DriftPerStep,
		StartPrices:     startPrices,
		GasPrice:        gasPrice,
	}, nil
}

func buildSink(sc config.SinkConfig) (core.IResultSink, error) {
	switch sc.Type {
	case "sqlite":
		return sink.NewSQLiteSink(sc.Path)
	default:
		return sink.NewMemorySink(), nil
	}
}

func buildOptions(cfg *config.Config) (orchestrator.Options, error) {
	grids := make([]orchestrator.AssetGrid, 0, len(cfg.Assets))
	template := make(map[core.Asset]decimal.Decimal, len(cfg.Assets))
	for _, ac := range cfg.Assets {
		asset := ac.Asset()

		amount, err := decimal.NewFromString(ac.Amount)
		if err != nil {
			return orchestrator.Options{}, fmt.Errorf("asset %s amount: %w", ac.Symbol, err)
		}
		template[asset] = amount

		r := orchestrator.ParamRange{
			CollateralFactors:  make([]decimal.Decimal, 0, len(ac.CollateralFactors)),
			LiquidationFactors: make([]decimal.Decimal, 0, len(ac.LiquidationFactors)),
			Exposures:          make([]decimal.Decimal, 0, len(ac.Exposures)),
		}
		for _, f := range ac.CollateralFactors {
			r.CollateralFactors = append(r.CollateralFactors, decimal.NewFromFloat(f))
		}
		for _, f := range ac.LiquidationFactors {
			r.LiquidationFactors = append(r.LiquidationFactors, decimal.NewFromFloat(f))
		}
		for _, raw := range ac.Exposures {
			e, err := decimal.NewFromString(raw)
			if err != nil {
				return orchestrator.Options{}, fmt.Errorf("asset %s exposure: %w", ac.Symbol, err)
			}
			r.Exposures = append(r.Exposures, e)
		}
		grids = append(grids, orchestrator.AssetGrid{Asset: asset, Range: r})
	}

	sim := cfg.Simulation
	return orchestrator.Options{
		Liquidation:         cfg.LiquidationConfig(),
		Grids:               grids,
		Numeraire:           cfg.Numeraire.Asset(),
		AccountsPerScenario: sim.AccountsPerScenario,
		LiquidatorsPerRun:   sim.LiquidatorsPerRun,
		CollateralTemplate:  template,
		DebtModel:           orchestrator.NewDebtModel(orchestrator.DebtModelKind(sim.DebtModel), decimal.NewFromFloat(sim.DebtRatio)),
		Gas:                 liquidatorGas(sim.Gas),
		TradingFee:          decimal.NewFromFloat(sim.TradingFee),
		Slippage:            simulation.NoSlippage{},
		Workers:             cfg.Workers(),
	}, nil
}

func liquidatorGas(gc config.GasUnitsConfig) liquidator.GasConfig {
	return liquidator.GasConfig{
		InitUnits:        decimal.NewFromInt(gc.InitUnits),
		BidUnits:         decimal.NewFromInt(gc.BidUnits),
		TerminationUnits: decimal.NewFromInt(gc.TerminationUnits),
	}
}
