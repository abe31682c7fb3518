package simulation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"liqsim/internal/core"
	"liqsim/internal/engine"
	"liqsim/internal/liquidator"
	"liqsim/pkg/telemetry"
)

// Pipeline runs one scenario to completion: it advances the simulated clock
// through the price feed's timestamps, lets every liquidator scan and bid
// each step, and records per-step activity and metrics. Execution is
// single-threaded and strictly ordered by timestamp.
type Pipeline struct {
	runID       string
	scenarioID  string
	time        *SimulationTime
	engine      *engine.LiquidationEngine
	liquidators []*liquidator.Liquidator
	sink        core.IResultSink
	params      core.RunParams
	logger      core.ILogger
}

// NewPipeline wires one scenario. The engine must already be seeded with the
// scenario's accounts.
func NewPipeline(params core.RunParams, simTime *SimulationTime, eng *engine.LiquidationEngine, liquidators []*liquidator.Liquidator, sink core.IResultSink, logger core.ILogger) *Pipeline {
	return &Pipeline{
		runID:       params.RunID,
		scenarioID:  params.ScenarioID,
		time:        simTime,
		engine:      eng,
		liquidators: liquidators,
		sink:        sink,
		params:      params,
		logger:      logger.WithField("component", "pipeline").WithField("run_id", params.RunID),
	}
}

// EventLoop replays the scenario. It stops early once every account is fully
// liquidated. Cancellation is checked between timesteps only; each step's
// engine calls are atomic, so no mid-step rollback is needed.
func (p *Pipeline) EventLoop(ctx context.Context) error {
	if err := p.sink.WriteRunParams(ctx, p.params); err != nil {
		return fmt.Errorf("write run params: %w", err)
	}

	tm := telemetry.GetGlobalMetrics()
	timestamps := p.time.Timestamps()
	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.time.SetNow(ts)

		step := core.StepRecord{RunID: p.runID, ScenarioID: p.scenarioID, Timestamp: ts}
		for _, liq := range p.liquidators {
			for _, account := range p.engine.Accounts() {
				opened, err := liq.ScanAccount(account)
				if err != nil {
					return fmt.Errorf("scan account %s: %w", account.Address, err)
				}
				if opened {
					step.AuctionsOpened++
				}
			}
			bids, err := liq.ScanAuctions()
			if err != nil {
				return fmt.Errorf("scan auctions: %w", err)
			}
			step.Bids = append(step.Bids, bids...)
		}

		metrics, err := p.engine.Metrics()
		if err != nil {
			return fmt.Errorf("metrics at %d: %w", ts, err)
		}
		if step.AuctionsOpened > 0 {
			tm.AddAuctionsOpened(p.scenarioID, int64(step.AuctionsOpened))
		}
		if len(step.Bids) > 0 {
			tm.AddBidsSettled(p.scenarioID, int64(len(step.Bids)))
		}
		if err := p.sink.WriteStepRecord(ctx, step); err != nil {
			return fmt.Errorf("write step record: %w", err)
		}
		if err := p.sink.WriteStepMetrics(ctx, metricsRecord(p.runID, p.scenarioID, ts, metrics)); err != nil {
			return fmt.Errorf("write step metrics: %w", err)
		}

		if p.engine.AllAccountsLiquidated() {
			p.logger.Debug("all accounts liquidated, stopping early", "timestamp", ts)
			break
		}
	}

	if final, err := p.engine.Metrics(); err != nil {
		p.logger.Warn("final metrics read failed", "error", err)
	} else if bd, _ := final.BadDebt.Float64(); bd > 0 {
		tm.AddBadDebt(bd)
	}
	for _, liq := range p.liquidators {
		if profit, _ := liq.Ledger().Profit.Float64(); profit != 0 {
			tm.AddLiquidatorProfit(profit)
		}
	}
	return nil
}

func metricsRecord(runID, scenarioID string, ts int64, m engine.EngineMetrics) core.StepMetrics {
	rec := core.StepMetrics{
		RunID:               runID,
		ScenarioID:          scenarioID,
		Timestamp:           ts,
		OpenAuctions:        m.OpenAuctions,
		LiquidatedAccounts:  m.LiquidatedAccounts,
		ProtocolRevenue:     m.ProtocolRevenue,
		RevenuePerAsset:     symbolKeyed(m.RevenuePerAsset),
		InsolvencyPerAsset:  symbolKeyed(m.InsolvencyPerAsset),
		InsolvencyByAccount: m.InsolvencyByAccount,
		BadDebt:             m.BadDebt,
	}
	return rec
}

func symbolKeyed(in map[core.Asset]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for asset, v := range in {
		out[asset.Symbol] = v
	}
	return out
}
