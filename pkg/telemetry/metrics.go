package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricScenariosCompletedTotal = "liqsim_scenarios_completed_total"
	MetricScenariosFailedTotal    = "liqsim_scenarios_failed_total"
	MetricAuctionsOpenedTotal     = "liqsim_auctions_opened_total"
	MetricBidsSettledTotal        = "liqsim_bids_settled_total"
	MetricBadDebtTotal            = "liqsim_bad_debt_total"
	MetricLiquidatorProfitTotal   = "liqsim_liquidator_profit_total"
	MetricScenarioDuration        = "liqsim_scenario_duration_seconds"
	MetricScenariosInFlight       = "liqsim_scenarios_in_flight"
)

// MetricsHolder holds initialized instruments. Helper methods are nil-safe
// so components can record unconditionally even when telemetry is disabled.
type MetricsHolder struct {
	ScenariosCompleted metric.Int64Counter
	ScenariosFailed    metric.Int64Counter
	AuctionsOpened     metric.Int64Counter
	BidsSettled        metric.Int64Counter
	BadDebt            metric.Float64Counter
	LiquidatorProfit   metric.Float64Counter
	ScenarioDuration   metric.Float64Histogram
	ScenariosInFlight  metric.Int64ObservableGauge

	mu       sync.RWMutex
	inFlight int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.ScenariosCompleted, err = meter.Int64Counter(MetricScenariosCompletedTotal, metric.WithDescription("Scenario pipelines run to completion"))
	if err != nil {
		return err
	}
	m.ScenariosFailed, err = meter.Int64Counter(MetricScenariosFailedTotal, metric.WithDescription("Scenario pipelines terminated by an error"))
	if err != nil {
		return err
	}
	m.AuctionsOpened, err = meter.Int64Counter(MetricAuctionsOpenedTotal, metric.WithDescription("Liquidation auctions opened across all scenarios"))
	if err != nil {
		return err
	}
	m.BidsSettled, err = meter.Int64Counter(MetricBidsSettledTotal, metric.WithDescription("Aggregate bids settled across all scenarios"))
	if err != nil {
		return err
	}
	m.BadDebt, err = meter.Float64Counter(MetricBadDebtTotal, metric.WithDescription("Debt remaining after collateral exhaustion, numeraire units"))
	if err != nil {
		return err
	}
	m.LiquidatorProfit, err = meter.Float64Counter(MetricLiquidatorProfitTotal, metric.WithDescription("Realized liquidator profit net of gas, numeraire units"))
	if err != nil {
		return err
	}
	m.ScenarioDuration, err = meter.Float64Histogram(MetricScenarioDuration, metric.WithDescription("Wall time of one scenario run"), metric.WithUnit("s"))
	if err != nil {
		return err
	}

	m.ScenariosInFlight, err = meter.Int64ObservableGauge(MetricScenariosInFlight, metric.WithDescription("Scenario pipelines currently executing"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.inFlight)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers, nil-safe when instruments were never initialized

func (m *MetricsHolder) AddScenariosCompleted(n int64) {
	if m.ScenariosCompleted != nil {
		m.ScenariosCompleted.Add(context.Background(), n)
	}
}

func (m *MetricsHolder) AddScenariosFailed(n int64) {
	if m.ScenariosFailed != nil {
		m.ScenariosFailed.Add(context.Background(), n)
	}
}

func (m *MetricsHolder) AddAuctionsOpened(scenarioID string, n int64) {
	if m.AuctionsOpened != nil {
		m.AuctionsOpened.Add(context.Background(), n, metric.WithAttributes(attribute.String("scenario", scenarioID)))
	}
}

func (m *MetricsHolder) AddBidsSettled(scenarioID string, n int64) {
	if m.BidsSettled != nil {
		m.BidsSettled.Add(context.Background(), n, metric.WithAttributes(attribute.String("scenario", scenarioID)))
	}
}

func (m *MetricsHolder) AddBadDebt(v float64) {
	if m.BadDebt != nil && v > 0 {
		m.BadDebt.Add(context.Background(), v)
	}
}

func (m *MetricsHolder) AddLiquidatorProfit(v float64) {
	if m.LiquidatorProfit != nil {
		m.LiquidatorProfit.Add(context.Background(), v)
	}
}

func (m *MetricsHolder) RecordScenarioDuration(seconds float64) {
	if m.ScenarioDuration != nil {
		m.ScenarioDuration.Record(context.Background(), seconds)
	}
}

func (m *MetricsHolder) ScenarioStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight++
}

func (m *MetricsHolder) ScenarioFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
}
