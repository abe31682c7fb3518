// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"liqsim/internal/core"
)

// Config represents the complete configuration structure
type Config struct {
	Simulation  SimulationConfig  `yaml:"simulation"`
	Assets      []AssetConfig     `yaml:"assets"`
	Numeraire   AssetConfig       `yaml:"numeraire"`
	Feed        FeedConfig        `yaml:"feed"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Sink        SinkConfig        `yaml:"sink"`
	System      SystemConfig      `yaml:"system"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// SimulationConfig parameterizes the auction lifecycle and the liquidator
// cost model. Fixed-point values larger than float precision are strings.
type SimulationConfig struct {
	AccountsPerScenario  int     `yaml:"accounts_per_scenario"`
	LiquidatorsPerRun    int     `yaml:"liquidators_per_run"`
	MaxAuctionDuration   int64   `yaml:"max_auction_duration"` // seconds
	Base                 string  `yaml:"base"`                 // x1e18, must be < 1e18
	StartPriceMultiplier int64   `yaml:"start_price_multiplier"` // x1e4
	MinPriceMultiplier   int64   `yaml:"min_price_multiplier"`   // x1e4
	MinimumMargin        string  `yaml:"minimum_margin"` // numeraire fixed-point
	TradingFee           float64 `yaml:"trading_fee"`    // fraction
	DebtModel            string  `yaml:"debt_model"`     // fixed_ratio | max_exposure
	DebtRatio            float64 `yaml:"debt_ratio"`

	Gas  GasUnitsConfig   `yaml:"gas"`
	Pool PoolRewardConfig `yaml:"pool"`
}

// GasUnitsConfig holds the fixed gas-unit estimates of the cost model.
type GasUnitsConfig struct {
	InitUnits        int64 `yaml:"init_units"`
	BidUnits         int64 `yaml:"bid_units"`
	TerminationUnits int64 `yaml:"termination_units"`
}

// PoolRewardConfig mirrors the lending-pool reward parameters.
type PoolRewardConfig struct {
	InitiationRewardWeight  float64 `yaml:"initiation_reward_weight"`
	TerminationRewardWeight float64 `yaml:"termination_reward_weight"`
	MaxInitiationReward     string  `yaml:"max_initiation_reward"`
	MaxTerminationReward    string  `yaml:"max_termination_reward"`
	PenaltyWeight           float64 `yaml:"penalty_weight"`
}

// AssetConfig describes one asset plus its grid ranges and collateral
// template amount. Factor ranges are fractions; exposures and amounts are
// fixed-point strings in asset units.
type AssetConfig struct {
	Symbol          string `yaml:"symbol"`
	Name            string `yaml:"name"`
	Decimals        int32  `yaml:"decimals"`
	Address         string `yaml:"address"`
	Chain           string `yaml:"chain"`
	PricingStrategy string `yaml:"pricing_strategy"`

	Amount             string    `yaml:"amount"`
	CollateralFactors  []float64 `yaml:"collateral_factors"`
	LiquidationFactors []float64 `yaml:"liquidation_factors"`
	Exposures          []string  `yaml:"exposures"`
}

// FeedConfig parameterizes the deterministic demo feed generator used by the
// CLI. Real deployments inject externally materialized series instead.
type FeedConfig struct {
	Steps           int               `yaml:"steps"`
	IntervalSeconds int64             `yaml:"interval_seconds"`
	StartTimestamp  int64             `yaml:"start_timestamp"`
	DriftPerStep    float64           `yaml:"drift_per_step"` // multiplicative, e.g. -0.005
	StartPrices     map[string]string `yaml:"start_prices"`   // symbol -> numeraire fixed-point
	GasPrice        string            `yaml:"gas_price"`      // constant, numeraire fixed-point
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	Workers int `yaml:"workers"` // 0 = available CPU cores
}

// SinkConfig selects the result store.
type SinkConfig struct {
	Type string `yaml:"type"` // memory | sqlite
	Path string `yaml:"path"` // sqlite only
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := os.Expand(string(data), os.Getenv)

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateSimulation(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateAssets(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateFeed(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystem(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSink(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateSimulation() error {
	s := c.Simulation
	if s.AccountsPerScenario <= 0 {
		return ValidationError{Field: "simulation.accounts_per_scenario", Value: s.AccountsPerScenario, Message: "must be positive"}
	}
	if s.MaxAuctionDuration <= 0 {
		return ValidationError{Field: "simulation.max_auction_duration", Value: s.MaxAuctionDuration, Message: "must be positive"}
	}
	base, err := decimal.NewFromString(s.Base)
	if err != nil {
		return ValidationError{Field: "simulation.base", Value: s.Base, Message: "must be a decimal integer"}
	}
	if base.GreaterThanOrEqual(core.Scale1e18) || !base.IsPositive() {
		return ValidationError{Field: "simulation.base", Value: s.Base, Message: "must be in (0, 1e18); the price must decay"}
	}
	if s.MinPriceMultiplier <= 0 || s.StartPriceMultiplier <= s.MinPriceMultiplier {
		return ValidationError{Field: "simulation.start_price_multiplier", Value: s.StartPriceMultiplier, Message: "must exceed min_price_multiplier, which must be positive"}
	}
	if _, err := decimal.NewFromString(s.MinimumMargin); err != nil {
		return ValidationError{Field: "simulation.minimum_margin", Value: s.MinimumMargin, Message: "must be a decimal integer"}
	}
	if s.TradingFee < 0 || s.TradingFee >= 1 {
		return ValidationError{Field: "simulation.trading_fee", Value: s.TradingFee, Message: "must be a fraction in [0, 1)"}
	}
	if s.DebtModel != "" && s.DebtModel != "fixed_ratio" && s.DebtModel != "max_exposure" {
		return ValidationError{Field: "simulation.debt_model", Value: s.DebtModel, Message: "must be one of: fixed_ratio, max_exposure"}
	}
	return nil
}

func (c *Config) validateAssets() error {
	if len(c.Assets) == 0 {
		return ValidationError{Field: "assets", Message: "at least one asset must be configured"}
	}
	for _, a := range c.Assets {
		if a.Symbol == "" {
			return ValidationError{Field: "assets.symbol", Message: "symbol is required"}
		}
		if a.Decimals < 0 || a.Decimals > 30 {
			return ValidationError{Field: fmt.Sprintf("assets.%s.decimals", a.Symbol), Value: a.Decimals, Message: "must be in [0, 30]"}
		}
		if _, err := decimal.NewFromString(a.Amount); err != nil {
			return ValidationError{Field: fmt.Sprintf("assets.%s.amount", a.Symbol), Value: a.Amount, Message: "must be a decimal integer"}
		}
		if len(a.CollateralFactors) == 0 || len(a.LiquidationFactors) == 0 || len(a.Exposures) == 0 {
			return ValidationError{Field: fmt.Sprintf("assets.%s", a.Symbol), Message: "collateral_factors, liquidation_factors and exposures must be non-empty"}
		}
		for _, f := range append(append([]float64{}, a.CollateralFactors...), a.LiquidationFactors...) {
			if f < 0 || f > 1 {
				return ValidationError{Field: fmt.Sprintf("assets.%s", a.Symbol), Value: f, Message: "factors must be fractions in [0, 1]"}
			}
		}
	}
	if c.Numeraire.Symbol == "" {
		return ValidationError{Field: "numeraire.symbol", Message: "numeraire is required"}
	}
	return nil
}

func (c *Config) validateFeed() error {
	if c.Feed.Steps <= 0 {
		return ValidationError{Field: "feed.steps", Value: c.Feed.Steps, Message: "must be positive"}
	}
	if c.Feed.IntervalSeconds <= 0 {
		return ValidationError{Field: "feed.interval_seconds", Value: c.Feed.IntervalSeconds, Message: "must be positive"}
	}
	for _, a := range c.Assets {
		if _, ok := c.Feed.StartPrices[a.Symbol]; !ok {
			return ValidationError{Field: "feed.start_prices", Value: a.Symbol, Message: "missing start price for configured asset"}
		}
	}
	if _, err := decimal.NewFromString(c.Feed.GasPrice); err != nil {
		return ValidationError{Field: "feed.gas_price", Value: c.Feed.GasPrice, Message: "must be a decimal integer"}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateSink() error {
	switch c.Sink.Type {
	case "", "memory":
		return nil
	case "sqlite":
		if c.Sink.Path == "" {
			return ValidationError{Field: "sink.path", Message: "path required for sqlite sink"}
		}
		return nil
	default:
		return ValidationError{Field: "sink.type", Value: c.Sink.Type, Message: "must be one of: memory, sqlite"}
	}
}

// Workers resolves the worker pool size, defaulting to the CPU count.
func (c *Config) Workers() int {
	if c.Concurrency.Workers > 0 {
		return c.Concurrency.Workers
	}
	return runtime.NumCPU()
}

// LiquidationConfig converts the validated simulation section into the
// engine's typed config. Call only after Validate.
func (c *Config) LiquidationConfig() core.LiquidationConfig {
	base, _ := decimal.NewFromString(c.Simulation.Base)
	minMargin, _ := decimal.NewFromString(c.Simulation.MinimumMargin)
	maxInit, _ := decimal.NewFromString(c.Simulation.Pool.MaxInitiationReward)
	maxTerm, _ := decimal.NewFromString(c.Simulation.Pool.MaxTerminationReward)
	return core.LiquidationConfig{
		Base:                 base,
		MaxAuctionDuration:   c.Simulation.MaxAuctionDuration,
		StartPriceMultiplier: decimal.NewFromInt(c.Simulation.StartPriceMultiplier),
		MinPriceMultiplier:   decimal.NewFromInt(c.Simulation.MinPriceMultiplier),
		MinimumMargin:        minMargin,
		Pool: core.PoolRewardConfig{
			InitiationRewardWeight:  decimal.NewFromFloat(c.Simulation.Pool.InitiationRewardWeight),
			TerminationRewardWeight: decimal.NewFromFloat(c.Simulation.Pool.TerminationRewardWeight),
			MaxInitiationReward:     maxInit,
			MaxTerminationReward:    maxTerm,
			PenaltyWeight:           decimal.NewFromFloat(c.Simulation.Pool.PenaltyWeight),
		},
	}
}

// Asset converts one asset section into the core identity type.
func (a AssetConfig) Asset() core.Asset {
	return core.Asset{
		Symbol:          a.Symbol,
		Name:            a.Name,
		Decimals:        a.Decimals,
		Address:         a.Address,
		Chain:           a.Chain,
		PricingStrategy: a.PricingStrategy,
	}
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			AccountsPerScenario:  2,
			LiquidatorsPerRun:    1,
			MaxAuctionDuration:   14400,
			Base:                 "999807477651317446",
			StartPriceMultiplier: 15000,
			MinPriceMultiplier:   6000,
			MinimumMargin:        "2500000",
			TradingFee:           0.0005,
			DebtModel:            "fixed_ratio",
			DebtRatio:            0.8,
			Gas: GasUnitsConfig{
				InitUnits:        150000,
				BidUnits:         250000,
				TerminationUnits: 100000,
			},
			Pool: PoolRewardConfig{
				InitiationRewardWeight:  0.01,
				TerminationRewardWeight: 0.005,
				MaxInitiationReward:     "100000000",
				MaxTerminationReward:    "50000000",
				PenaltyWeight:           0.05,
			},
		},
		Assets: []AssetConfig{
			{
				Symbol:             "WETH",
				Name:               "Wrapped Ether",
				Decimals:           18,
				Address:            "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
				Chain:              "ethereum",
				PricingStrategy:    "chainlink",
				Amount:             "1000000000000000000",
				CollateralFactors:  []float64{0.7, 0.8},
				LiquidationFactors: []float64{0.85, 0.9},
				Exposures:          []string{"2000000000000000000"},
			},
		},
		Numeraire: AssetConfig{
			Symbol:          "USDC",
			Name:            "USD Coin",
			Decimals:        6,
			Address:         "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			Chain:           "ethereum",
			PricingStrategy: "constant",
		},
		Feed: FeedConfig{
			Steps:           48,
			IntervalSeconds: 300,
			StartTimestamp:  1690000000,
			DriftPerStep:    -0.004,
			StartPrices:     map[string]string{"WETH": "1800000000"},
			GasPrice:        "30000",
		},
		Concurrency: ConcurrencyConfig{Workers: 0},
		Sink:        SinkConfig{Type: "memory"},
		System:      SystemConfig{LogLevel: "INFO"},
		Telemetry:   TelemetryConfig{MetricsPort: 9090, EnableMetrics: false},
	}
}
