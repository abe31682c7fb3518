// Package bootstrap wires configuration, logging and telemetry into a
// runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"liqsim/internal/config"
	"liqsim/internal/core"
	"liqsim/internal/metrics"
	"liqsim/pkg/logging"
	"liqsim/pkg/telemetry"
)

// App holds the core dependencies shared by every runner.
type App struct {
	Cfg    *config.Config
	Logger core.ILogger

	tel        *telemetry.Telemetry
	metricsSrv *metrics.Server
}

// NewApp loads configuration and initializes logging and telemetry.
// An empty configPath selects the built-in defaults.
func NewApp(configPath string) (*App, error) {
	var cfg *config.Config
	if configPath == "" {
		cfg = config.DefaultConfig()
	} else {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg = loaded
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logging.SetGlobalLogger(logger)

	app := &App{Cfg: cfg, Logger: logger}

	if cfg.Telemetry.EnableMetrics {
		tel, err := telemetry.Setup("liqsim")
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		app.tel = tel
		app.metricsSrv = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
	}

	return app, nil
}

const shutdownTimeout = 5 * time.Second

// Runner is a component with a blocking Run that honours ctx cancellation.
type Runner interface {
	Run(ctx context.Context) error
}

// Run starts all runners under an error group and blocks until they finish
// or a termination signal arrives.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.metricsSrv != nil {
		a.metricsSrv.Start()
	}

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("Starting application")

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	err := g.Wait()
	a.shutdown()
	if err != nil && err != context.Canceled {
		a.Logger.Error("Application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("Application shut down gracefully")
	return nil
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.metricsSrv != nil {
		if err := a.metricsSrv.Stop(ctx); err != nil {
			a.Logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}
	if a.tel != nil {
		if err := a.tel.Shutdown(ctx); err != nil {
			a.Logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}
}
