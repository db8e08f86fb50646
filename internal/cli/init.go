// Package cli provides the bootstrap shared by cmd/poen, cmd/poen-api and
// cmd/poen-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"poen/internal/backend"
	"poen/internal/bank"
	"poen/internal/bank/fixture"
	"poen/internal/config"
	plog "poen/internal/log"
	"poen/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads and validates the configuration.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger from the config and makes it the
// slog default.
func SetupLogger(cfg *config.Config, component string) *plog.Logger {
	logger := plog.New(plog.Config{
		Level:     plog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stderr,
	})
	plog.SetDefault(logger)
	return logger
}

// App wires the ledger, the bank provider and every service on top of them.
type App struct {
	Config   *config.Config
	Logger   *plog.Logger
	Ledger   backend.Ledger
	Provider bank.Provider

	Amounts    *services.Calculator
	Ingestor   *services.Ingestor
	Directory  *services.IBANDirectory
	Entities   *services.EntityService
	Payments   *services.PaymentService
	Categories *services.CategoryService
	Funders    *services.FunderService
	Exporter   *services.Exporter

	cleanup backend.CleanupFunc
}

// NewApp opens the configured backend and the fixture bank provider.
func NewApp(ctx context.Context, cfg *config.Config, logger *plog.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	app, err := Assemble(cfg, logger, result.Ledger, fixture.NewFromDir(cfg.BankFixtureDir))
	if err != nil {
		result.Close()
		return nil, err
	}
	app.cleanup = result.Cleanup
	return app, nil
}

// Option adjusts how Assemble builds the services.
type Option func(*services.IngestConfig)

// WithPacer replaces the pacer built for every project run.
func WithPacer(newPacer func() bank.Pacer) Option {
	return func(c *services.IngestConfig) { c.NewPacer = newPacer }
}

// Assemble builds the services over an already opened ledger and provider.
func Assemble(cfg *config.Config, logger *plog.Logger, l backend.Ledger, provider bank.Provider, opts ...Option) (*App, error) {
	policy, err := services.GetAmountPolicy(services.PolicyVersion(cfg.AmountPolicy))
	if err != nil {
		return nil, fmt.Errorf("amount policy: %w", err)
	}

	ingest := services.IngestConfig{
		PageSize:         cfg.ProviderPageSize,
		ProviderInterval: cfg.ProviderInterval,
	}
	for _, opt := range opts {
		opt(&ingest)
	}

	payments := services.NewPaymentService(l)
	return &App{
		Config:   cfg,
		Logger:   logger,
		Ledger:   l,
		Provider: provider,

		Amounts:    services.NewCalculator(l, policy),
		Ingestor:   services.NewIngestor(l, provider, l, ingest),
		Directory:  services.NewIBANDirectory(l, provider, l),
		Entities:   services.NewEntityService(l),
		Payments:   payments,
		Categories: services.NewCategoryService(l),
		Funders:    services.NewFunderService(l),
		Exporter:   services.NewExporter(payments),
	}, nil
}

// Scheduler returns an ingestion scheduler for the app. notifier may be nil.
func (a *App) Scheduler(notifier services.IngestNotifier) *services.IngestScheduler {
	return services.NewIngestScheduler(a.Ledger, a.Ingestor, a.Directory, notifier, services.IngestSchedulerConfig{
		Interval:     a.Config.SyncInterval,
		Concurrency:  a.Config.SyncConcurrency,
		RefreshIBANs: true,
	})
}

func (a *App) Close() error {
	if a.cleanup == nil {
		return nil
	}
	return a.cleanup()
}

// GracefulShutdown returns a context that is cancelled on SIGINT or SIGTERM.
// cleanup runs once the signal arrives and gets at most timeout to finish.
func GracefulShutdown(logger *plog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}
