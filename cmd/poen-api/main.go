// Command poen-api serves the JSON API over the ledger.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"poen/internal/amqp"
	"poen/internal/cli"
	apphttp "poen/internal/http"
	plog "poen/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		plog.New(plog.DefaultConfig()).Error("Configuration validation failed", plog.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, plog.ComponentHTTP)

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", plog.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	deps := apphttp.Deps{
		Projects:  app.Ledger,
		Amounts:   app.Amounts,
		Entities:  app.Entities,
		Directory: app.Directory,
		Payments:  app.Payments,
		Exporter:  app.Exporter,
		Funders:   app.Funders,
	}

	// With a queue, sync requests go to the worker; without one they run
	// inline.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPSyncQueue, cfg.AMQPEventsQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", plog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		deps.Sync = amqpClient
		logger.Info("Sync requests are queued", "queue", cfg.AMQPSyncQueue)
	} else {
		deps.Scheduler = app.Scheduler(nil)
		logger.Info("AMQP disabled - sync requests run inline")
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps, apphttp.Options{
		Logger:    logger,
		RateLimit: cfg.APIRateLimit,
		RateBurst: cfg.APIRateBurst,
	})

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", plog.FieldError, err)
		}
	})

	logger.Info("Starting poen API", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", plog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
