// Command poen-worker ingests bank payments for every project on an interval
// and serves on-demand sync requests from the AMQP queue.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"poen/internal/amqp"
	"poen/internal/cli"
	plog "poen/internal/log"
	"poen/internal/services"
	"poen/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		plog.New(plog.DefaultConfig()).Error("Configuration validation failed", plog.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, plog.ComponentWorker)
	logger.Info("Starting poen-worker", "backend", cfg.DataBackend, "interval", cfg.SyncInterval)

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", plog.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	// The queue is optional: without it the worker only runs on its interval.
	var (
		amqpClient *amqp.Client
		notifier   services.IngestNotifier
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPSyncQueue, cfg.AMQPEventsQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", plog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		notifier = worker.NewIngestEvents(amqpClient)
		logger.Info("AMQP client initialized", "sync_queue", cfg.AMQPSyncQueue, "events_queue", cfg.AMQPEventsQueue)
	} else {
		logger.Info("AMQP disabled - only periodic ingestion will run")
	}

	scheduler := app.Scheduler(notifier)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error("Scheduler shutdown error", plog.FieldError, err)
		}
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start ingest scheduler", plog.FieldError, err)
		os.Exit(1)
	}

	if amqpClient != nil {
		syncWorker := worker.NewSyncWorker(app.Ledger, scheduler)
		go func() {
			err := amqpClient.ConsumeSyncRequests(ctx, syncWorker.HandleSyncMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", plog.FieldError, err)
			}
		}()
	}

	<-done
	logger.Info("Worker stopped")
}
