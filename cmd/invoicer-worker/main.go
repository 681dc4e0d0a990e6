package main

import (
	"context"
	"errors"
	"os"
	"time"

	"invoicer/internal/cli"
	"invoicer/internal/config"
	applog "invoicer/internal/log"
	"invoicer/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)
	logger.Info("Starting invoicer-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if !cfg.EventsEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err)
		os.Exit(1)
	}
	if app.Events == nil {
		logger.Error("AMQP broker unreachable, cannot consume process requests", applog.FieldQueue, cfg.AMQPQueue)
		app.Close()
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, app.Close)

	periodWorker := worker.NewPeriodWorker(app.Processor, logger)

	// Without run history a restart could append the same period twice
	if cfg.HistoryEnabled() {
		logger.Info("Performing startup pending-period check...")
		if err := periodWorker.ProcessPending(ctx); err != nil {
			logger.Error("Startup pending-period check failed", applog.FieldError, err)
		}
	}

	if err := app.Events.ConsumeProcessRequests(ctx, periodWorker.HandleProcessRequest); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		app.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
