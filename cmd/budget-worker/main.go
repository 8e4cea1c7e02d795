package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetdash/internal/amqp"
	"budgetdash/internal/backend"
	"budgetdash/internal/cli"
	"budgetdash/internal/config"
	blog "budgetdash/internal/log"
	gsheet "budgetdash/internal/sheets/google"
	"budgetdash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	bootstrap := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(blog.ComponentWorker)

	logger.Info("Starting budget-worker", "exporter", cfg.Exporter)

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Invalid worker configuration", blog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// The mirror reloads the csv tables before every export, so no watcher.
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", blog.FieldError, err)
		os.Exit(1)
	}
	backendCfg.WatchFiles = false
	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", blog.FieldError, err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() { _ = result.Cleanup() }()
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", blog.FieldError, err, "exporter", cfg.Exporter)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPRoutingKey)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", blog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirrorCfg := worker.DefaultMirrorConfig()
	mirrorCfg.Debounce = cfg.MirrorDebounce
	mirrorCfg.MaxRetries = cfg.MirrorMaxRetries
	mirror := worker.NewMirrorWorker(result.Backend, exporter, mirrorCfg)

	if err := mirror.Start(ctx); err != nil {
		logger.Error("Failed to start mirror worker", blog.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeChanges(gctx, mirror.HandleChange)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Change event consumption failed", blog.FieldError, err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mirror.Stop(stopCtx); err != nil {
		logger.Warn("Mirror worker did not stop cleanly", blog.FieldError, err)
	}

	stats := mirror.Stats()
	logger.Info("Worker stopped",
		"events", stats.Events,
		"exports", stats.Exports,
		"failures", stats.Failures)

	if ctx.Err() != nil {
		<-done
	}
}

func newExporter(ctx context.Context, cfg *config.Config) (worker.Exporter, error) {
	switch cfg.Exporter {
	case "google":
		return gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			OAuthClientFile:    cfg.GoogleOAuthClientFile,
			OAuthClientJSON:    cfg.GoogleOAuthClientJSON,
			OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
			OAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
		})
	default:
		return worker.NewCSVDirExporter(cfg.ExportDir), nil
	}
}
