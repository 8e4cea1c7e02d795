package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"budgetdash/internal/amqp"
	"budgetdash/internal/backend"
	"budgetdash/internal/cache"
	"budgetdash/internal/cli"
	apphttp "budgetdash/internal/http"
	blog "budgetdash/internal/log"
	"budgetdash/internal/middleware/ratelimit"
	"budgetdash/internal/services"
)

func main() {
	cli.LoadEnvFile()
	bootstrap := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel)

	// The watcher starts before the server exists; external edits are
	// forwarded once it does.
	var srvRef atomic.Pointer[apphttp.Server]

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", blog.FieldError, err)
		os.Exit(1)
	}
	backendCfg.OnExternalChange = func(table string) {
		if srv := srvRef.Load(); srv != nil {
			srv.InvalidateSummary(table)
		}
	}

	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", blog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var publisher services.ChangePublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPRoutingKey)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", blog.FieldError, err)
			os.Exit(1)
		}
		publisher = amqpClient
		logger.Info("Publishing change events", "exchange", cfg.AMQPExchange, "routing_key", cfg.AMQPRoutingKey)
	} else {
		logger.Info("AMQP disabled - change events will not be published")
	}

	summaries := cache.NewLRUCache[services.Summary](cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	svc := services.NewBudgetService(result.Backend, publisher, summaries)

	opts := apphttp.Options{
		Addr:           net.JoinHostPort("", cfg.Port),
		Service:        svc,
		Logger:         logger,
		SummaryCache:   summaries,
		RateLimit:      ratelimit.DefaultConfig(),
		TrustedProxies: cfg.TrustedProxies,
	}
	if p, ok := result.Backend.(backend.Pinger); ok {
		opts.Ready = p
	}
	srv := apphttp.NewServer(opts)
	srvRef.Store(srv)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 15 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", blog.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", blog.FieldError, err)
			}
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", blog.FieldError, err)
			}
		}
	})

	logger.Info("Starting budgetdash server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", blog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
