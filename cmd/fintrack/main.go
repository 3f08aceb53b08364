package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

const (
	cacheCleanupInterval = 5 * time.Minute
	amqpConnectAttempts  = 5
)

func main() {
	cfg, logger, err := cli.Bootstrap((*config.Config).Validate)
	if err != nil {
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", log.FieldError, err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err.Error())
		}
	}()

	caches := cache.NewManager(logger)
	opts := services.Options{
		Logger:   logger,
		CacheTTL: cfg.SummaryCacheTTL,
		Caches:   caches,
	}

	var retry *services.RetryProcessor
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClientWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqpConnectAttempts, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		retry = services.NewRetryProcessor(client, services.DefaultRetryProcessorConfig(), logger)
		opts.Publisher, opts.Retry = client, retry
		logger.Info("Publishing transaction events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP_URL not set, transaction events disabled")
	}

	svc := services.NewTransactionService(result.Store, opts)

	serverOpts := apphttp.Options{
		Addr:            ":" + cfg.Port,
		Logger:          logger,
		RateLimitPerMin: cfg.RateLimitPerMin,
	}
	if retry != nil {
		serverOpts.Retry = retry
	}
	srv, err := apphttp.NewServer(svc, serverOpts)
	if err != nil {
		return err
	}

	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	if retry != nil {
		if err := retry.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting fintrack server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if retry != nil {
			if err := retry.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
