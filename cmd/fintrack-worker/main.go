package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	memsheet "fintrack/internal/sheets/memory"
	"fintrack/internal/worker"
)

const (
	cacheCleanupInterval = 10 * time.Minute
	statsInterval        = time.Minute
)

func main() {
	cfg, logger, err := cli.Bootstrap((*config.Config).ValidateWorker)
	if err != nil {
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("Worker exited with error", log.FieldError, err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	logger.Info("Starting fintrack-worker", "dry_run", cfg.ExportDryRun)

	writer, err := newRowWriter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Unlimited attempts: the worker is useless without the broker.
	client, err := amqp.NewClientWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 0, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	exporter := worker.NewExportWorker(writer, worker.DefaultConfig(), logger)

	caches := cache.NewManager(logger)
	caches.Register(exporter.DedupCache())
	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.ConsumeTransactions(gctx, exporter.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s := exporter.Stats()
				logger.Debug("Export stats", "exported", s.Exported, "duplicates", s.Duplicates, "failed", s.Failed)
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s := exporter.Stats()
	logger.Info("Worker stopped", "exported", s.Exported, "duplicates", s.Duplicates, "failed", s.Failed)
	return nil
}

// newRowWriter returns the Sheets client, or an in-memory writer in dry-run
// mode.
func newRowWriter(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.RowWriter, error) {
	if cfg.ExportDryRun {
		logger.Info("Dry run: exported rows are logged, not written to Google Sheets")
		return memsheet.New(logger), nil
	}

	client, err := gsheet.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureHeader(ctx); err != nil {
		return nil, err
	}
	logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client, nil
}
