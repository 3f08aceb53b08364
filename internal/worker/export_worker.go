package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
)

// Config tunes redelivery detection.
type Config struct {
	// DedupSize is the number of recent event ids remembered (default: 10000)
	DedupSize int
	// DedupTTL is how long an exported event id is remembered (default: 24h)
	DedupTTL time.Duration
}

func DefaultConfig() Config {
	return Config{DedupSize: 10000, DedupTTL: 24 * time.Hour}
}

// Stats counts handled events since start.
type Stats struct {
	Exported   int64
	Duplicates int64
	Failed     int64
}

// ExportWorker writes each transaction event as one sheet row. Events already
// exported are skipped, so a redelivery after a lost ack does not duplicate
// the row.
type ExportWorker struct {
	writer sheets.RowWriter
	seen   *cache.LRUCache[string]
	logger *log.Logger

	exported   atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

func NewExportWorker(writer sheets.RowWriter, cfg Config, logger *log.Logger) *ExportWorker {
	def := DefaultConfig()
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = def.DedupSize
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = def.DedupTTL
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		writer: writer,
		seen:   cache.NewLRUCache[string](cfg.DedupSize, cfg.DedupTTL),
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent is an amqp.EventHandler. A returned error makes the consumer
// requeue the message.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	if ref, ok := w.seen.Get(ev.EventID); ok {
		w.duplicates.Add(1)
		w.logger.DebugContext(ctx, "Skipping already exported event",
			log.FieldEventID, ev.EventID, "row", ref)
		return nil
	}

	row, err := w.writer.AppendRow(ctx, sheets.RowFromEvent(ev))
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("export event %s: %w", ev.EventID, err)
	}
	w.seen.Set(ev.EventID, row)
	w.exported.Add(1)

	w.logger.InfoContext(ctx, "Exported transaction",
		log.NewFields().
			WithRef(ev.Ref).
			WithOperation(log.OpExport).
			WithTransaction(ev.Type, ev.AmountCents, ev.Category, ev.Date).
			ToSlice()...)
	return nil
}

// DedupCache exposes the id cache so its expired entries can be swept.
func (w *ExportWorker) DedupCache() *cache.LRUCache[string] {
	return w.seen
}

func (w *ExportWorker) Stats() Stats {
	return Stats{
		Exported:   w.exported.Load(),
		Duplicates: w.duplicates.Load(),
		Failed:     w.failed.Load(),
	}
}
