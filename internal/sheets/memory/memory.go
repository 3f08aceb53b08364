package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/log"
	"fintrack/internal/sheets"
)

// Writer collects exported rows in memory. The worker uses it in dry-run
// mode; every row is also logged.
type Writer struct {
	mu     sync.Mutex
	rows   []sheets.Row
	logger *log.Logger
}

func New(logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.Discard()
	}
	return &Writer{logger: logger.WithComponent(log.ComponentSheets)}
}

// AppendRow stores r and returns a synthetic row reference.
func (w *Writer) AppendRow(ctx context.Context, r sheets.Row) (string, error) {
	w.mu.Lock()
	w.rows = append(w.rows, r)
	ref := fmt.Sprintf("mem!A%d:G%d", len(w.rows)+1, len(w.rows)+1)
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Exported row (dry run)",
		log.FieldRef, r.Ref,
		log.FieldTxType, r.Type,
		"amount", r.Amount,
		"row", ref)
	return ref, nil
}

// Rows returns a copy of the rows written so far.
func (w *Writer) Rows() []sheets.Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]sheets.Row(nil), w.rows...)
}
