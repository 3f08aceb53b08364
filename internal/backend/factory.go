package backend

import (
	"context"
	"fmt"

	"fintrack/internal/log"
	"fintrack/internal/store/memory"
	"fintrack/internal/store/sqlite"
)

// Factory builds the configured transaction store.
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

func (f *Factory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, cfg)
	case MemoryBackend:
		return f.createMemoryBackend(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *Factory) createSQLiteBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	repo, err := sqlite.Open(ctx, cfg.SQLiteDSN, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend", log.FieldBackend, SQLiteBackend.String())
	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func (f *Factory) createMemoryBackend(cfg Config) *BackendResult {
	dataDir := cfg.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	st := memory.NewFromFiles(dataDir)

	f.logger.Info("Initialized memory backend", log.FieldBackend, MemoryBackend.String(), "data_directory", dataDir)
	return &BackendResult{Store: st}
}
