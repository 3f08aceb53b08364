package backend

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/store/memory"
	"fintrack/internal/store/sqlite"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Config
		want    BackendType
		wantErr bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "memory", cfg: &config.Config{DataBackend: "memory", DataDir: "seed"}, want: MemoryBackend},
		{name: "sqlite", cfg: &config.Config{DataBackend: "sqlite", SQLiteDSN: config.DefaultSQLiteDSN}, want: SQLiteBackend},
		{name: "unknown", cfg: &config.Config{DataBackend: "sheets"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAppConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromAppConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.Type != tt.want {
				t.Errorf("Type = %v, want %v", got.Type, tt.want)
			}
		})
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if _, ok := res.Store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", res.Store)
	}
	if err := res.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	// Missing seed files fall back to the built-in taxonomy.
	tax, err := res.Store.Categories(context.Background())
	if err != nil || len(tax.Income) != len(core.DefaultTaxonomy().Income) {
		t.Errorf("Categories() = %+v, %v", tax, err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDSN: dsn})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Close()

	if _, ok := res.Store.(*sqlite.Repository); !ok {
		t.Fatalf("expected sqlite repository, got %T", res.Store)
	}
	ref, err := res.Store.Append(context.Background(), core.Transaction{Type: core.Income, Amount: core.Money{Cents: 100}})
	if err != nil || ref == "" {
		t.Fatalf("Append() = %q, %v", ref, err)
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	f := NewFactory(nil)
	for _, cfg := range []Config{{Type: "sheets"}, {Type: SQLiteBackend}} {
		if _, err := f.CreateBackend(context.Background(), cfg); err == nil {
			t.Errorf("CreateBackend(%+v) succeeded", cfg)
		}
	}
}

func TestNilResultClose(t *testing.T) {
	var r *BackendResult
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}
