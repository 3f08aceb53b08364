package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"

	"fintrack/internal/config"
	"fintrack/internal/sheets"
)

type fakeSheets struct {
	mu       sync.Mutex
	header   [][]any
	appended [][]any
	queries  []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, r.URL.RawQuery)

	w.Header().Set("Content-Type", "application/json")
	var body struct {
		Values [][]any `json:"values"`
	}
	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
	}

	switch {
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.header})
	case r.Method == http.MethodPut:
		f.header = body.Values
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRows": 1})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		f.appended = append(f.appended, body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "Transactions!A2:G2"},
		})
	default:
		http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "sheet-id", "Transactions", nil,
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresTarget(t *testing.T) {
	if _, err := New(context.Background(), "", "Transactions", nil); err == nil {
		t.Error("expected error for missing spreadsheet id")
	}
	if _, err := New(context.Background(), "id", " ", nil); err == nil {
		t.Error("expected error for missing sheet name")
	}
}

func TestAppendRow(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	row := sheets.Row{Date: "2025-03-01", Type: "expense", Category: "Dining", Amount: "40.00", Ref: "mem:1", RecordedAt: "2025-03-01T12:00:00Z"}
	ref, err := c.AppendRow(context.Background(), row)
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if ref != "Transactions!A2:G2" {
		t.Errorf("ref = %q", ref)
	}
	if len(fake.appended) != 1 || len(fake.appended[0]) != len(sheets.Header) {
		t.Fatalf("appended = %v", fake.appended)
	}
	if fake.appended[0][4] != "40.00" || fake.appended[0][5] != "mem:1" {
		t.Errorf("unexpected row %v", fake.appended[0])
	}
	q := fake.queries[len(fake.queries)-1]
	if !strings.Contains(q, "valueInputOption=USER_ENTERED") || !strings.Contains(q, "insertDataOption=INSERT_ROWS") {
		t.Errorf("unexpected query %q", q)
	}
}

func TestEnsureHeader(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	if err := c.EnsureHeader(context.Background()); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}
	if len(fake.header) != 1 || fake.header[0][0] != "Date" {
		t.Fatalf("header not written: %v", fake.header)
	}

	calls := len(fake.queries)
	if err := c.EnsureHeader(context.Background()); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}
	if len(fake.queries) != calls+1 {
		t.Errorf("existing header should only be read, got %d requests", len(fake.queries)-calls)
	}
}

func TestServiceAccountCredentials(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(file, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     config.Config
		want    string
		wantErr bool
	}{
		{name: "inline json wins", cfg: config.Config{GoogleServiceAccountJSON: `{"inline":true}`, GoogleServiceAccountFile: file}, want: `{"inline":true}`},
		{name: "file", cfg: config.Config{GoogleServiceAccountFile: file}, want: `{"type":"service_account"}`},
		{name: "missing file", cfg: config.Config{GoogleServiceAccountFile: filepath.Join(t.TempDir(), "nope.json")}, wantErr: true},
		{name: "nothing set", cfg: config.Config{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := serviceAccountCredentials(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
