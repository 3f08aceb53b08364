package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"fintrack/internal/core"
)

const (
	IncomeCategoriesFile  = "income_categories.txt"
	ExpenseCategoriesFile = "expense_categories.txt"
)

// Store keeps transactions in process memory. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	taxonomy core.Taxonomy
	items    []core.Transaction
}

func New(tax core.Taxonomy) *Store {
	return &Store{taxonomy: core.Taxonomy{
		Income:  dedupe(tax.Income),
		Expense: dedupe(tax.Expense),
	}}
}

// NewFromFiles seeds the category lists from base. A missing or empty file
// falls back to the built-in list for that type.
func NewFromFiles(base string) *Store {
	def := core.DefaultTaxonomy()
	income := readLines(filepath.Join(base, IncomeCategoriesFile))
	if len(income) == 0 {
		income = def.Income
	}
	expense := readLines(filepath.Join(base, ExpenseCategoriesFile))
	if len(expense) == 0 {
		expense = def.Expense
	}
	return New(core.Taxonomy{Income: income, Expense: expense})
}

// Append stores the transaction and returns a synthetic reference.
func (s *Store) Append(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, t)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.items...), nil
}

func (s *Store) Categories(_ context.Context) (core.Taxonomy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.Taxonomy{
		Income:  append([]string(nil), s.taxonomy.Income...),
		Expense: append([]string(nil), s.taxonomy.Expense...),
	}, nil
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) Ping(context.Context) error { return nil }

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// dedupe drops blanks and repeats, keeping first-seen order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
