// Package sqlite is a transaction store backed by an in-memory SQLite
// database. Data is gone once the process exits.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"fintrack/internal/core"
	"fintrack/internal/log"

	_ "modernc.org/sqlite"
)

const (
	insertTransaction = `
INSERT INTO transactions (type, amount_cents, description, category, tx_date)
VALUES (?, ?, ?, ?, ?)`

	listTransactions = `
SELECT type, amount_cents, description, category, tx_date
FROM transactions
ORDER BY id`

	listCategories = `
SELECT type, name
FROM categories
ORDER BY type, position, name`
)

type Repository struct {
	db     *sql.DB
	logger *log.Logger
}

// Open connects to dsn, which must name an in-memory database, and applies
// the schema migrations.
func Open(ctx context.Context, dsn string, logger *log.Logger) (*Repository, error) {
	if logger == nil {
		logger = log.Discard()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection owns the in-memory database and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Append implements store.TransactionWriter. The reference is the row id.
func (r *Repository) Append(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	res, err := r.db.ExecContext(ctx, insertTransaction,
		string(t.Type), t.Amount.Cents, t.Description, t.Category, t.Date.String())
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("read inserted id: %w", err)
	}

	r.logger.DebugContext(ctx, "Transaction saved to SQLite",
		log.NewFields().
			WithTransaction(string(t.Type), t.Amount.Cents, t.Category, t.Date.String()).
			WithRef(strconv.FormatInt(id, 10)).
			ToSlice()...)

	return strconv.FormatInt(id, 10), nil
}

// ListTransactions implements store.TransactionLister.
func (r *Repository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, listTransactions)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		var (
			typ, desc, cat, date string
			cents                int64
		)
		if err := rows.Scan(&typ, &cents, &desc, &cat, &date); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		d, err := core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("stored date %q: %w", date, err)
		}
		out = append(out, core.Transaction{
			Type:        core.TransactionType(typ),
			Amount:      core.Money{Cents: cents},
			Description: desc,
			Category:    cat,
			Date:        d,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Categories implements store.CategoryReader.
func (r *Repository) Categories(ctx context.Context) (core.Taxonomy, error) {
	rows, err := r.db.QueryContext(ctx, listCategories)
	if err != nil {
		return core.Taxonomy{}, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	tax := core.Taxonomy{Income: []string{}, Expense: []string{}}
	for rows.Next() {
		var typ, name string
		if err := rows.Scan(&typ, &name); err != nil {
			return core.Taxonomy{}, fmt.Errorf("scan category: %w", err)
		}
		switch core.TransactionType(typ) {
		case core.Income:
			tax.Income = append(tax.Income, name)
		case core.Expense:
			tax.Expense = append(tax.Expense, name)
		}
	}
	if err := rows.Err(); err != nil {
		return core.Taxonomy{}, fmt.Errorf("iterate categories: %w", err)
	}
	return tax, nil
}
