// Package store defines the transaction store ports implemented by the
// memory and sqlite backends.
package store

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		// Append validates t and adds it after every previously stored
		// transaction. The returned reference is opaque and only meant for
		// logs and events.
		Append(ctx context.Context, t core.Transaction) (ref string, err error)
	}

	TransactionLister interface {
		// ListTransactions returns a copy of all transactions in insertion order.
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	CategoryReader interface {
		Categories(ctx context.Context) (core.Taxonomy, error)
	}

	// Store is everything the HTTP layer needs from a backend.
	Store interface {
		TransactionWriter
		TransactionLister
		CategoryReader
	}

	// Pinger is implemented by backends that can report readiness.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
