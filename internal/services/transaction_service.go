package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/store"
)

// EventPublisher sends transaction events to the broker.
type EventPublisher interface {
	PublishTransaction(ctx context.Context, ev *amqp.TransactionEvent) error
}

// EventQueue accepts events whose first publish attempt failed.
type EventQueue interface {
	Enqueue(ev *amqp.TransactionEvent) bool
}

const (
	keySummary   = "summary"
	keyBreakdown = "breakdown"
	keyTrend     = "trend"
)

// TransactionService validates and records transactions, computes summaries
// and announces new records on the broker.
type TransactionService struct {
	store     store.Store
	publisher EventPublisher
	retry     EventQueue
	logger    *log.Logger
	now       func() time.Time

	// generation is bumped on every append; aggregates computed from an
	// older generation are returned but not cached. cacheMu makes the
	// generation check and the cache store atomic with invalidate.
	cacheMu    sync.Mutex
	generation atomic.Uint64
	summaries  *cache.LRUCache[core.Summary]
	breakdowns *cache.LRUCache[core.Breakdown]
	trends     *cache.LRUCache[[]core.TrendPoint]
}

// Options configures optional collaborators of TransactionService.
type Options struct {
	// Publisher may be nil, in which case no events are sent.
	Publisher EventPublisher
	// Retry receives events that failed to publish. May be nil.
	Retry    EventQueue
	Logger   *log.Logger
	CacheTTL time.Duration
	// Caches, when set, gets the summary caches registered for expiry.
	Caches *cache.Manager
}

func NewTransactionService(s store.Store, opts Options) *TransactionService {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	svc := &TransactionService{
		store:      s,
		publisher:  opts.Publisher,
		retry:      opts.Retry,
		logger:     logger.WithComponent(log.ComponentTransaction),
		now:        time.Now,
		summaries:  cache.NewLRUCache[core.Summary](1, opts.CacheTTL),
		breakdowns: cache.NewLRUCache[core.Breakdown](1, opts.CacheTTL),
		trends:     cache.NewLRUCache[[]core.TrendPoint](1, opts.CacheTTL),
	}
	if opts.Caches != nil {
		opts.Caches.Register(svc.summaries)
		opts.Caches.Register(svc.breakdowns)
		opts.Caches.Register(svc.trends)
	}
	return svc
}

// Record normalizes and validates t, appends it to the store and publishes a
// transaction.recorded event. Publishing failures never fail the call.
func (s *TransactionService) Record(ctx context.Context, t core.Transaction) (string, error) {
	t = t.Normalize()
	fields := log.NewFields().WithTransaction(string(t.Type), t.Amount.Cents, t.Category, t.Date.String())

	if err := t.Validate(); err != nil {
		s.logger.WarnContext(ctx, "Rejected transaction",
			fields.WithError(err).WithErrorType(log.ErrorTypeValidation).WithOperation(log.OpValidate).ToSlice()...)
		return "", fmt.Errorf("validate transaction: %w", err)
	}

	ref, err := s.store.Append(ctx, t)
	if err != nil {
		return "", fmt.Errorf("append transaction: %w", err)
	}
	s.invalidate()

	s.logger.InfoContext(ctx, "Transaction recorded", fields.WithRef(ref).WithOperation(log.OpCreate).ToSlice()...)

	s.publish(ctx, ref, t)
	return ref, nil
}

func (s *TransactionService) publish(ctx context.Context, ref string, t core.Transaction) {
	if s.publisher == nil {
		return
	}
	ev := amqp.NewTransactionEvent(ref, t, s.now())
	err := s.publisher.PublishTransaction(ctx, ev)
	if err == nil {
		return
	}

	fields := log.NewFields().WithRef(ref).WithError(err).WithOperation(log.OpPublish)
	fields[log.FieldEventID] = ev.EventID
	if s.retry != nil && s.retry.Enqueue(ev) {
		s.logger.WarnContext(ctx, "Event publish failed, queued for retry", fields.ToSlice()...)
		return
	}
	s.logger.ErrorContext(ctx, "Event publish failed, event dropped", fields.ToSlice()...)
}

// List returns the stored transactions filtered and ordered by q.
func (s *TransactionService) List(ctx context.Context, q core.Query) ([]core.Transaction, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ts, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if q.IsZero() {
		if ts == nil {
			ts = []core.Transaction{}
		}
		return ts, nil
	}
	return q.Apply(ts), nil
}

func (s *TransactionService) Summary(ctx context.Context) (core.Summary, error) {
	return cached(ctx, s, s.summaries, keySummary, core.Summarize)
}

func (s *TransactionService) Breakdown(ctx context.Context) (core.Breakdown, error) {
	return cached(ctx, s, s.breakdowns, keyBreakdown, core.BreakdownByCategory)
}

func (s *TransactionService) Trend(ctx context.Context) ([]core.TrendPoint, error) {
	return cached(ctx, s, s.trends, keyTrend, core.Trend)
}

func (s *TransactionService) Categories(ctx context.Context) (core.Taxonomy, error) {
	tax, err := s.store.Categories(ctx)
	if err != nil {
		return core.Taxonomy{}, fmt.Errorf("read categories: %w", err)
	}
	return tax, nil
}

// Ping reports store readiness when the backend supports it.
func (s *TransactionService) Ping(ctx context.Context) error {
	if p, ok := s.store.(store.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// CacheStats reports summary cache usage for /metrics.
func (s *TransactionService) CacheStats() cache.Stats {
	a, b, c := s.summaries.Stats(), s.breakdowns.Stats(), s.trends.Stats()
	return cache.Stats{
		Hits:   a.Hits + b.Hits + c.Hits,
		Misses: a.Misses + b.Misses + c.Misses,
		Size:   a.Size + b.Size + c.Size,
	}
}

func (s *TransactionService) invalidate() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation.Add(1)
	s.summaries.Purge()
	s.breakdowns.Purge()
	s.trends.Purge()
}

func cached[T any](ctx context.Context, s *TransactionService, c *cache.LRUCache[T], key string, compute func([]core.Transaction) T) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	var zero T
	gen := s.generation.Load()
	ts, err := s.store.ListTransactions(ctx)
	if err != nil {
		return zero, fmt.Errorf("list transactions: %w", err)
	}
	v := compute(ts)
	s.cacheMu.Lock()
	if s.generation.Load() == gen {
		c.Set(key, v)
	}
	s.cacheMu.Unlock()
	return v, nil
}
