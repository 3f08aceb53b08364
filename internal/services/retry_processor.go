package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
)

// RetryProcessorConfig holds configuration for the retry processor
type RetryProcessorConfig struct {
	// PollInterval is how often pending events are retried (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of events retried per poll (default: 10)
	BatchSize int

	// MaxRetries is the number of retry attempts before an event is dropped (default: 3)
	MaxRetries int

	// Capacity bounds the number of pending events (default: 1000)
	Capacity int
}

func DefaultRetryProcessorConfig() RetryProcessorConfig {
	return RetryProcessorConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    10,
		MaxRetries:   3,
		Capacity:     1000,
	}
}

type pendingEvent struct {
	ev       *amqp.TransactionEvent
	attempts int
}

// RetryStats is a snapshot of the retry queue.
type RetryStats struct {
	Pending   int
	Published int64
	Dropped   int64
}

var ErrAlreadyRunning = errors.New("retry processor is already running")

// RetryProcessor republishes transaction events whose first publish failed.
// The queue lives in memory; pending events are lost on exit.
type RetryProcessor struct {
	publisher EventPublisher
	config    RetryProcessorConfig
	logger    *log.Logger

	mu        sync.Mutex
	queue     []pendingEvent
	published int64
	dropped   int64

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRetryProcessor(publisher EventPublisher, config RetryProcessorConfig, logger *log.Logger) *RetryProcessor {
	def := DefaultRetryProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.Capacity <= 0 {
		config.Capacity = def.Capacity
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &RetryProcessor{
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(log.ComponentAMQP),
	}
}

// Enqueue implements EventQueue. It returns false when the queue is full.
func (p *RetryProcessor) Enqueue(ev *amqp.TransactionEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= p.config.Capacity {
		p.dropped++
		return false
	}
	p.queue = append(p.queue, pendingEvent{ev: ev})
	return true
}

// Start begins the retry loop. Returns an error if already running.
func (p *RetryProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Event retry processor started",
		"poll_interval", p.config.PollInterval.String(),
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for it, or for ctx.
func (p *RetryProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Event retry processor stopped", "pending", p.Stats().Pending)
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Event retry processor stop timed out")
		return ctx.Err()
	}
}

func (p *RetryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RetryProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch retries up to BatchSize pending events once.
func (p *RetryProcessor) ProcessBatch(ctx context.Context) {
	p.mu.Lock()
	n := min(len(p.queue), p.config.BatchSize)
	batch := append([]pendingEvent(nil), p.queue[:n]...)
	p.queue = p.queue[n:]
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	p.logger.DebugContext(ctx, "Retrying event batch", log.FieldCount, len(batch))

	var requeue []pendingEvent
	for i, item := range batch {
		if ctx.Err() != nil {
			requeue = append(requeue, batch[i:]...)
			break
		}
		err := p.publisher.PublishTransaction(ctx, item.ev)
		if err == nil {
			p.mu.Lock()
			p.published++
			p.mu.Unlock()
			continue
		}
		item.attempts++
		if item.attempts >= p.config.MaxRetries {
			p.mu.Lock()
			p.dropped++
			p.mu.Unlock()
			p.logger.ErrorContext(ctx, "Event dropped after max retries",
				log.FieldEventID, item.ev.EventID,
				log.FieldRef, item.ev.Ref,
				"attempts", item.attempts,
				log.FieldError, err)
			continue
		}
		requeue = append(requeue, item)
	}

	if len(requeue) > 0 {
		p.mu.Lock()
		p.queue = append(requeue, p.queue...)
		p.mu.Unlock()
	}
}

func (p *RetryProcessor) Stats() RetryStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return RetryStats{Pending: len(p.queue), Published: p.published, Dropped: p.dropped}
}
