package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"fintrack/internal/log"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var (
	ErrCircuitOpen  = errors.New("circuit breaker is open")
	ErrNotConnected = errors.New("amqp client not connected")
)

// Client publishes and consumes transaction events on a durable direct
// exchange. Publishing is guarded by a circuit breaker so a dead broker
// costs callers a fast error instead of a timeout.
type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *log.Logger

	// dial opens a connection and a channel with the topology declared.
	// Nil means open.
	dial func() (*amqp091.Connection, *amqp091.Channel, error)

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	connGen uint64 // bumped by every successful connect, guarded by mu

	// reconnectMu serialises reconnects so publishers that saw the same dead
	// connection share one dial.
	reconnectMu sync.Mutex

	state        int32
	failureCount int64
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClientWithRetry dials until it succeeds, ctx is done or maxAttempts
// is reached, backing off exponentially between attempts.
func NewClientWithRetry(ctx context.Context, url, exchangeName, queueName string, maxAttempts int, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	var lastErr error
	for attempt := 0; maxAttempts <= 0 || attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := NewClient(url, exchangeName, queueName, logger)
		if err == nil {
			return c, nil
		}
		lastErr = err
		wait := exponentialBackoff(attempt)
		logger.WarnContext(ctx, "AMQP connection failed, retrying",
			log.FieldError, err, "attempt", attempt+1, "retry_in", wait.String())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", maxAttempts, lastErr)
}

// connect dials a fresh connection, swaps it in and closes the one it
// replaces.
func (c *Client) connect() error {
	dial := c.dial
	if dial == nil {
		dial = c.open
	}
	conn, channel, err := dial()
	if err != nil {
		return err
	}

	c.mu.Lock()
	oldConn, oldChannel := c.conn, c.channel
	c.conn, c.channel = conn, channel
	c.connGen++
	c.mu.Unlock()

	closePair(oldConn, oldChannel)
	return nil
}

// reconnect replaces the connection of generation gen. It is a no-op when
// another caller already replaced it.
func (c *Client) reconnect(gen uint64) error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	if _, current := c.current(); current != gen {
		return nil
	}
	return c.connect()
}

// current returns the publishing channel and its connection generation.
func (c *Client) current() (*amqp091.Channel, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel, c.connGen
}

func (c *Client) open() (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return conn, channel, nil
}

func closePair(conn *amqp091.Connection, channel *amqp091.Channel) {
	if channel != nil {
		_ = channel.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key is the queue name on a direct exchange.
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishTransaction sends ev as a persistent JSON message.
func (c *Client) PublishTransaction(ctx context.Context, ev *TransactionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", ev.EventID, ErrCircuitOpen)
	}

	body, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, gen := c.current()
	err = c.publish(ctx, ch, ev.EventID, body)
	if err != nil && isConnectionError(err) {
		c.logger.WarnContext(ctx, "AMQP publish failed on a dead connection, reconnecting", log.FieldError, err)
		if rerr := c.reconnect(gen); rerr != nil {
			c.logger.WarnContext(ctx, "AMQP reconnect failed", log.FieldError, rerr)
		} else {
			ch, _ = c.current()
			err = c.publish(ctx, ch, ev.EventID, body)
		}
	}
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.logger.DebugContext(ctx, "Published transaction event",
		log.FieldEventID, ev.EventID,
		log.FieldRef, ev.Ref,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, ch *amqp091.Channel, id string, body []byte) error {
	if ch == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    id,
			Type:         EventTransactionRecorded,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// EventHandler processes one decoded event. A returned error requeues the
// message.
type EventHandler func(ctx context.Context, ev *TransactionEvent) error

// ConsumeTransactions delivers events to handler until ctx is done or the
// channel closes. Messages are acknowledged manually.
func (c *Client) ConsumeTransactions(ctx context.Context, handler EventHandler) error {
	ch, _ := c.current()
	if ch == nil {
		return ErrNotConnected
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming transaction events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.handleDelivery(ctx, d, handler)
		}
	}
}

// handleDelivery acks on success, requeues on handler failure and drops
// messages that cannot be decoded.
func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler EventHandler) {
	ev, err := TransactionEventFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Dropping malformed message",
			log.FieldError, err, "message_id", d.MessageId)
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, ev); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle transaction event",
			log.FieldError, err, log.FieldEventID, ev.EventID, log.FieldRef, ev.Ref)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
	c.logger.DebugContext(ctx, "Processed transaction event", log.FieldEventID, ev.EventID)
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		last := c.lastFailure
		c.mu.Unlock()
		if time.Since(last) > openTimeout {
			atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	n := atomic.AddInt64(&c.failureCount, 1)
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection closed", "eof", "broken pipe", "closed network connection", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
