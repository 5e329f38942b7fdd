package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher publishes events to a durable direct exchange. Consumers
// declare and bind their own queues against the routing keys.
//
// A nil *Publisher is valid and drops every event; callers never need
// to branch on whether AMQP is configured.
type Publisher struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	closed  bool

	// Circuit breaker: after maxFailures consecutive publish errors the
	// breaker opens and publishes fail fast until openTimeout passes.
	failureCount    int64
	state           int32
	lastFailureNano int64
}

func NewPublisher(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{
		url:      url,
		exchange: exchange,
		logger:   logger,
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	go p.watch(p.conn)
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp091.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		p.exchange, // name
		"direct",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = channel
	p.mu.Unlock()
	return nil
}

// watch redials with exponential backoff when the connection drops.
func (p *Publisher) watch(conn *amqp091.Connection) {
	closeErr := <-conn.NotifyClose(make(chan *amqp091.Error, 1))
	if closeErr == nil {
		// Clean shutdown via Close.
		return
	}

	p.logger.Warn("amqp connection lost", "error", closeErr)
	for attempt := 0; ; attempt++ {
		time.Sleep(exponentialBackoff(attempt))

		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}

		if err := p.connect(); err != nil {
			if !isConnectionError(err) {
				// Broker reachable but rejecting us (bad credentials,
				// exchange mismatch). Retrying will not help.
				p.logger.Error("amqp reconnect rejected, giving up", "error", err)
				return
			}
			p.logger.Warn("amqp reconnect failed", "attempt", attempt+1, "error", err)
			continue
		}
		p.logger.Info("amqp reconnected", "attempts", attempt+1)
		go p.watch(p.conn)
		return
	}
}

// Publish sends the event to the exchange with a persistent delivery
// mode. It fails fast when the circuit breaker is open.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	if p == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.isCircuitOpen() {
		return fmt.Errorf("publish %s: circuit breaker is open", e.RoutingKey())
	}

	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	channel := p.channel
	p.mu.Unlock()
	if channel == nil || channel.IsClosed() {
		p.recordFailure()
		return fmt.Errorf("publish %s: channel not open", e.RoutingKey())
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = channel.PublishWithContext(
		ctx,
		p.exchange,     // exchange
		e.RoutingKey(), // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    e.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		p.recordFailure()
		return fmt.Errorf("publish %s: %w", e.RoutingKey(), err)
	}

	p.recordSuccess()
	p.logger.Debug("published event",
		"routing_key", e.RoutingKey(),
		"id", e.ID,
		"family_id", e.FamilyID)
	return nil
}

// Close shuts the channel and connection down. Publish calls after
// Close fail until the process restarts.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) isCircuitOpen() bool {
	state := atomic.LoadInt32(&p.state)
	if state != StateOpen {
		return false
	}
	last := time.Unix(0, atomic.LoadInt64(&p.lastFailureNano))
	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&p.state, StateHalfOpen)
		return false
	}
	return true
}

func (p *Publisher) recordFailure() {
	count := atomic.AddInt64(&p.failureCount, 1)
	atomic.StoreInt64(&p.lastFailureNano, time.Now().UnixNano())
	if count >= maxFailures {
		atomic.StoreInt32(&p.state, StateOpen)
	}
}

func (p *Publisher) recordSuccess() {
	atomic.StoreInt64(&p.failureCount, 0)
	atomic.StoreInt32(&p.state, StateClosed)
}

// exponentialBackoff returns the redial delay for the given attempt,
// doubling from one second and capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 4 {
		return 30 * time.Second
	}
	return time.Duration(1<<attempt) * time.Second
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
