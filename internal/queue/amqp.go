package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"reportnotify/internal/types"
)

// AMQPChannel is the subset of *amqp091.Channel the publisher uses.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp091.Confirmation) chan amqp091.Confirmation
	Close() error
}

// ErrPublishNacked is returned when the broker refuses a published event.
var ErrPublishNacked = errors.New("queue: broker nacked publish")

// AMQPPublisher publishes events as persistent JSON messages on a durable
// topic exchange, routed by types.EventRoutingKey. The channel runs in
// confirm mode and every publish waits for the broker's ack.
type AMQPPublisher struct {
	mu       sync.Mutex
	ch       AMQPChannel
	confirms chan amqp091.Confirmation
	// nextTag is the delivery tag the broker assigns to the next publish.
	nextTag  uint64
	exchange string
	now      func() time.Time
	logger   *slog.Logger
}

// NewAMQPPublisher declares exchange on ch, puts ch in confirm mode and
// returns a publisher bound to it.
func NewAMQPPublisher(ch AMQPChannel, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue: failed to declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("queue: confirm mode: %w", err)
	}
	return &AMQPPublisher{
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp091.Confirmation, 1)),
		nextTag:  1,
		exchange: exchange,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// PublishDeadlineNotification publishes evt. The event id doubles as the AMQP
// message id so consumers can deduplicate redeliveries.
func (p *AMQPPublisher) PublishDeadlineNotification(ctx context.Context, evt types.DeadlineNotificationEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal DeadlineNotificationEvent: %w", err)
	}

	msg := amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     evt.EventID,
		CorrelationId: evt.TraceID,
		Timestamp:     p.now(),
		Type:          types.EventRoutingKey,
		Body:          body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.exchange, types.EventRoutingKey, false, false, msg); err != nil {
		return fmt.Errorf("queue: failed to publish to exchange %s: %w", p.exchange, err)
	}
	tag := p.nextTag
	p.nextTag++

	if err := p.waitConfirm(ctx, tag); err != nil {
		return fmt.Errorf("queue: event %s on exchange %s: %w", evt.EventID, p.exchange, err)
	}

	p.logger.InfoContext(ctx, "deadline notification event published",
		"exchange", p.exchange,
		"key", types.EventRoutingKey,
		"event_id", evt.EventID,
		"report_request_id", evt.ReportRequestID,
	)
	return nil
}

// waitConfirm blocks until the broker confirms tag. Confirmations for earlier
// tags, left behind by publishes whose wait was cancelled, are discarded.
func (p *AMQPPublisher) waitConfirm(ctx context.Context, tag uint64) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for publish confirm: %w", ctx.Err())
		case conf, ok := <-p.confirms:
			if !ok {
				return fmt.Errorf("waiting for publish confirm: %w", amqp091.ErrClosed)
			}
			if conf.DeliveryTag < tag {
				continue
			}
			if !conf.Ack {
				return ErrPublishNacked
			}
			return nil
		}
	}
}

// Close closes the underlying channel.
func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

// DialOptions controls DialWithRetry.
type DialOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	MaxDelay      time.Duration
	Logger        *slog.Logger
}

// DialWithRetry connects to the broker with exponential backoff, giving up
// after RetryAttempts or when ctx is cancelled.
func DialWithRetry(ctx context.Context, opts DialOptions) (*amqp091.Connection, error) {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var lastErr error
	sleep := opts.Delay
	for attempt := 1; attempt <= opts.RetryAttempts; attempt++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if attempt > 1 {
				opts.Logger.InfoContext(ctx, "amqp connected", "attempt", attempt)
			}
			return conn, nil
		}
		lastErr = err
		if attempt == opts.RetryAttempts {
			break
		}

		opts.Logger.WarnContext(ctx, "amqp dial failed",
			"attempt", attempt,
			"sleep", sleep,
			"error", err,
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}

		sleep *= 2
		if opts.MaxDelay > 0 && sleep > opts.MaxDelay {
			sleep = opts.MaxDelay
		}
	}
	return nil, fmt.Errorf("queue: failed to connect to broker after %d attempts: %w", opts.RetryAttempts, lastErr)
}
