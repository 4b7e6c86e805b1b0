// Package amqp forwards committed domain events to a RabbitMQ queue.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/hongminglow/all-in-iam/internal/events"
)

// Channel is the subset of *amqp091.Channel used by the publisher.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher opens a channel per batch and publishes each event as a
// persistent JSON message.
type Publisher struct {
	open   func() (Channel, error)
	queue  string
	logger *slog.Logger
	closer func() error
}

// New builds a publisher from a channel factory.
func New(open func() (Channel, error), queue string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{open: open, queue: queue, logger: logger}
}

// Dial connects to the broker at url.
func Dial(url, queue string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	p := New(func() (Channel, error) { return conn.Channel() }, queue, logger)
	p.closer = conn.Close
	return p, nil
}

// Publish sends evts in order. The first failure aborts the batch.
func (p *Publisher) Publish(ctx context.Context, evts []events.Event) error {
	if len(evts) == 0 {
		return nil
	}
	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}

	for _, evt := range evts {
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", evt.Name, err)
		}
		err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    evt.ID,
			Type:         evt.Name,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish event %s: %w", evt.Name, err)
		}
		p.logger.DebugContext(ctx, "event sent to queue",
			slog.String("queue", p.queue),
			slog.String("event", evt.Name),
			slog.String("event_id", evt.ID),
		)
	}
	return nil
}

// Close releases the broker connection when the publisher owns one.
func (p *Publisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
