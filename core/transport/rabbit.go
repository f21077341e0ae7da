package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange all pipeline traffic is routed through
const Exchange = "picturas"

// Rabbit is the RabbitMQ-backed Transport. The channel is established
// lazily and re-established on the next publish after a connection loss;
// publishes are infrequent and bursty around pipeline starts and advances,
// so there is no background reconnect loop.
type Rabbit struct {
	url    string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbit creates a transport for the given AMQP URL. No connection is
// opened until the first publish or consume.
func NewRabbit(url string, logger *slog.Logger) *Rabbit {
	return &Rabbit{url: url, logger: logger}
}

// getChannel returns the shared channel, dialing if needed
func (r *Rabbit) getChannel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil && !r.channel.IsClosed() {
		return r.channel, nil
	}

	if r.conn != nil {
		r.conn.Close()
	}

	conn, err := amqp.Dial(r.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(Exchange, "direct", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	r.conn = conn
	r.channel = channel
	r.logger.Info("rabbitmq connected", "exchange", Exchange)
	return channel, nil
}

// invalidate drops the cached channel so the next call redials
func (r *Rabbit) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
	}
	r.conn = nil
	r.channel = nil
}

// Publish sends a persistent message routed by routingKey. A publish that
// fails on a stale channel is retried once on a fresh one.
func (r *Rabbit) Publish(ctx context.Context, routingKey string, body []byte) error {
	err := r.publishOnce(ctx, routingKey, body)
	if err == nil {
		return nil
	}
	r.invalidate()
	if err := r.publishOnce(ctx, routingKey, body); err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}
	return nil
}

func (r *Rabbit) publishOnce(ctx context.Context, routingKey string, body []byte) error {
	channel, err := r.getChannel()
	if err != nil {
		return err
	}
	return channel.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume reads from a durable queue bound to the exchange under its own
// name, handing each delivery to handler and acknowledging it afterwards.
func (r *Rabbit) Consume(ctx context.Context, queue string, handler Handler) error {
	channel, err := r.getChannel()
	if err != nil {
		return err
	}

	q, err := channel.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := channel.QueueBind(q.Name, q.Name, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}

	deliveries, err := channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				r.invalidate()
				return fmt.Errorf("consume %s: channel closed", queue)
			}
			if err := handler(ctx, delivery.Body); err != nil {
				r.logger.Error("message handler failed", "queue", queue, "error", err)
			}
			if err := delivery.Ack(false); err != nil {
				r.logger.Error("ack failed", "queue", queue, "error", err)
			}
		}
	}
}

// Close shuts the connection down
func (r *Rabbit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		err := r.conn.Close()
		r.conn = nil
		r.channel = nil
		return err
	}
	return nil
}
