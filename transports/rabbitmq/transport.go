// Package rabbitmq bridges bus topic publishes to a RabbitMQ topic exchange
// so out-of-process collaborators can join the fan-out, and feeds consumed
// envelopes back into the bus through its Receive entry point.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/meshify/agentbus-go/contracts"
)

const defaultExchange = "agentbus.topics"

// ReceiveFunc feeds a consumed envelope into the bus.
type ReceiveFunc func(ctx context.Context, env *contracts.Envelope) error

// Bridge mirrors topic traffic over AMQP. Routing keys are the bus topic
// strings; bodies are JSON-serialized envelopes, so delivery semantics
// survive the hop.
type Bridge struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// BridgeOption configures the bridge.
type BridgeOption func(*Bridge)

// WithExchange overrides the topic exchange name.
func WithExchange(name string) BridgeOption {
	return func(b *Bridge) { b.exchange = name }
}

// WithBridgeLogger sets the logger.
func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = logger }
}

// NewBridge dials the broker and declares the topic exchange.
func NewBridge(connectionString string, opts ...BridgeOption) (*Bridge, error) {
	b := &Bridge{
		exchange: defaultExchange,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	conn, err := amqp.Dial(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		b.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	b.conn = conn
	b.channel = channel
	return b, nil
}

// Publish mirrors an envelope to the exchange under its topic routing key.
func (b *Bridge) Publish(ctx context.Context, topic string, env *contracts.Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}

	return b.channel.PublishWithContext(ctx,
		b.exchange,
		topic, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			MessageId:     env.ID,
			CorrelationId: env.CorrelationID,
			Timestamp:     env.CreatedAt,
			Body:          body,
		},
	)
}

// Consume binds a queue to the exchange with the given topic pattern (AMQP
// "#"/"*" semantics) and feeds each consumed envelope through receive until
// the context is cancelled. Malformed bodies are rejected without requeue.
func (b *Bridge) Consume(ctx context.Context, queue, pattern string, receive ReceiveFunc) error {
	q, err := b.channel.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := b.channel.QueueBind(q.Name, pattern, b.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := b.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				env, err := contracts.UnmarshalEnvelope(delivery.Body)
				if err != nil {
					b.logger.Warn("rejecting malformed envelope",
						"messageId", delivery.MessageId, "error", err)
					delivery.Nack(false, false)
					continue
				}
				if err := receive(ctx, env); err != nil {
					b.logger.Warn("receive failed, requeueing",
						"envelopeId", env.ID, "error", err)
					delivery.Nack(false, true)
					continue
				}
				delivery.Ack(false)
			}
		}
	}()
	return nil
}

// Close shuts down the channel and connection.
func (b *Bridge) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
