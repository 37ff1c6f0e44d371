// Package broker wraps the RabbitMQ connection and queue topology shared
// by the heartbeat emitter and the ingestion worker.
package broker

import (
	"context"
	"fmt"

	"detak/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Dial creates a new RabbitMQ connection.
func Dial(cfg config.RabbitMQConfig) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(cfg.URL(), amqp.Config{
		Heartbeat: cfg.Heartbeat,
		Vhost:     cfg.VHost,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareTopology declares the heartbeat queue and its dead-letter queue.
// Messages nacked without requeue are routed to the dead-letter queue by
// the broker instead of being dropped or redelivered forever. Both sides
// of the pipeline declare the same topology so startup order does not
// matter.
func DeclareTopology(ch *amqp.Channel, cfg config.RabbitMQConfig) error {
	if _, err := ch.QueueDeclare(
		cfg.DeadLetterQueue,
		true,  // durable: parked failures survive broker restart
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}

	if _, err := ch.QueueDeclare(
		cfg.Queue,
		false, // durable: heartbeats do not survive broker restart
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": cfg.DeadLetterQueue,
		},
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	return nil
}

// Publisher publishes heartbeat messages to the queue.
type Publisher struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *zap.Logger
}

// NewPublisher connects, declares topology and returns a ready publisher.
func NewPublisher(cfg config.RabbitMQConfig, logger *zap.Logger) (*Publisher, error) {
	conn, err := Dial(cfg)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareTopology(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:   conn,
		ch:     ch,
		queue:  cfg.Queue,
		logger: logger,
	}, nil
}

// Publish sends one JSON message with non-persistent delivery. Survival
// across broker restarts is explicitly not guaranteed for heartbeats.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Body:         body,
		},
	)
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.logger.Warn("Failed to close channel", zap.Error(err))
	}
	if p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}
