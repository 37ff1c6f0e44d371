// Package worker implements the heartbeat ingestion consumer.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"detak/internal/broker"
	"detak/internal/config"
	"detak/internal/metrics"
	"detak/internal/storage"
	"detak/internal/types"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer subscribes to the heartbeat queue in manual-acknowledgment
// mode and persists each delivery. It processes one message at a time;
// scale-out happens by running more instances against the same queue.
// Duplicate and out-of-order deliveries are expected and tolerated: the
// registry upsert is idempotent and the aggregator sorts at read time.
type Consumer struct {
	cfg    config.RabbitMQConfig
	store  storage.Store
	logger *zap.Logger

	conn   *amqp.Connection
	ch     *amqp.Channel
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewConsumer creates a new ingestion consumer.
func NewConsumer(cfg config.RabbitMQConfig, store storage.Store, logger *zap.Logger) *Consumer {
	return &Consumer{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
}

// Start connects to the broker, declares the queue topology and begins
// consuming until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		return errors.New("consumer already started")
	}

	conn, err := broker.Dial(c.cfg)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	// One unacknowledged delivery in flight per instance.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	if err := broker.DeclareTopology(ch, c.cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	deliveries, err := ch.Consume(
		c.cfg.Queue,
		"",    // consumer tag
		false, // autoAck: never, a crash mid-processing must redeliver
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	c.conn = conn
	c.ch = ch

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	c.logger.Info("Waiting for heartbeats",
		zap.String("queue", c.cfg.Queue),
		zap.String("dead_letter_queue", c.cfg.DeadLetterQueue))

	go c.run(ctx, deliveries)
	return nil
}

// Stop cancels the consume loop and closes the broker connection.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done == nil {
		return nil
	}
	c.cancel()

	if err := c.ch.Close(); err != nil {
		c.logger.Warn("Failed to close channel", zap.Error(err))
	}
	if !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("Failed to close connection", zap.Error(err))
		}
	}

	<-c.done
	c.done = nil
	return nil
}

func (c *Consumer) run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Delivery channel closed")
				return
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery processes one message end to end and settles it with
// the broker. Malformed payloads are a permanent failure class: they are
// rejected without requeue, which routes them to the dead-letter queue.
// A storage failure is transient: the message is requeued and retried by
// broker redelivery, the system's only retry mechanism.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	metrics.HeartbeatsReceived.Inc()
	c.logger.Info("Received message", zap.ByteString("body", d.Body))

	hb, err := types.ParseHeartbeat(d.Body)
	if err != nil {
		c.logger.Error("Rejecting heartbeat to dead-letter queue", zap.Error(err))
		if err := d.Nack(false, false); err != nil {
			c.logger.Error("Failed to nack message", zap.Error(err))
		}
		metrics.HeartbeatsDeadLettered.Inc()
		return
	}

	receivedAt := time.Now().UTC()

	if err := c.persist(ctx, hb, receivedAt); err != nil {
		c.logger.Warn("Heartbeat storage failed, requeuing",
			zap.String("uuid", hb.UUID),
			zap.Error(err))
		if err := d.Nack(false, true); err != nil {
			c.logger.Error("Failed to nack message", zap.Error(err))
		}
		metrics.HeartbeatsRequeued.Inc()
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("uuid", hb.UUID),
			zap.Error(err))
		return
	}
	metrics.HeartbeatsAcked.Inc()

	c.logger.Info("Heartbeat stored",
		zap.String("uuid", hb.UUID),
		zap.String("timestamp", hb.Timestamp))
}

// persist runs both halves of the logical persistence attempt: register
// the sighting, then append the event. Either failing fails ingestion.
func (c *Consumer) persist(ctx context.Context, hb *types.Heartbeat, receivedAt time.Time) error {
	if err := c.store.UpsertAgentSighting(ctx, hb.UUID, hb.ObjectName); err != nil {
		return err
	}
	return c.store.AppendEvent(ctx, hb.Document(receivedAt))
}
