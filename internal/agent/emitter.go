// Package agent implements the heartbeat emitter that runs on each
// monitored host.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"detak/internal/config"
	"detak/internal/types"

	"go.uber.org/zap"
)

// publisher abstracts the broker so the emitter can be tested without a
// live connection.
type publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Emitter publishes one heartbeat per interval. It keeps no state and
// performs no retries: a failed publish is logged and the cycle is
// abandoned, recovery is left to the next tick or external supervision.
type Emitter struct {
	cfg    config.AgentConfig
	pub    publisher
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewEmitter creates a new heartbeat emitter.
func NewEmitter(cfg config.AgentConfig, pub publisher, logger *zap.Logger) *Emitter {
	return &Emitter{
		cfg:    cfg,
		pub:    pub,
		logger: logger,
	}
}

// Start begins the publish loop. It emits one heartbeat immediately and
// then on every interval tick until the context is canceled.
func (e *Emitter) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done != nil {
		return errors.New("emitter already started")
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go e.run(ctx)
	return nil
}

// Stop stops the publish loop and waits for it to exit.
func (e *Emitter) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done == nil {
		return nil
	}
	e.cancel()
	<-e.done
	e.done = nil
	return nil
}

func (e *Emitter) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.emit(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.emit(ctx)
		}
	}
}

func (e *Emitter) emit(ctx context.Context) {
	body, err := json.Marshal(e.Payload(time.Now()))
	if err != nil {
		e.logger.Error("Failed to encode heartbeat", zap.Error(err))
		return
	}

	if err := e.pub.Publish(ctx, body); err != nil {
		e.logger.Error("Failed to publish heartbeat",
			zap.String("uuid", e.cfg.UUID),
			zap.Error(err))
		return
	}

	e.logger.Info("Sent heartbeat",
		zap.String("uuid", e.cfg.UUID),
		zap.String("queue_payload", string(body)))
}

// Payload builds the heartbeat message for the given instant. The
// timestamp is always recorded in UTC.
func (e *Emitter) Payload(now time.Time) map[string]string {
	msg := map[string]string{
		types.FieldTimestamp: now.UTC().Format(types.TimestampLayout),
		types.FieldUUID:      e.cfg.UUID,
	}
	if e.cfg.ObjectName != "" {
		msg[types.FieldObjectName] = e.cfg.ObjectName
	}
	return msg
}
