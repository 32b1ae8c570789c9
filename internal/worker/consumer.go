// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/message-archiver/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	maxAckPending = 100

	defaultDrainTimeout = 30 * time.Second
)

// Consumer binds a Worker to a durable JetStream pull consumer.
type Consumer struct {
	cfg    config.NATSConfig
	worker *Worker
	logger *slog.Logger
}

func NewConsumer(cfg config.NATSConfig, w *Worker, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, worker: w, logger: logger}
}

func streamConfig(cfg config.NATSConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}
}

func consumerConfig(cfg config.NATSConfig) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:          cfg.Consumer,
		Durable:       cfg.Consumer,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: maxAckPending,
	}
}

// Run connects, ensures the stream and consumer exist, and handles messages
// until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	nc, err := nats.Connect(c.cfg.URL,
		nats.Name("message-archiver"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.logger.Info("nats reconnected", "url", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, streamConfig(c.cfg))
	if err != nil {
		return fmt.Errorf("create/update stream %s: %w", c.cfg.Stream, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, consumerConfig(c.cfg))
	if err != nil {
		return fmt.Errorf("create/update consumer %s: %w", c.cfg.Consumer, err)
	}

	// Handlers outlive shutdown so an in-flight write can finish and be acked.
	handlerBase := context.WithoutCancel(ctx)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		hctx, cancel := c.handlerContext(handlerBase)
		defer cancel()
		// Handle logs and settles the message itself.
		_ = c.worker.Handle(hctx, msg)
	})
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.Info("consumer started",
		"stream", c.cfg.Stream,
		"subject", c.cfg.Subject,
		"consumer", c.cfg.Consumer,
		"max_deliver", c.cfg.MaxDeliver,
	)

	<-ctx.Done()
	c.logger.Info("consumer stopping")
	if !drain(cc, c.drainTimeout()) {
		c.logger.Warn("consumer drain timed out", "timeout", c.drainTimeout())
	}
	return nil
}

// handlerContext bounds one message by its ack wait; past that JetStream
// redelivers anyway.
func (c *Consumer) handlerContext(base context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.AckWait > 0 {
		return context.WithTimeout(base, c.cfg.AckWait)
	}
	return context.WithCancel(base)
}

func (c *Consumer) drainTimeout() time.Duration {
	if c.cfg.AckWait > 0 {
		return c.cfg.AckWait
	}
	return defaultDrainTimeout
}

type drainer interface {
	Drain()
	Closed() <-chan struct{}
}

// drain stops new deliveries, lets buffered and in-flight messages finish and
// reports whether that happened within timeout.
func drain(cc drainer, timeout time.Duration) bool {
	cc.Drain()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-cc.Closed():
		return true
	case <-timer.C:
		return false
	}
}
