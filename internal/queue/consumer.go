package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// acknowledger is the subset of amqp.Delivery the consumer settles through.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	Reject(requeue bool) error
}

type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	deduper  Deduper
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// SetDeduper enables message-id based duplicate suppression.
func (c *RabbitMQConsumer) SetDeduper(deduper Deduper) {
	if c == nil {
		return
	}
	c.deduper = deduper
}

func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("consumer interrupted, retrying",
			zap.String("queue", queue),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			delivery := Delivery{
				Queue:         queue,
				RoutingKey:    d.RoutingKey,
				MessageID:     d.MessageId,
				CorrelationID: d.CorrelationId,
				Body:          d.Body,
			}
			if err := c.handleDelivery(ctx, d, delivery, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, ack acknowledger, d Delivery, handler MessageHandler) error {
	logger := c.logger.With(
		zap.String("queue", d.Queue),
		zap.String("messageId", d.MessageID),
		zap.String("correlationId", d.CorrelationID),
	)

	if c.deduper != nil {
		seen, err := c.deduper.Seen(ctx, d.Queue, d.MessageID)
		if err != nil {
			// Fail open when redis is unavailable.
			logger.Warn("dedup check failed, processing anyway", zap.Error(err))
			seen = false
		}
		if seen {
			logger.Info("skipping duplicate delivery")
			if err := ack.Ack(false); err != nil {
				return fmt.Errorf("failed to ack duplicate delivery: %w", err)
			}
			return nil
		}
	}

	handlerErr := handler(ctx, d)
	if handlerErr == nil {
		// Remembered before the ack so a lost ack does not reprocess.
		if c.deduper != nil {
			if err := c.deduper.Remember(context.WithoutCancel(ctx), d.Queue, d.MessageID); err != nil {
				logger.Warn("failed to remember handled message", zap.Error(err))
			}
		}
		if err := ack.Ack(false); err != nil {
			return fmt.Errorf("failed to ack delivery: %w", err)
		}
		return nil
	}

	if IsReject(handlerErr) {
		logger.Warn("rejecting message", zap.Error(handlerErr))
		if err := ack.Reject(false); err != nil {
			return fmt.Errorf("failed to reject message: %w", err)
		}
		return nil
	}

	logger.Error("message handler failed, requeueing", zap.Error(handlerErr))
	if err := ack.Nack(false, true); err != nil {
		return fmt.Errorf("handler failed and nack failed: %w", err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

var _ Consumer = (*RabbitMQConsumer)(nil)

var _ acknowledger = amqp.Delivery{}
