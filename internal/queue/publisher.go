package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, msg Outgoing) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	publishing, err := buildPublishing(msg, p.now())
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.PublishWithContext(ctx, msg.Exchange, msg.RoutingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish to %s/%s: %w", msg.Exchange, msg.RoutingKey, err)
	}

	return nil
}

func buildPublishing(msg Outgoing, now time.Time) (amqp.Publishing, error) {
	if msg.Exchange == "" {
		return amqp.Publishing{}, fmt.Errorf("exchange is required")
	}
	if msg.RoutingKey == "" {
		return amqp.Publishing{}, fmt.Errorf("routing key is required")
	}

	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now.UTC(),
		MessageId:     msg.MessageID,
		CorrelationId: msg.CorrelationID,
		Body:          payload,
	}, nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

var _ Publisher = (*RabbitMQPublisher)(nil)
