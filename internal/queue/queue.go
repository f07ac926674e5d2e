package queue

import (
	"context"
	"errors"
	"fmt"
)

// Exchanges.
const (
	TransactionExchange = "transaction.exchange"
	AccountExchange     = "account.exchange"
	EventsExchange      = "notification.events"
	DLXExchange         = "notification.dlx"
)

// Inbound queues and their routing keys.
const (
	TransactionQueue   = "transaction.notification.queue"
	AccountStatusQueue = "account.status.queue"
	AccountUpdateQueue = "account.update.queue"

	TransactionRoutingKey   = "transaction.notification"
	AccountStatusRoutingKey = "account.status.change"
	AccountUpdateRoutingKey = "account.update"
)

// Binding ties an inbound queue to the exchange and routing key producers use.
type Binding struct {
	Exchange   string
	RoutingKey string
	Queue      string
}

var inboundBindings = []Binding{
	{Exchange: TransactionExchange, RoutingKey: TransactionRoutingKey, Queue: TransactionQueue},
	{Exchange: AccountExchange, RoutingKey: AccountStatusRoutingKey, Queue: AccountStatusQueue},
	{Exchange: AccountExchange, RoutingKey: AccountUpdateRoutingKey, Queue: AccountUpdateQueue},
}

// InboundBindings returns the consumed queues (3 total).
func InboundBindings() []Binding {
	return append([]Binding(nil), inboundBindings...)
}

// DLQName returns the dead-letter queue for an inbound queue, e.g. dlq.account.update.queue.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// Delivery is one consumed message handed to a MessageHandler.
type Delivery struct {
	Queue         string
	RoutingKey    string
	MessageID     string
	CorrelationID string
	Body          []byte
}

// MessageHandler processes a delivery. A nil error acks it; an error wrapped
// with Reject dead-letters it; any other error requeues it.
type MessageHandler func(ctx context.Context, d Delivery) error

// Consumer consumes messages from a queue until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// Outgoing is a message to publish to an exchange.
type Outgoing struct {
	Exchange      string
	RoutingKey    string
	MessageID     string
	CorrelationID string
	Payload       any
}

// Publisher publishes JSON messages to exchanges.
type Publisher interface {
	Publish(ctx context.Context, msg Outgoing) error
	Close() error
}

// Deduper suppresses redeliveries of messages that were already handled.
type Deduper interface {
	Seen(ctx context.Context, scope, messageID string) (bool, error)
	Remember(ctx context.Context, scope, messageID string) error
}

// RejectError marks a message that must not be redelivered.
type RejectError struct {
	Err error
}

func (e *RejectError) Error() string {
	if e == nil || e.Err == nil {
		return "message rejected"
	}
	return "message rejected: " + e.Err.Error()
}

func (e *RejectError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Reject wraps err so the consumer dead-letters the message.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return &RejectError{Err: err}
}

func IsReject(err error) bool {
	var rejectErr *RejectError
	return errors.As(err, &rejectErr)
}
