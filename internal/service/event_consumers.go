package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minConsumerConcurrency = 1

// EventDispatcher is the pipeline surface the queue consumers drive.
type EventDispatcher interface {
	SubmitTransaction(ctx context.Context, event domain.TransactionEvent) (*domain.DispatchResult, error)
	SubmitAccountStatus(ctx context.Context, event domain.AccountStatusEvent) (*domain.DispatchResult, error)
	ProcessAccountUpdate(ctx context.Context, event domain.AccountUpdateEvent) (*domain.DispatchResult, error)
}

// EventConsumers runs one independent consumer task per inbound queue, each
// decoding a single event schema.
type EventConsumers struct {
	dispatcher  EventDispatcher
	consumer    queue.Consumer
	concurrency int
	logger      *zap.Logger
}

func NewEventConsumers(
	dispatcher EventDispatcher,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
) (*EventConsumers, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minConsumerConcurrency {
		concurrency = minConsumerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventConsumers{
		dispatcher:  dispatcher,
		consumer:    consumer,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Start consumes every inbound queue with the configured per-queue
// concurrency until ctx is cancelled.
func (s *EventConsumers) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for _, binding := range queue.InboundBindings() {
		handler, err := s.handlerFor(binding.Queue)
		if err != nil {
			return err
		}

		for i := 0; i < s.concurrency; i++ {
			queueName := binding.Queue
			workerID := i + 1

			g.Go(func() error {
				s.logger.Info("consumer started",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
				)

				if err := s.consumer.Consume(groupCtx, queueName, handler); err != nil {
					s.logger.Error("consumer stopped with error",
						zap.Int("workerId", workerID),
						zap.String("queue", queueName),
						zap.Error(err),
					)
					return err
				}

				s.logger.Info("consumer stopped",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
				)
				return nil
			})
		}
	}

	return g.Wait()
}

func (s *EventConsumers) handlerFor(queueName string) (queue.MessageHandler, error) {
	switch queueName {
	case queue.TransactionQueue:
		return s.handleTransaction, nil
	case queue.AccountStatusQueue:
		return s.handleAccountStatus, nil
	case queue.AccountUpdateQueue:
		return s.handleAccountUpdate, nil
	}
	return nil, fmt.Errorf("no handler for queue %q", queueName)
}

func (s *EventConsumers) handleTransaction(ctx context.Context, d queue.Delivery) error {
	var event domain.TransactionEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return queue.Reject(fmt.Errorf("malformed transaction event: %w", err))
	}

	ctx = withDeliveryCorrelation(ctx, d)
	result, err := s.dispatcher.SubmitTransaction(ctx, event)
	return s.settle(ctx, d, "transaction notification processed", result, err)
}

func (s *EventConsumers) handleAccountStatus(ctx context.Context, d queue.Delivery) error {
	var event domain.AccountStatusEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return queue.Reject(fmt.Errorf("malformed account status event: %w", err))
	}

	ctx = withDeliveryCorrelation(ctx, d)
	result, err := s.dispatcher.SubmitAccountStatus(ctx, event)
	return s.settle(ctx, d, "account status notification processed", result, err)
}

func (s *EventConsumers) handleAccountUpdate(ctx context.Context, d queue.Delivery) error {
	var event domain.AccountUpdateEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return queue.Reject(fmt.Errorf("malformed account update event: %w", err))
	}

	ctx = withDeliveryCorrelation(ctx, d)
	result, err := s.dispatcher.ProcessAccountUpdate(ctx, event)
	return s.settle(ctx, d, "account update processed", result, err)
}

// settle maps a pipeline outcome onto the ack policy: bad input is
// dead-lettered, infrastructure faults are requeued, everything else acks.
func (s *EventConsumers) settle(ctx context.Context, d queue.Delivery, msg string, result *domain.DispatchResult, err error) error {
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("queue", d.Queue))

	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			return queue.Reject(err)
		}
		return err
	}

	if result != nil {
		logger.Info(msg,
			zap.String("notificationId", result.NotificationID),
			zap.String("status", result.Status.String()),
			zap.String("outcome", result.Message),
		)
	}
	return nil
}

func withDeliveryCorrelation(ctx context.Context, d queue.Delivery) context.Context {
	correlationID := d.CorrelationID
	if correlationID == "" {
		correlationID = d.MessageID
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return observability.WithCorrelationID(ctx, correlationID)
}
