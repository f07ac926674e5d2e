package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/contact"
	"github.com/kursadbilgin/notification-dispatcher/internal/customer"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/masking"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/policy"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"github.com/kursadbilgin/notification-dispatcher/internal/ratelimit"
	"github.com/kursadbilgin/notification-dispatcher/internal/render"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Outcome strings returned to callers.
const (
	MessageNotificationProcessed  = "Notification processed"
	MessageAccountStatusProcessed = "Account status notification processed"
	ReasonStatusUnchanged         = "status unchanged"
)

// Event labels for metrics and spans.
const (
	EventTransaction   = "transaction"
	EventAccountStatus = "account_status"
	EventAccountUpdate = "account_update"
)

// StatusTracker remembers the last notified status per account.
type StatusTracker interface {
	Last(ctx context.Context, accountID int64) (status string, found bool, err error)
	Record(ctx context.Context, accountID int64, status string) error
}

// Dispatcher runs one event through gating, rendering, the write-ahead
// PENDING record, delivery with retry and the final status write.
type Dispatcher struct {
	notifications repository.NotificationRepository
	provider      provider.Provider
	gate          *policy.Gate
	renderer      *render.Renderer
	retryPolicy   retry.Policy
	logger        *zap.Logger
	attemptLog    attemptLog

	metrics         *observability.Metrics
	publisher       queue.Publisher
	rateLimiter     ratelimit.RateLimiter
	sealer          contact.Sealer
	directory       customer.Directory
	tracker         StatusTracker
	deliveryTimeout time.Duration
	now             func() time.Time
}

func NewDispatcher(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	deliveryProvider provider.Provider,
	gate *policy.Gate,
	renderer *render.Renderer,
	retryPolicy retry.Policy,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if deliveryProvider == nil {
		return nil, fmt.Errorf("delivery provider is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("gating policy is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		notifications: notifications,
		provider:      deliveryProvider,
		gate:          gate,
		renderer:      renderer,
		retryPolicy:   retryPolicy,
		logger:        logger,
		rateLimiter:   ratelimit.Unlimited{},
		sealer:        contact.NopSealer{},
		now:           time.Now,
	}
	d.attemptLog = attemptLog{attempts: attempts, logger: logger, now: d.clock}
	return d, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) { d.metrics = metrics }

func (d *Dispatcher) SetPublisher(publisher queue.Publisher) { d.publisher = publisher }

func (d *Dispatcher) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	d.rateLimiter = limiter
}

func (d *Dispatcher) SetSealer(sealer contact.Sealer) {
	if sealer == nil {
		sealer = contact.NopSealer{}
	}
	d.sealer = sealer
}

func (d *Dispatcher) SetCustomerDirectory(directory customer.Directory) { d.directory = directory }

func (d *Dispatcher) SetStatusTracker(tracker StatusTracker) { d.tracker = tracker }

// SetDeliveryTimeout caps the wall-clock time of one event's delivery,
// backoff included. Zero disables the cap.
func (d *Dispatcher) SetDeliveryTimeout(timeout time.Duration) { d.deliveryTimeout = timeout }

func (d *Dispatcher) clock() time.Time { return d.now() }

// SubmitTransaction notifies the customer about a high-value transaction.
// Transactions below the threshold return a PENDING result without a record.
func (d *Dispatcher) SubmitTransaction(ctx context.Context, event domain.TransactionEvent) (*domain.DispatchResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "dispatch.transaction",
		trace.WithAttributes(attribute.Int64("transaction.id", event.TransactionID)),
	)
	defer span.End()

	d.metrics.IncDispatchInFlight(EventTransaction)
	defer d.metrics.DecDispatchInFlight(EventTransaction)

	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.Int64("transactionId", event.TransactionID),
	)

	if err := event.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	decision := d.gate.EvaluateTransaction(event)
	if !decision.Notify {
		d.metrics.IncNotificationGated(EventTransaction)
		span.SetAttributes(attribute.Bool("notification.gated", true))
		logger.Info("transaction below threshold, skipping notification",
			zap.String("amount", event.Amount.String()),
			zap.String("threshold", d.gate.Threshold().String()),
		)
		return &domain.DispatchResult{Status: domain.StatusPending, Message: decision.Reason}, nil
	}

	msg, err := d.renderer.Transaction(event)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	record := &domain.Notification{
		RecipientEmail: masking.MaskEmail(event.RecipientEmail),
		RecipientPhone: masking.MaskPhone(event.RecipientPhone),
		Kind:           decision.Kind,
		Channel:        decision.Channel,
		Subject:        msg.Subject,
		Message:        msg.Body,
		Status:         domain.StatusPending,
		ReferenceID:    strconv.FormatInt(event.TransactionID, 10),
	}

	n, err := d.dispatch(ctx, logger, record, event.RecipientEmail)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("notification.id", n.ID), attribute.String("notification.status", n.Status.String()))

	return &domain.DispatchResult{
		NotificationID: n.ID,
		Status:         n.Status,
		Message:        MessageNotificationProcessed,
	}, nil
}

// SubmitAccountStatus notifies the customer about an account status change.
// Every status change is notified.
func (d *Dispatcher) SubmitAccountStatus(ctx context.Context, event domain.AccountStatusEvent) (*domain.DispatchResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "dispatch.account_status",
		trace.WithAttributes(attribute.Int64("account.id", event.AccountID)),
	)
	defer span.End()

	d.metrics.IncDispatchInFlight(EventAccountStatus)
	defer d.metrics.DecDispatchInFlight(EventAccountStatus)

	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.Int64("accountId", event.AccountID),
		zap.String("accountNumber", masking.MaskAccountNumber(event.AccountNumber)),
	)

	result, err := d.submitAccountStatus(ctx, logger, event)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	d.recordStatus(ctx, logger, event.AccountID, domain.NormalizeAccountStatus(event.NewStatus.String()))
	return result, nil
}

// recordStatus runs only once the event was handled, so a redelivery of an
// event that never completed is not mistaken for an unchanged status.
func (d *Dispatcher) recordStatus(ctx context.Context, logger *zap.Logger, accountID int64, status domain.AccountStatus) {
	if d.tracker == nil {
		return
	}
	if err := d.tracker.Record(context.WithoutCancel(ctx), accountID, status.String()); err != nil {
		logger.Warn("failed to record account status", zap.Error(err))
	}
}

func (d *Dispatcher) submitAccountStatus(ctx context.Context, logger *zap.Logger, event domain.AccountStatusEvent) (*domain.DispatchResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	decision := d.gate.EvaluateAccountStatus(event)
	if !decision.Notify {
		d.metrics.IncNotificationGated(EventAccountStatus)
		return &domain.DispatchResult{Status: domain.StatusPending, Message: decision.Reason}, nil
	}

	msg, err := d.renderer.AccountStatus(event)
	if err != nil {
		return nil, err
	}

	record := &domain.Notification{
		RecipientEmail: masking.MaskEmail(event.RecipientEmail),
		RecipientPhone: masking.MaskPhone(event.RecipientPhone),
		CustomerID:     event.CustomerID,
		Kind:           decision.Kind,
		Channel:        decision.Channel,
		Subject:        msg.Subject,
		Message:        msg.Body,
		Status:         domain.StatusPending,
		ReferenceID:    strconv.FormatInt(event.AccountID, 10),
	}

	n, err := d.dispatch(ctx, logger, record, event.RecipientEmail)
	if err != nil {
		return nil, err
	}

	return &domain.DispatchResult{
		NotificationID: n.ID,
		Status:         n.Status,
		Message:        MessageAccountStatusProcessed,
	}, nil
}

// ProcessAccountUpdate turns an account snapshot into a status-change
// notification when its status differs from the last one seen. Contact
// details come from the customer directory.
func (d *Dispatcher) ProcessAccountUpdate(ctx context.Context, event domain.AccountUpdateEvent) (*domain.DispatchResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "dispatch.account_update",
		trace.WithAttributes(attribute.Int64("account.id", event.AccountID)),
	)
	defer span.End()

	logger := observability.WithContextLogger(d.logger, ctx).With(zap.Int64("accountId", event.AccountID))

	result, err := d.processAccountUpdate(ctx, logger, event)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

func (d *Dispatcher) processAccountUpdate(ctx context.Context, logger *zap.Logger, event domain.AccountUpdateEvent) (*domain.DispatchResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	status := domain.NormalizeAccountStatus(event.Status.String())
	previous := domain.AccountStatusUnknown
	if d.tracker != nil {
		value, found, err := d.tracker.Last(ctx, event.AccountID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		if found {
			previous = domain.NormalizeAccountStatus(value)
		}
		if found && previous == status {
			d.metrics.IncNotificationGated(EventAccountUpdate)
			logger.Debug("account status unchanged, skipping notification", zap.String("status", status.String()))
			return &domain.DispatchResult{Status: domain.StatusPending, Message: ReasonStatusUnchanged}, nil
		}
	}

	if d.directory == nil {
		return nil, fmt.Errorf("%w: customer directory is not configured", domain.ErrValidation)
	}

	details, err := d.directory.Lookup(ctx, event.CustomerID)
	if err != nil {
		return nil, err
	}

	customerID := event.CustomerID
	result, err := d.submitAccountStatus(ctx, logger, domain.AccountStatusEvent{
		AccountID:      event.AccountID,
		AccountNumber:  event.AccountNumber,
		OldStatus:      previous,
		NewStatus:      status,
		CustomerName:   details.Name,
		RecipientEmail: details.Email,
		RecipientPhone: details.Phone,
		CustomerID:     &customerID,
	})
	if err != nil {
		return nil, err
	}

	d.recordStatus(ctx, logger, event.AccountID, status)
	return result, nil
}

// dispatch persists the PENDING record, delivers to the unmasked recipient
// and writes the final status. Only failures before delivery are returned.
func (d *Dispatcher) dispatch(ctx context.Context, logger *zap.Logger, record *domain.Notification, recipient string) (*domain.Notification, error) {
	sealed, err := d.sealer.Seal(recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to seal recipient: %w", err)
	}
	record.RecipientEmailSealed = sealed

	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := d.notifications.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	logger = logger.With(
		zap.String("notificationId", record.ID),
		zap.String("kind", record.Kind.String()),
		zap.String("recipient", record.RecipientEmail),
	)
	kind := record.Kind.String()

	sendStart := d.now()
	sendErr := d.deliver(ctx, logger, record, recipient)

	// The outcome is written even when the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	at := d.now().UTC()

	if sendErr == nil {
		d.metrics.ObserveNotificationSendDuration(kind, d.now().Sub(sendStart))
		record.Status = domain.StatusSent
		record.SentAt = &at
		if err := d.notifications.MarkSent(persistCtx, record.ID, at); err != nil {
			logger.Error("failed to persist sent status", zap.Error(err))
		}
		d.metrics.IncNotificationSent(kind)
		logger.Info("notification sent")
	} else {
		reason := observability.FailureReasonPermanent
		if retry.IsExhausted(sendErr) || provider.IsTransient(sendErr) {
			reason = observability.FailureReasonRetryExhausted
		}
		errMsg := sendErr.Error()
		record.Status = domain.StatusFailed
		record.ErrorMessage = &errMsg
		record.FailedAt = &at
		if err := d.notifications.MarkFailed(persistCtx, record.ID, errMsg, at); err != nil {
			logger.Error("failed to persist failed status", zap.Error(err))
		}
		d.metrics.IncNotificationFailed(kind, reason)
		logger.Error("notification delivery failed", zap.String("reason", reason), zap.Error(sendErr))
	}

	publishOutcome(persistCtx, d.publisher, logger, record, at)
	return record, nil
}

func (d *Dispatcher) deliver(ctx context.Context, logger *zap.Logger, n *domain.Notification, recipient string) error {
	if d.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.deliveryTimeout)
		defer cancel()
	}

	kind := n.Kind.String()
	rp := d.retryPolicy
	rp.OnRetry = func(attempt int, delay time.Duration, err error) {
		d.metrics.IncDeliveryRetry(kind)
		logger.Warn("delivery attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
	}

	return rp.Do(ctx, func(ctx context.Context, attempt int) error {
		resp, err := sendOnce(ctx, d.rateLimiter, d.provider, n, recipient)
		d.attemptLog.record(ctx, n.ID, attempt, domain.AttemptSourcePipeline, resp, err)
		return err
	})
}

// sendOnce waits for a send slot on the record's channel and makes one
// provider call. A throttled slot counts as a transient failure.
func sendOnce(
	ctx context.Context,
	limiter ratelimit.RateLimiter,
	deliveryProvider provider.Provider,
	n *domain.Notification,
	recipient string,
) (*provider.ProviderResponse, error) {
	if err := limiter.Wait(ctx, channelKey(n.Channel)); err != nil {
		return nil, provider.Transient("rate limiter wait failed", err)
	}
	return deliveryProvider.Send(ctx, provider.Message{
		To:      recipient,
		Subject: n.Subject,
		Body:    n.Message,
	})
}

func publishOutcome(ctx context.Context, publisher queue.Publisher, logger *zap.Logger, n *domain.Notification, at time.Time) {
	if publisher == nil {
		return
	}
	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	if err := publisher.Publish(ctx, queue.NewOutcomeEvent(n, at).Outgoing(correlationID)); err != nil {
		logger.Warn("failed to publish outcome event", zap.Error(err))
	}
}

// IsGated reports whether a result is a policy no-op.
func IsGated(result *domain.DispatchResult) bool {
	return result != nil && result.NotificationID == "" && result.Status == domain.StatusPending
}
