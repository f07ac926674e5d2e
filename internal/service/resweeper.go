package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/contact"
	"github.com/kursadbilgin/notification-dispatcher/internal/customer"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"github.com/kursadbilgin/notification-dispatcher/internal/ratelimit"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var errNoDeliverableAddress = errors.New("no deliverable address")

// ResweepSummary counts the outcomes of one sweep over FAILED records.
type ResweepSummary struct {
	Scanned int
	Resent  int
	Failed  int
	Skipped int
}

// Resweeper retries every FAILED record once per run. A record that fails
// again keeps its status and error message.
type Resweeper struct {
	notifications repository.NotificationRepository
	provider      provider.Provider
	logger        *zap.Logger
	attemptLog    attemptLog

	metrics     *observability.Metrics
	publisher   queue.Publisher
	rateLimiter ratelimit.RateLimiter
	sealer      contact.Sealer
	directory   customer.Directory
	now         func() time.Time

	running atomic.Bool
}

func NewResweeper(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	deliveryProvider provider.Provider,
	logger *zap.Logger,
) (*Resweeper, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if deliveryProvider == nil {
		return nil, fmt.Errorf("delivery provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Resweeper{
		notifications: notifications,
		provider:      deliveryProvider,
		logger:        logger,
		rateLimiter:   ratelimit.Unlimited{},
		sealer:        contact.NopSealer{},
		now:           time.Now,
	}
	r.attemptLog = attemptLog{attempts: attempts, logger: logger, now: func() time.Time { return r.now() }}
	return r, nil
}

func (r *Resweeper) SetMetrics(metrics *observability.Metrics) { r.metrics = metrics }

func (r *Resweeper) SetPublisher(publisher queue.Publisher) { r.publisher = publisher }

func (r *Resweeper) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	r.rateLimiter = limiter
}

func (r *Resweeper) SetSealer(sealer contact.Sealer) {
	if sealer == nil {
		sealer = contact.NopSealer{}
	}
	r.sealer = sealer
}

func (r *Resweeper) SetCustomerDirectory(directory customer.Directory) { r.directory = directory }

// Trigger starts a sweep in the background and returns immediately. It
// returns false when a sweep is already running. The sweep outlives ctx
// cancellation but keeps its values.
func (r *Resweeper) Trigger(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}

	sweepCtx := context.WithoutCancel(ctx)
	go func() {
		defer r.running.Store(false)
		if _, err := r.Run(sweepCtx); err != nil {
			observability.WithContextLogger(r.logger, sweepCtx).Error("resweep failed", zap.Error(err))
		}
	}()
	return true
}

// Start sweeps every interval until ctx is done. A non-positive interval
// disables periodic sweeps.
func (r *Resweeper) Start(ctx context.Context, interval time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !r.running.CompareAndSwap(false, true) {
				r.logger.Debug("resweep already running, skipping tick")
				continue
			}
			_, err := r.Run(ctx)
			r.running.Store(false)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("periodic resweep failed", zap.Error(err))
			}
		}
	}
}

// Run makes one delivery attempt for each FAILED record. Only a failure to
// list records is returned; per-record failures are logged and counted.
func (r *Resweeper) Run(ctx context.Context) (ResweepSummary, error) {
	ctx, span := observability.Tracer().Start(ctx, "resweep.run")
	defer span.End()

	logger := observability.WithContextLogger(r.logger, ctx)

	failed, err := r.notifications.ListByStatus(ctx, domain.StatusFailed, 0)
	if err != nil {
		return ResweepSummary{}, fmt.Errorf("failed to list failed notifications: %w", err)
	}

	summary := ResweepSummary{Scanned: len(failed)}
	logger.Info("retrying failed notifications", zap.Int("count", len(failed)))

	for i := range failed {
		if ctx.Err() != nil {
			break
		}
		switch outcome := r.resend(ctx, logger, &failed[i]); outcome {
		case observability.ResweepOutcomeResent:
			summary.Resent++
		case observability.ResweepOutcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	span.SetAttributes(
		attribute.Int("resweep.scanned", summary.Scanned),
		attribute.Int("resweep.resent", summary.Resent),
		attribute.Int("resweep.failed", summary.Failed),
		attribute.Int("resweep.skipped", summary.Skipped),
	)
	logger.Info("resweep finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("resent", summary.Resent),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func (r *Resweeper) resend(ctx context.Context, logger *zap.Logger, n *domain.Notification) (outcome string) {
	defer func() { r.metrics.IncResweepResult(outcome) }()

	logger = logger.With(
		zap.String("notificationId", n.ID),
		zap.String("recipient", n.RecipientEmail),
	)

	recipient, err := r.resolveRecipient(ctx, n)
	if err != nil {
		logger.Warn("skipping failed notification", zap.Error(err))
		return observability.ResweepOutcomeSkipped
	}

	attempt := r.attemptLog.next(ctx, n.ID)
	resp, sendErr := sendOnce(ctx, r.rateLimiter, r.provider, n, recipient)
	r.attemptLog.record(ctx, n.ID, attempt, domain.AttemptSourceResweep, resp, sendErr)
	if sendErr != nil {
		logger.Error("retry failed for notification", zap.Error(sendErr))
		return observability.ResweepOutcomeFailed
	}

	at := r.now().UTC()
	if err := r.notifications.MarkResent(ctx, n.ID, at); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			logger.Info("notification left FAILED during resend", zap.Error(err))
			return observability.ResweepOutcomeSkipped
		}
		logger.Error("failed to persist resent status", zap.Error(err))
		return observability.ResweepOutcomeFailed
	}

	n.Status = domain.StatusSent
	n.SentAt = &at
	n.FailedAt = nil
	n.ErrorMessage = nil
	publishOutcome(ctx, r.publisher, logger, n, at)
	logger.Info("failed notification resent")
	return observability.ResweepOutcomeResent
}

// resolveRecipient recovers the real address of a record: the sealed copy
// first, then the customer directory. Masked addresses are never used.
func (r *Resweeper) resolveRecipient(ctx context.Context, n *domain.Notification) (string, error) {
	if strings.TrimSpace(n.RecipientEmailSealed) != "" {
		address, err := r.sealer.Open(n.RecipientEmailSealed)
		if err == nil && strings.TrimSpace(address) != "" {
			return address, nil
		}
		if err != nil {
			r.logger.Warn("failed to open sealed recipient",
				zap.String("notificationId", n.ID),
				zap.Error(err),
			)
		}
	}

	if n.CustomerID != nil && r.directory != nil {
		details, err := r.directory.Lookup(ctx, *n.CustomerID)
		if err != nil {
			return "", fmt.Errorf("customer lookup: %w", err)
		}
		return details.Email, nil
	}

	return "", errNoDeliverableAddress
}
