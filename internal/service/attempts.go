package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"go.uber.org/zap"
)

// attemptLog appends delivery attempts. Write failures are logged and never
// change the outcome of a delivery.
type attemptLog struct {
	attempts repository.AttemptRepository
	logger   *zap.Logger
	now      func() time.Time
}

func (l attemptLog) record(
	ctx context.Context,
	notificationID string,
	attemptNumber int,
	source domain.AttemptSource,
	resp *provider.ProviderResponse,
	sendErr error,
) {
	if l.attempts == nil {
		return
	}

	attempt := &domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		AttemptNumber:  attemptNumber,
		Source:         source,
		CreatedAt:      l.now().UTC(),
	}
	if resp != nil && strings.TrimSpace(resp.MessageID) != "" {
		value := resp.MessageID
		attempt.ProviderMessageID = &value
	}
	if sendErr != nil {
		value := sendErr.Error()
		attempt.Error = &value
	}

	if err := l.attempts.Create(context.WithoutCancel(ctx), attempt); err != nil {
		l.logger.Warn("failed to record delivery attempt",
			zap.String("notificationId", notificationID),
			zap.Int("attempt", attemptNumber),
			zap.Error(err),
		)
	}
}

// next returns the attempt number that follows the ones already logged.
func (l attemptLog) next(ctx context.Context, notificationID string) int {
	if l.attempts == nil {
		return 1
	}
	existing, err := l.attempts.ListByNotificationID(ctx, notificationID)
	if err != nil {
		l.logger.Warn("failed to count delivery attempts",
			zap.String("notificationId", notificationID),
			zap.Error(err),
		)
		return 1
	}
	return len(existing) + 1
}

func channelKey(c domain.Channel) string {
	return strings.ToLower(c.String())
}
