package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
)

// QueryService serves read access to notification records.
type QueryService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
}

func NewQueryService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
) (*QueryService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	return &QueryService{notifications: notifications, attempts: attempts}, nil
}

// List returns records oldest first, optionally filtered by status and by a
// creation time window.
func (s *QueryService) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, error) {
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, fmt.Errorf("%w: from must not be after to", domain.ErrValidation)
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, *params.Status)
	}
	return s.notifications.List(ctx, params)
}

// Recent returns the most recently created records, newest first.
func (s *QueryService) Recent(ctx context.Context) ([]domain.Notification, error) {
	return s.notifications.ListRecent(ctx, repository.RecentLimit)
}

func (s *QueryService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, id)
}

// Attempts lists the delivery attempts of an existing record.
func (s *QueryService) Attempts(ctx context.Context, id string) ([]domain.DeliveryAttempt, error) {
	n, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.attempts.ListByNotificationID(ctx, n.ID)
}

func (s *QueryService) Stats(ctx context.Context) (map[domain.Status]int64, error) {
	return s.notifications.CountByStatus(ctx)
}
