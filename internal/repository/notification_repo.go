package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
)

// RecentLimit is the size of the recent-notifications view.
const RecentLimit = 10

type ListParams struct {
	Status *domain.Status
	From   *time.Time
	To     *time.Time
}

// NotificationRepository persists notification records. Final-status writes
// are conditional on the current status and return domain.ErrConflict when
// the record has already left the expected state.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	// List returns matching records ordered by creation time, oldest first.
	List(ctx context.Context, params ListParams) ([]domain.Notification, error)
	// ListRecent returns at most limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.Notification, error)
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Notification, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, errorMessage string, failedAt time.Time) error
	MarkResent(ctx context.Context, id string, sentAt time.Time) error
	// ReclaimStalePending fails records still PENDING that were created before cutoff.
	ReclaimStalePending(ctx context.Context, cutoff time.Time, errorMessage string, failedAt time.Time) (int64, error)
}

type GormNotificationRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db, now: time.Now}
}

func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Class 22 is a data exception; retrying the same row cannot succeed.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22") {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now().UTC()
	}

	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return storeError(err)
	}
	*n = *notificationModelToDomain(model)
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeError(err)
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.Notification, error) {
	query := r.db.WithContext(ctx).Model(&NotificationModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var models []NotificationModel
	if err := query.Order("created_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, storeError(err)
	}
	return toDomainList(models), nil
}

func (r *GormNotificationRepo) ListRecent(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit < 1 || limit > RecentLimit {
		limit = RecentLimit
	}

	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, storeError(err)
	}
	return toDomainList(models), nil
}

func (r *GormNotificationRepo) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Notification, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []NotificationModel
	if err := query.Find(&models).Error; err != nil {
		return nil, storeError(err)
	}
	return toDomainList(models), nil
}

type statusCount struct {
	Status domain.Status `gorm:"column:status"`
	Count  int64         `gorm:"column:count"`
}

func (r *GormNotificationRepo) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, storeError(err)
	}

	counts := map[domain.Status]int64{
		domain.StatusPending: 0,
		domain.StatusSent:    0,
		domain.StatusFailed:  0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *GormNotificationRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return r.transition(ctx, id, domain.StatusPending, map[string]any{
		"status":    domain.StatusSent,
		"sent_at":   sentAt,
		"failed_at": nil,
	})
}

func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id string, errorMessage string, failedAt time.Time) error {
	return r.transition(ctx, id, domain.StatusPending, map[string]any{
		"status":        domain.StatusFailed,
		"error_message": errorMessage,
		"failed_at":     failedAt,
		"sent_at":       nil,
	})
}

func (r *GormNotificationRepo) MarkResent(ctx context.Context, id string, sentAt time.Time) error {
	return r.transition(ctx, id, domain.StatusFailed, map[string]any{
		"status":        domain.StatusSent,
		"sent_at":       sentAt,
		"failed_at":     nil,
		"error_message": nil,
	})
}

func (r *GormNotificationRepo) transition(ctx context.Context, id string, from domain.Status, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return storeError(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: notification %s is no longer %s", domain.ErrConflict, id, from)
}

func (r *GormNotificationRepo) ReclaimStalePending(ctx context.Context, cutoff time.Time, errorMessage string, failedAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("status = ? AND created_at < ?", domain.StatusPending, cutoff).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"error_message": errorMessage,
			"failed_at":     failedAt,
		})
	if result.Error != nil {
		return 0, storeError(result.Error)
	}
	return result.RowsAffected, nil
}

func toDomainList(models []NotificationModel) []domain.Notification {
	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}
	return notifications
}
