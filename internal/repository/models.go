package repository

import (
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// NotificationModel is the persistence model for the notifications_log table.
type NotificationModel struct {
	ID                   string         `gorm:"type:uuid;primaryKey"`
	RecipientEmail       string         `gorm:"type:varchar(255);not null"`
	RecipientPhone       string         `gorm:"type:varchar(32)"`
	RecipientEmailSealed string         `gorm:"type:text"`
	CustomerID           *int64         `gorm:"type:bigint"`
	Kind                 domain.Kind    `gorm:"column:notification_type;type:varchar(40);not null"`
	Channel              domain.Channel `gorm:"type:varchar(10);not null"`
	Subject              string         `gorm:"type:varchar(500);not null"`
	Message              string         `gorm:"type:varchar(2000);not null"`
	Status               domain.Status  `gorm:"type:varchar(20);not null"`
	ErrorMessage         *string        `gorm:"type:text"`
	ReferenceID          string         `gorm:"type:varchar(64)"`
	CreatedAt            time.Time      `gorm:"not null"`
	SentAt               *time.Time
	FailedAt             *time.Time
}

func (NotificationModel) TableName() string {
	return "notifications_log"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID                string               `gorm:"type:uuid;primaryKey"`
	NotificationID    string               `gorm:"type:uuid;not null"`
	AttemptNumber     int                  `gorm:"not null"`
	Source            domain.AttemptSource `gorm:"type:varchar(16);not null"`
	Error             *string              `gorm:"type:text"`
	ProviderMessageID *string              `gorm:"type:varchar(255)"`
	CreatedAt         time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:                   n.ID,
		RecipientEmail:       n.RecipientEmail,
		RecipientPhone:       n.RecipientPhone,
		RecipientEmailSealed: n.RecipientEmailSealed,
		CustomerID:           n.CustomerID,
		Kind:                 n.Kind,
		Channel:              n.Channel,
		Subject:              n.Subject,
		Message:              n.Message,
		Status:               n.Status,
		ErrorMessage:         n.ErrorMessage,
		ReferenceID:          n.ReferenceID,
		CreatedAt:            n.CreatedAt,
		SentAt:               n.SentAt,
		FailedAt:             n.FailedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:                   m.ID,
		RecipientEmail:       m.RecipientEmail,
		RecipientPhone:       m.RecipientPhone,
		RecipientEmailSealed: m.RecipientEmailSealed,
		CustomerID:           m.CustomerID,
		Kind:                 m.Kind,
		Channel:              m.Channel,
		Subject:              m.Subject,
		Message:              m.Message,
		Status:               m.Status,
		ErrorMessage:         m.ErrorMessage,
		ReferenceID:          m.ReferenceID,
		CreatedAt:            m.CreatedAt,
		SentAt:               m.SentAt,
		FailedAt:             m.FailedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:                a.ID,
		NotificationID:    a.NotificationID,
		AttemptNumber:     a.AttemptNumber,
		Source:            a.Source,
		Error:             a.Error,
		ProviderMessageID: a.ProviderMessageID,
		CreatedAt:         a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:                m.ID,
		NotificationID:    m.NotificationID,
		AttemptNumber:     m.AttemptNumber,
		Source:            m.Source,
		Error:             m.Error,
		ProviderMessageID: m.ProviderMessageID,
		CreatedAt:         m.CreatedAt,
	}
}
