package queue

import (
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// Outcome routing keys on EventsExchange.
const (
	SentRoutingKey   = "notification.sent"
	FailedRoutingKey = "notification.failed"
)

// OutcomeEvent announces the final delivery status of a notification.
type OutcomeEvent struct {
	NotificationID string        `json:"notificationId"`
	Kind           domain.Kind   `json:"kind"`
	Status         domain.Status `json:"status"`
	ReferenceID    string        `json:"referenceId,omitempty"`
	OccurredAt     time.Time     `json:"occurredAt"`
	Error          *string       `json:"error,omitempty"`
}

// NewOutcomeEvent builds the event for a record in a final state.
func NewOutcomeEvent(n *domain.Notification, occurredAt time.Time) OutcomeEvent {
	return OutcomeEvent{
		NotificationID: n.ID,
		Kind:           n.Kind,
		Status:         n.Status,
		ReferenceID:    n.ReferenceID,
		OccurredAt:     occurredAt.UTC(),
		Error:          n.ErrorMessage,
	}
}

// RoutingKey returns the events exchange routing key for the outcome.
func (e OutcomeEvent) RoutingKey() string {
	if e.Status == domain.StatusSent {
		return SentRoutingKey
	}
	return FailedRoutingKey
}

// Outgoing wraps the event for publishing.
func (e OutcomeEvent) Outgoing(correlationID string) Outgoing {
	return Outgoing{
		Exchange:      EventsExchange,
		RoutingKey:    e.RoutingKey(),
		MessageID:     e.NotificationID + ":" + string(e.Status),
		CorrelationID: correlationID,
		Payload:       e,
	}
}
