package domain

import "time"

// DeliveryAttempt records a single provider call for a notification.
type DeliveryAttempt struct {
	ID                string
	NotificationID    string
	AttemptNumber     int
	Source            AttemptSource
	Error             *string
	ProviderMessageID *string
	CreatedAt         time.Time
}

// AttemptSource tells which flow made a delivery attempt.
type AttemptSource string

const (
	AttemptSourcePipeline AttemptSource = "PIPELINE"
	AttemptSourceResweep  AttemptSource = "RESWEEP"
)
