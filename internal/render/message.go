// Package render builds notification subjects and bodies from events.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/masking"
)

const (
	DefaultCurrencySymbol = "₹"
	timestampLayout       = "02-Jan-2006 15:04"
)

const transactionTemplate = `Dear %s,

This is to inform you about a high-value transaction on your account.

Transaction Details:
- Account Number: %s
- Amount: %s%s
- Transaction Type: %s
- Transaction ID: %d
- Date & Time: %s

If you did not authorize this transaction, please contact us immediately.

Best Regards,
Banking Team
`

const accountStatusTemplate = `Dear %s,

Your account status has been updated.

Account Details:
- Account Number: %s
- Previous Status: %s
- New Status: %s

If you have any questions, please contact our customer service.

Best Regards,
Banking Team
`

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

type Renderer struct {
	currencySymbol string
	now            func() time.Time
}

func NewRenderer(currencySymbol string) *Renderer {
	if strings.TrimSpace(currencySymbol) == "" {
		currencySymbol = DefaultCurrencySymbol
	}
	return &Renderer{
		currencySymbol: currencySymbol,
		now:            time.Now,
	}
}

// Transaction renders a high-value transaction alert. Missing required fields
// are reported as validation errors rather than rendered blank.
func (r *Renderer) Transaction(event domain.TransactionEvent) (Message, error) {
	if err := event.Validate(); err != nil {
		return Message{}, fmt.Errorf("render transaction: %w", err)
	}

	occurredAt := r.now()
	if event.OccurredAt != nil && !event.OccurredAt.IsZero() {
		occurredAt = *event.OccurredAt
	}

	amount := event.Amount.String()
	return Message{
		Subject: fmt.Sprintf("High-Value Transaction Alert - %s%s", r.currencySymbol, amount),
		Body: fmt.Sprintf(transactionTemplate,
			strings.TrimSpace(event.CustomerName),
			masking.MaskAccountNumber(event.AccountNumber),
			r.currencySymbol, amount,
			event.TransactionType,
			event.TransactionID,
			occurredAt.Format(timestampLayout),
		),
	}, nil
}

// AccountStatus renders an account status update.
func (r *Renderer) AccountStatus(event domain.AccountStatusEvent) (Message, error) {
	if err := event.Validate(); err != nil {
		return Message{}, fmt.Errorf("render account status: %w", err)
	}

	return Message{
		Subject: fmt.Sprintf("Account Status Update - %s", event.AccountNumber),
		Body: fmt.Sprintf(accountStatusTemplate,
			strings.TrimSpace(event.CustomerName),
			masking.MaskAccountNumber(event.AccountNumber),
			event.OldStatus,
			event.NewStatus,
		),
	}, nil
}
