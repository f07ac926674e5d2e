package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the delivery state of a notification record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// CanTransition reports whether a record may move from s to next.
// SENT is terminal; nothing returns to PENDING; FAILED may be resent.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusSent || next == StatusFailed
	case StatusFailed:
		return next == StatusSent
	}
	return false
}

// Kind identifies which template and policy produced a notification.
type Kind string

const (
	KindHighValueTransaction Kind = "HIGH_VALUE_TRANSACTION"
	KindAccountFrozen        Kind = "ACCOUNT_FROZEN"
	KindAccountActivated     Kind = "ACCOUNT_ACTIVATED"
	KindAccountStatusChange  Kind = "ACCOUNT_STATUS_CHANGE"
)

func (k Kind) String() string { return string(k) }

func (k Kind) IsValid() bool {
	switch k {
	case KindHighValueTransaction, KindAccountFrozen, KindAccountActivated, KindAccountStatusChange:
		return true
	}
	return false
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	return c == ChannelEmail
}

// Stored field limits (in characters), matching the notifications_log columns.
const (
	MaxSubjectLength        = 500
	MaxMessageLength        = 2000
	MaxRecipientEmailLength = 255
	MaxRecipientPhoneLength = 32
)

// ValidateRecipient checks raw contact details before they reach a mail
// header or a bounded column.
func ValidateRecipient(email, phone string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: recipientEmail is required", ErrValidation)
	}
	if strings.ContainsAny(email, "\r\n") || strings.ContainsAny(phone, "\r\n") {
		return fmt.Errorf("%w: recipient must not contain line breaks", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: recipientEmail %q is not an email address", ErrValidation, email)
	}
	if l := len([]rune(email)); l > MaxRecipientEmailLength {
		return fmt.Errorf("%w: recipientEmail exceeds %d characters (got %d)", ErrValidation, MaxRecipientEmailLength, l)
	}
	if l := len([]rune(phone)); l > MaxRecipientPhoneLength {
		return fmt.Errorf("%w: recipientPhone exceeds %d characters (got %d)", ErrValidation, MaxRecipientPhoneLength, l)
	}
	return nil
}

// Notification is the durable record of one notification and its delivery outcome.
// Recipient fields hold masked values; RecipientEmailSealed holds the encrypted
// original address when a sealing key is configured.
type Notification struct {
	ID                   string
	RecipientEmail       string
	RecipientPhone       string
	RecipientEmailSealed string
	CustomerID           *int64
	Kind                 Kind
	Channel              Channel
	Subject              string
	Message              string
	Status               Status
	ErrorMessage         *string
	ReferenceID          string
	CreatedAt            time.Time
	SentAt               *time.Time
	FailedAt             *time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.RecipientEmail) == "" {
		return fmt.Errorf("%w: recipient email is required", ErrValidation)
	}
	if !n.Kind.IsValid() {
		return fmt.Errorf("%w: invalid notification kind %q", ErrValidation, n.Kind)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}
	if n.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if n.Message == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if l := len([]rune(n.RecipientEmail)); l > MaxRecipientEmailLength {
		return fmt.Errorf("%w: recipient email exceeds %d characters (got %d)", ErrValidation, MaxRecipientEmailLength, l)
	}
	if l := len([]rune(n.RecipientPhone)); l > MaxRecipientPhoneLength {
		return fmt.Errorf("%w: recipient phone exceeds %d characters (got %d)", ErrValidation, MaxRecipientPhoneLength, l)
	}
	if l := len([]rune(n.Subject)); l > MaxSubjectLength {
		return fmt.Errorf("%w: subject exceeds %d characters (got %d)", ErrValidation, MaxSubjectLength, l)
	}
	if l := len([]rune(n.Message)); l > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters (got %d)", ErrValidation, MaxMessageLength, l)
	}
	return nil
}
