package domain

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Amount is an exact decimal money amount. The zero value is unset.
type Amount struct {
	d   apd.Decimal
	set bool
}

func ParseAmount(s string) (Amount, error) {
	var a Amount
	trimmed := strings.TrimSpace(s)
	if _, _, err := a.d.SetString(trimmed); err != nil {
		return Amount{}, fmt.Errorf("%w: invalid amount %q", ErrValidation, s)
	}
	if a.d.Form != apd.Finite {
		return Amount{}, fmt.Errorf("%w: amount must be finite, got %q", ErrValidation, s)
	}
	a.set = true
	return a, nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) IsSet() bool { return a.set }

func (a Amount) Sign() int { return a.d.Sign() }

// Cmp compares a and b numerically, ignoring trailing zeros.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(&b.d) }

// String renders the amount in plain notation, never with an exponent.
func (a Amount) String() string {
	if !a.set {
		return ""
	}
	return a.d.Text('f')
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	if bytes.Equal(raw, []byte("null")) {
		*a = Amount{}
		return nil
	}
	parsed, err := ParseAmount(strings.Trim(string(raw), `"`))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.set {
		return []byte("null"), nil
	}
	return []byte(a.d.String()), nil
}

// AccountStatus is the lifecycle status of a bank account. Values outside the
// known set are carried through unchanged.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
	AccountStatusFrozen   AccountStatus = "FROZEN"
	AccountStatusClosed   AccountStatus = "CLOSED"
	AccountStatusUnknown  AccountStatus = "UNKNOWN"
)

func (s AccountStatus) String() string { return string(s) }

func NormalizeAccountStatus(s string) AccountStatus {
	return AccountStatus(strings.ToUpper(strings.TrimSpace(s)))
}

// TransactionType describes the transaction that triggered an event.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
)

func (t TransactionType) String() string { return string(t) }

// TransactionEvent reports a completed transaction.
type TransactionEvent struct {
	TransactionID   int64           `json:"transactionId"`
	AccountID       int64           `json:"accountId"`
	AccountNumber   string          `json:"accountNumber"`
	Amount          Amount          `json:"amount"`
	TransactionType TransactionType `json:"transactionType"`
	RecipientEmail  string          `json:"recipientEmail"`
	RecipientPhone  string          `json:"recipientPhone"`
	CustomerName    string          `json:"customerName"`
	OccurredAt      *time.Time      `json:"occurredAt,omitempty"`
}

func (e *TransactionEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: transaction event is required", ErrValidation)
	}
	if e.TransactionID == 0 {
		return fmt.Errorf("%w: transactionId is required", ErrValidation)
	}
	if strings.TrimSpace(e.AccountNumber) == "" {
		return fmt.Errorf("%w: accountNumber is required", ErrValidation)
	}
	if !e.Amount.IsSet() {
		return fmt.Errorf("%w: amount is required", ErrValidation)
	}
	if e.Amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if strings.TrimSpace(e.TransactionType.String()) == "" {
		return fmt.Errorf("%w: transactionType is required", ErrValidation)
	}
	if err := ValidateRecipient(e.RecipientEmail, e.RecipientPhone); err != nil {
		return err
	}
	if strings.TrimSpace(e.CustomerName) == "" {
		return fmt.Errorf("%w: customerName is required", ErrValidation)
	}
	return nil
}

// AccountStatusEvent reports an account moving between statuses.
type AccountStatusEvent struct {
	AccountID      int64         `json:"accountId"`
	AccountNumber  string        `json:"accountNumber"`
	OldStatus      AccountStatus `json:"oldStatus"`
	NewStatus      AccountStatus `json:"newStatus"`
	CustomerName   string        `json:"customerName"`
	RecipientEmail string        `json:"recipientEmail"`
	RecipientPhone string        `json:"recipientPhone"`
	CustomerID     *int64        `json:"customerId,omitempty"`
}

func (e *AccountStatusEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: account status event is required", ErrValidation)
	}
	if e.AccountID == 0 {
		return fmt.Errorf("%w: accountId is required", ErrValidation)
	}
	if strings.TrimSpace(e.AccountNumber) == "" {
		return fmt.Errorf("%w: accountNumber is required", ErrValidation)
	}
	if strings.TrimSpace(e.OldStatus.String()) == "" {
		return fmt.Errorf("%w: oldStatus is required", ErrValidation)
	}
	if strings.TrimSpace(e.NewStatus.String()) == "" {
		return fmt.Errorf("%w: newStatus is required", ErrValidation)
	}
	if err := ValidateRecipient(e.RecipientEmail, e.RecipientPhone); err != nil {
		return err
	}
	if strings.TrimSpace(e.CustomerName) == "" {
		return fmt.Errorf("%w: customerName is required", ErrValidation)
	}
	return nil
}

// AccountUpdateEvent is the account service's full snapshot of an account.
// It carries no contact details; those come from the customer directory.
type AccountUpdateEvent struct {
	AccountID     int64         `json:"accountId"`
	CustomerID    int64         `json:"customerId"`
	AccountNumber string        `json:"accountNumber"`
	AccountType   string        `json:"accountType"`
	Balance       Amount        `json:"balance"`
	Currency      string        `json:"currency"`
	Status        AccountStatus `json:"status"`
	CreatedAt     string        `json:"createdAt"`
}

func (e *AccountUpdateEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: account update event is required", ErrValidation)
	}
	if e.AccountID == 0 {
		return fmt.Errorf("%w: accountId is required", ErrValidation)
	}
	if e.CustomerID == 0 {
		return fmt.Errorf("%w: customerId is required", ErrValidation)
	}
	if strings.TrimSpace(e.AccountNumber) == "" {
		return fmt.Errorf("%w: accountNumber is required", ErrValidation)
	}
	if strings.TrimSpace(e.Status.String()) == "" {
		return fmt.Errorf("%w: status is required", ErrValidation)
	}
	return nil
}

// DispatchResult is the outcome returned to callers of the pipeline.
// NotificationID is empty when gating decided not to notify.
type DispatchResult struct {
	NotificationID string
	Status         Status
	Message        string
}
