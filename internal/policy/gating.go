// Package policy decides whether an inbound event warrants a customer
// notification, and which kind and channel apply.
package policy

import (
	"fmt"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

const (
	ReasonBelowThreshold = "below threshold, no notification sent"
	ReasonStatusChange   = "account status changed"
	ReasonHighValue      = "high-value transaction"
)

// Decision is the outcome of gating one event. A Decision with Notify=false
// is a policy no-op, not a failure.
type Decision struct {
	Notify  bool
	Kind    domain.Kind
	Channel domain.Channel
	Reason  string
}

// Gate applies the notification policy. The high-value threshold is injected
// so the policy has no compiled-in money constants.
type Gate struct {
	threshold domain.Amount
}

func NewGate(threshold domain.Amount) (*Gate, error) {
	if !threshold.IsSet() {
		return nil, fmt.Errorf("%w: high-value threshold is required", domain.ErrValidation)
	}
	if threshold.Sign() < 0 {
		return nil, fmt.Errorf("%w: high-value threshold must not be negative", domain.ErrValidation)
	}
	return &Gate{threshold: threshold}, nil
}

func (g *Gate) Threshold() domain.Amount { return g.threshold }

// EvaluateTransaction notifies only when amount >= threshold.
func (g *Gate) EvaluateTransaction(event domain.TransactionEvent) Decision {
	if event.Amount.Cmp(g.threshold) < 0 {
		return Decision{Reason: ReasonBelowThreshold}
	}
	return Decision{
		Notify:  true,
		Kind:    domain.KindHighValueTransaction,
		Channel: domain.ChannelEmail,
		Reason:  ReasonHighValue,
	}
}

// EvaluateAccountStatus always notifies; the kind depends on the new status only.
func (g *Gate) EvaluateAccountStatus(event domain.AccountStatusEvent) Decision {
	return Decision{
		Notify:  true,
		Kind:    KindForAccountStatus(event.NewStatus),
		Channel: domain.ChannelEmail,
		Reason:  ReasonStatusChange,
	}
}

func KindForAccountStatus(status domain.AccountStatus) domain.Kind {
	switch domain.NormalizeAccountStatus(status.String()) {
	case domain.AccountStatusFrozen:
		return domain.KindAccountFrozen
	case domain.AccountStatusActive:
		return domain.KindAccountActivated
	default:
		return domain.KindAccountStatusChange
	}
}
