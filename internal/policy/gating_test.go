package policy

import (
	"errors"
	"testing"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()

	gate, err := NewGate(domain.MustParseAmount("50000"))
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	return gate
}

func TestNewGateValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewGate(domain.Amount{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewGate(unset) error = %v, want ErrValidation", err)
	}
	if _, err := NewGate(domain.MustParseAmount("-5")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewGate(negative) error = %v, want ErrValidation", err)
	}
}

func TestEvaluateTransaction(t *testing.T) {
	t.Parallel()

	gate := newTestGate(t)

	tests := []struct {
		name       string
		amount     string
		wantNotify bool
	}{
		{name: "just below threshold", amount: "49999.99", wantNotify: false},
		{name: "exactly threshold", amount: "50000.00", wantNotify: true},
		{name: "above threshold", amount: "125000", wantNotify: true},
		{name: "zero", amount: "0", wantNotify: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decision := gate.EvaluateTransaction(domain.TransactionEvent{Amount: domain.MustParseAmount(tt.amount)})
			if decision.Notify != tt.wantNotify {
				t.Fatalf("Notify = %v, want %v", decision.Notify, tt.wantNotify)
			}
			if !tt.wantNotify {
				if decision.Reason != ReasonBelowThreshold {
					t.Fatalf("Reason = %q, want %q", decision.Reason, ReasonBelowThreshold)
				}
				return
			}
			if decision.Kind != domain.KindHighValueTransaction {
				t.Fatalf("Kind = %s, want %s", decision.Kind, domain.KindHighValueTransaction)
			}
			if decision.Channel != domain.ChannelEmail {
				t.Fatalf("Channel = %s, want %s", decision.Channel, domain.ChannelEmail)
			}
		})
	}
}

func TestEvaluateAccountStatus(t *testing.T) {
	t.Parallel()

	gate := newTestGate(t)

	tests := []struct {
		oldStatus domain.AccountStatus
		newStatus domain.AccountStatus
		want      domain.Kind
	}{
		{oldStatus: domain.AccountStatusActive, newStatus: domain.AccountStatusFrozen, want: domain.KindAccountFrozen},
		{oldStatus: domain.AccountStatusFrozen, newStatus: domain.AccountStatusActive, want: domain.KindAccountActivated},
		{oldStatus: domain.AccountStatusActive, newStatus: domain.AccountStatusClosed, want: domain.KindAccountStatusChange},
		{oldStatus: domain.AccountStatusActive, newStatus: "dormant", want: domain.KindAccountStatusChange},
		{oldStatus: domain.AccountStatusClosed, newStatus: "frozen", want: domain.KindAccountFrozen},
	}

	for _, tt := range tests {
		decision := gate.EvaluateAccountStatus(domain.AccountStatusEvent{OldStatus: tt.oldStatus, NewStatus: tt.newStatus})
		if !decision.Notify {
			t.Fatalf("%s->%s: account status changes must always notify", tt.oldStatus, tt.newStatus)
		}
		if decision.Kind != tt.want {
			t.Fatalf("%s->%s: Kind = %s, want %s", tt.oldStatus, tt.newStatus, decision.Kind, tt.want)
		}
	}
}
