package provider

import (
	"context"
	"fmt"
	"strings"
)

// Provider is the outbound email delivery port. Implementations return a
// *ProviderError so callers can tell transient failures from permanent ones.
type Provider interface {
	Send(ctx context.Context, msg Message) (*ProviderResponse, error)
}

// Message is one rendered email addressed to an unmasked recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return fmt.Errorf("recipient and subject must not contain line breaks")
	}
	if !strings.Contains(m.To, "@") {
		return fmt.Errorf("recipient %q is not an email address", m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if m.Body == "" {
		return fmt.Errorf("body is required")
	}
	return nil
}

// ProviderResponse stores provider call metadata for the attempt log.
type ProviderResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
