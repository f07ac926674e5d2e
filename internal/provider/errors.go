package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// ProviderError is a failed delivery. Transient failures may be retried on
// the next attempt. StatusCode holds the relay HTTP status or SMTP reply code.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	if e.Transient {
		b.WriteString("delivery failed (transient)")
	} else {
		b.WriteString("delivery failed")
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " [%d]", e.StatusCode)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Permanent wraps cause as a non-retryable delivery failure.
func Permanent(message string, cause error) *ProviderError {
	return &ProviderError{Message: message, Cause: cause}
}

// Transient wraps cause as a retryable delivery failure.
func Transient(message string, cause error) *ProviderError {
	return &ProviderError{Message: message, Transient: true, Cause: cause}
}

// IsTransient reports whether a delivery may succeed if tried again.
// An explicit ProviderError classification wins over the wrapped cause.
func IsTransient(err error) bool {
	var providerErr *ProviderError
	switch {
	case err == nil:
		return false
	case errors.As(err, &providerErr):
		return providerErr.Transient
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsPermanent reports whether a non-nil error must not be retried.
func IsPermanent(err error) bool {
	return err != nil && !IsTransient(err)
}
