package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultSMTPTimeout = 15 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPProvider delivers email over SMTP, upgrading with STARTTLS when the
// server offers it.
type SMTPProvider struct {
	cfg  SMTPConfig
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	now  func() time.Time
}

func NewSMTPProvider(cfg SMTPConfig) (*SMTPProvider, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.From = strings.TrimSpace(cfg.From)
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid smtp port %d", cfg.Port)
	}
	if cfg.From == "" {
		cfg.From = strings.TrimSpace(cfg.Username)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}

	dialer := &net.Dialer{}
	return &SMTPProvider{
		cfg:  cfg,
		dial: dialer.DialContext,
		now:  time.Now,
	}, nil
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	if p == nil || p.dial == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return nil, Permanent("invalid message", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	conn, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, classifySMTPError("smtp dial failed", err, true)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, classifySMTPError("smtp handshake failed", err, true)
	}
	defer client.Close() //nolint:errcheck // best-effort close after QUIT

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: p.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return nil, classifySMTPError("smtp starttls failed", err, true)
		}
	}

	if p.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
			if err := client.Auth(auth); err != nil {
				return nil, classifySMTPError("smtp auth failed", err, false)
			}
		}
	}

	if err := client.Mail(p.cfg.From); err != nil {
		return nil, classifySMTPError("smtp MAIL FROM rejected", err, false)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return nil, classifySMTPError("smtp RCPT TO rejected", err, false)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), senderDomain(p.cfg.From, p.cfg.Host))
	w, err := client.Data()
	if err != nil {
		return nil, classifySMTPError("smtp DATA rejected", err, true)
	}
	if _, err := w.Write(buildMessage(p.cfg.From, msg, messageID, p.now())); err != nil {
		_ = w.Close()
		return nil, classifySMTPError("smtp write failed", err, true)
	}
	if err := w.Close(); err != nil {
		return nil, classifySMTPError("smtp message rejected", err, true)
	}
	// The message is accepted once DATA closes; a failed QUIT does not undo that.
	_ = client.Quit()

	return &ProviderResponse{StatusCode: 250, MessageID: messageID}, nil
}

// classifySMTPError maps 4xx replies to transient and 5xx replies to
// permanent failures. Non-protocol errors use fallbackTransient.
func classifySMTPError(stage string, err error, fallbackTransient bool) *ProviderError {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return &ProviderError{
			StatusCode: protoErr.Code,
			Message:    stage,
			Transient:  protoErr.Code >= 400 && protoErr.Code < 500,
			Cause:      err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return Permanent(stage, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(stage, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(stage, err)
	}

	return &ProviderError{Message: stage, Transient: fallbackTransient, Cause: err}
}

func buildMessage(from string, msg Message, messageID string, now time.Time) []byte {
	headers := []string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		"Message-ID: " + messageID,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Transfer-Encoding: 8bit",
	}

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")

	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body)
}

func senderDomain(from string, fallback string) string {
	if _, domainPart, ok := strings.Cut(from, "@"); ok && domainPart != "" {
		return strings.Trim(domainPart, "> ")
	}
	return fallback
}
