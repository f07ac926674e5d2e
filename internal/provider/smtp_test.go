package provider

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSMTPServer struct {
	listener  net.Listener
	rcptReply string

	mu       sync.Mutex
	rcptTo   []string
	received []string
}

func newFakeSMTPServer(t *testing.T, rcptReply string) *fakeSMTPServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}

	s := &fakeSMTPServer{listener: ln, rcptReply: rcptReply}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })

	return s
}

func (s *fakeSMTPServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTPServer) handle(conn net.Conn) {
	defer conn.Close()
	tc := textproto.NewConn(conn)
	_ = tc.PrintfLine("220 fake.local ESMTP")

	for {
		line, err := tc.ReadLine()
		if err != nil {
			return
		}
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			_ = tc.PrintfLine("250-fake.local")
			_ = tc.PrintfLine("250 8BITMIME")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			_ = tc.PrintfLine("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.mu.Lock()
			s.rcptTo = append(s.rcptTo, line)
			s.mu.Unlock()
			_ = tc.PrintfLine("%s", s.rcptReply)
		case cmd == "DATA":
			_ = tc.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
			lines, err := tc.ReadDotLines()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, strings.Join(lines, "\n"))
			s.mu.Unlock()
			_ = tc.PrintfLine("250 queued")
		case cmd == "QUIT":
			_ = tc.PrintfLine("221 bye")
			return
		default:
			_ = tc.PrintfLine("502 not implemented")
		}
	}
}

func (s *fakeSMTPServer) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func newTestSMTPProvider(t *testing.T, port int) *SMTPProvider {
	t.Helper()

	p, err := NewSMTPProvider(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    port,
		From:    "noreply@banking.com",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSMTPProvider() error = %v", err)
	}
	p.now = func() time.Time { return time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC) }
	return p
}

func TestSMTPProviderSendSuccess(t *testing.T) {
	t.Parallel()

	server := newFakeSMTPServer(t, "250 OK")
	p := newTestSMTPProvider(t, server.port())

	resp, err := p.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if resp.StatusCode != 250 {
		t.Fatalf("StatusCode = %d, want 250", resp.StatusCode)
	}
	if !strings.HasSuffix(resp.MessageID, "@banking.com>") {
		t.Fatalf("MessageID = %q, want suffix @banking.com>", resp.MessageID)
	}

	msgs := server.messages()
	if len(msgs) != 1 {
		t.Fatalf("received %d messages, want 1", len(msgs))
	}
	data := msgs[0]
	for _, want := range []string{
		"From: noreply@banking.com",
		"To: john.doe@example.com",
		"Message-ID: " + resp.MessageID,
		"Content-Type: text/plain; charset=UTF-8",
		"Dear John Doe,",
	} {
		if !strings.Contains(data, want) {
			t.Fatalf("message data missing %q:\n%s", want, data)
		}
	}
}

func TestSMTPProviderSendRecipientRejection(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		reply         string
		wantCode      int
		wantTransient bool
	}{
		{name: "mailbox unavailable is permanent", reply: "550 mailbox unavailable", wantCode: 550},
		{name: "greylisting is transient", reply: "451 try again later", wantCode: 451, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := newFakeSMTPServer(t, tc.reply)
			p := newTestSMTPProvider(t, server.port())

			_, err := p.Send(context.Background(), testMessage())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v (err=%v)", got, tc.wantTransient, err)
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if providerErr.StatusCode != tc.wantCode {
				t.Fatalf("ProviderError.StatusCode = %d, want %d", providerErr.StatusCode, tc.wantCode)
			}
			if len(server.messages()) != 0 {
				t.Fatal("no message data should be accepted after RCPT rejection")
			}
		})
	}
}

func TestSMTPProviderRejectsHeaderInjectionWithoutRetry(t *testing.T) {
	t.Parallel()

	server := newFakeSMTPServer(t, "250 ok")
	p := newTestSMTPProvider(t, server.port())

	msg := testMessage()
	msg.To = "a@b.com\r\nBcc: x@y.com"

	_, err := p.Send(context.Background(), msg)
	if !IsPermanent(err) {
		t.Fatalf("IsPermanent() = false, want true (err=%v)", err)
	}
	if len(server.messages()) != 0 {
		t.Fatal("no message should reach the server")
	}
}

func TestSMTPProviderDialFailureIsTransient(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	p := newTestSMTPProvider(t, port)
	_, err = p.Send(context.Background(), testMessage())
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestNewSMTPProviderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewSMTPProvider(SMTPConfig{Port: 587, From: "a@b.com"}); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := NewSMTPProvider(SMTPConfig{Host: "smtp.local", From: "a@b.com"}); err == nil {
		t.Fatal("expected error for missing port")
	}
	if _, err := NewSMTPProvider(SMTPConfig{Host: "smtp.local", Port: 587}); err == nil {
		t.Fatal("expected error for missing from")
	}

	p, err := NewSMTPProvider(SMTPConfig{Host: "smtp.local", Port: 587, Username: "mailer@bank.com"})
	if err != nil {
		t.Fatalf("NewSMTPProvider() error = %v", err)
	}
	if p.cfg.From != "mailer@bank.com" {
		t.Fatalf("From = %q, want username fallback", p.cfg.From)
	}
	if p.cfg.Timeout != defaultSMTPTimeout {
		t.Fatalf("Timeout = %v, want %v", p.cfg.Timeout, defaultSMTPTimeout)
	}
}

func TestBuildMessageNormalizesLineEndings(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	raw := string(buildMessage("noreply@banking.com", Message{
		To:      "a@b.com",
		Subject: "Account Status Update - 1234",
		Body:    "line one\nline two",
	}, "<id@banking.com>", now))

	headers, body, ok := strings.Cut(raw, "\r\n\r\n")
	if !ok {
		t.Fatal("message has no header/body separator")
	}
	if body != "line one\r\nline two" {
		t.Fatalf("body = %q, want CRLF line endings", body)
	}
	if !strings.Contains(headers, "Date: "+now.Format(time.RFC1123Z)) {
		t.Fatalf("headers missing Date: %s", headers)
	}
	if !strings.Contains(headers, "Subject: Account Status Update - 1234") {
		t.Fatalf("ASCII subject should not be encoded: %s", headers)
	}
}

func TestClassifySMTPError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		err           error
		fallback      bool
		wantTransient bool
	}{
		{name: "4xx reply", err: &textproto.Error{Code: 421, Msg: "busy"}, wantTransient: true},
		{name: "5xx reply", err: &textproto.Error{Code: 554, Msg: "rejected"}, fallback: true},
		{name: "canceled", err: context.Canceled, fallback: true},
		{name: "deadline", err: context.DeadlineExceeded, wantTransient: true},
		{name: "unknown uses fallback", err: errors.New("boom"), fallback: true, wantTransient: true},
		{name: "unknown permanent fallback", err: errors.New("boom")},
	}

	for _, tc := range testCases {
		got := classifySMTPError("smtp stage", tc.err, tc.fallback)
		if got.Transient != tc.wantTransient {
			t.Fatalf("%s: Transient = %v, want %v", tc.name, got.Transient, tc.wantTransient)
		}
	}
}
