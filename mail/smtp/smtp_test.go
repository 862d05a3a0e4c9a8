package smtp

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	gomail "github.com/wneessen/go-mail"
)

type captureSender struct {
	raw []string
	err error
}

func (s *captureSender) DialAndSendWithContext(_ context.Context, msgs ...*gomail.Msg) error {
	if s.err != nil {
		return s.err
	}
	for _, m := range msgs {
		var buf bytes.Buffer
		if _, err := m.WriteTo(&buf); err != nil {
			return err
		}
		s.raw = append(s.raw, buf.String())
	}
	return nil
}

func TestSendPasswordRecoverIncludesTempPassword(t *testing.T) {
	s := &captureSender{}
	m := NewWithSender(s, "no-reply@x.com", "Acme")

	if err := m.SendPasswordRecover(context.Background(), "a@x.com", "https://x/recover?token=abc", "Temp1234Pass"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(s.raw) != 1 {
		t.Fatalf("messages = %d", len(s.raw))
	}
	msg := s.raw[0]
	for _, want := range []string{"To: a@x.com", "Subject: Password recovery", "Temp1234Pass", "token=abc"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSendReuseAlertMentionsLock(t *testing.T) {
	s := &captureSender{}
	m := NewWithSender(s, "no-reply@x.com", "")

	_ = m.SendReuseAlert(context.Background(), "a@x.com", true)
	_ = m.SendReuseAlert(context.Background(), "a@x.com", false)

	if !strings.Contains(s.raw[0], "has been locked") {
		t.Fatal("locked alert must mention the lock")
	}
	if strings.Contains(s.raw[1], "has been locked") {
		t.Fatal("unlocked alert must not mention a lock")
	}
}

func TestSendWrapsDialerError(t *testing.T) {
	boom := errors.New("dial tcp: refused")
	m := NewWithSender(&captureSender{err: boom}, "no-reply@x.com", "")
	if err := m.SendAccountVerify(context.Background(), "a@x.com", "https://x"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped dialer error, got %v", err)
	}
}

func TestSendHonoursCancelledContext(t *testing.T) {
	s := &captureSender{}
	m := NewWithSender(s, "no-reply@x.com", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.SendPasswordReset(ctx, "a@x.com", "https://x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(s.raw) != 0 {
		t.Fatal("nothing must be sent after cancellation")
	}
}

func TestSendRejectsInvalidRecipient(t *testing.T) {
	s := &captureSender{}
	m := NewWithSender(s, "no-reply@x.com", "")
	if err := m.SendAccountVerify(context.Background(), "not an address", "https://x"); err == nil {
		t.Fatal("expected invalid recipient error")
	}
	if len(s.raw) != 0 {
		t.Fatal("nothing must be sent to an invalid recipient")
	}
}

func TestNewRequiresHost(t *testing.T) {
	if _, err := New(Config{From: "no-reply@x.com"}); err == nil {
		t.Fatal("expected error for empty host")
	}
	m, err := New(Config{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "no-reply@x.com"})
	if err != nil || m == nil {
		t.Fatalf("New: %v", err)
	}
}
