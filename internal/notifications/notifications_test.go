package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"lodging/internal/payments"
	"lodging/internal/shared/config"

	"github.com/google/uuid"
)

func settledEvent() *payments.EventMessage {
	return &payments.EventMessage{
		EventID:           7,
		EventType:         payments.EventPaymentSettled,
		ReservationID:     uuid.New(),
		ReservationNumber: "RSV-20240301-0001",
		RoomID:            "dunas",
		CheckIn:           "2024-03-10",
		CheckOut:          "2024-03-13",
		GuestName:         "Joana <Silva>",
		GuestEmail:        "joana@example.com",
		Amount:            690000,
		Currency:          "978",
	}
}

type fakeEmailService struct {
	failures int
	calls    int
	sent     []*EmailNotification
}

func (f *fakeEmailService) SendNotification(_ context.Context, n *EmailNotification) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("421 service not available")
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeEmailService) SendHTML(context.Context, string, string, string, string) error {
	return nil
}

func TestFromPaymentEvent(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(m *payments.EventMessage)
		wantOK   bool
		wantType NotificationType
	}{
		{"settled", func(m *payments.EventMessage) {}, true, NotificationTypeReservationConfirmed},
		{"failed", func(m *payments.EventMessage) { m.EventType = payments.EventPaymentFailed }, true, NotificationTypePaymentFailed},
		{"initiated is internal", func(m *payments.EventMessage) { m.EventType = payments.EventPaymentInitiated }, false, ""},
		{"replayed is internal", func(m *payments.EventMessage) { m.EventType = payments.EventCallbackReplayed }, false, ""},
		{"no guest email", func(m *payments.EventMessage) { m.GuestEmail = "" }, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := settledEvent()
			tt.mutate(msg)
			n, ok := FromPaymentEvent(msg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if n.Type != tt.wantType {
				t.Errorf("type = %s, want %s", n.Type, tt.wantType)
			}
			if n.Data.Amount != "6900.00" {
				t.Errorf("amount = %q, want 6900.00", n.Data.Amount)
			}
			if !strings.Contains(n.Subject, msg.ReservationNumber) {
				t.Errorf("subject %q lacks reservation number", n.Subject)
			}
		})
	}
}

func TestEventHandlerRetriesThenSends(t *testing.T) {
	email := &fakeEmailService{failures: 2}
	h := NewEventHandler(email, 3, time.Millisecond)

	body, _ := json.Marshal(settledEvent())
	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.calls != 3 || len(email.sent) != 1 {
		t.Fatalf("calls = %d sent = %d, want 3 and 1", email.calls, len(email.sent))
	}
	if email.sent[0].RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", email.sent[0].RetryCount)
	}
}

func TestEventHandlerGivesUp(t *testing.T) {
	email := &fakeEmailService{failures: 10}
	h := NewEventHandler(email, 1, time.Millisecond)

	body, _ := json.Marshal(settledEvent())
	if err := h.Handle(context.Background(), body); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if email.calls != 2 {
		t.Errorf("calls = %d, want 2", email.calls)
	}
}

func TestEventHandlerIgnoresOtherEvents(t *testing.T) {
	email := &fakeEmailService{}
	h := NewEventHandler(email, 0, 0)

	msg := settledEvent()
	msg.EventType = payments.EventCallbackRejected
	body, _ := json.Marshal(msg)
	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.calls != 0 {
		t.Errorf("no email expected, got %d calls", email.calls)
	}
	if err := h.Handle(context.Background(), []byte("{")); err == nil {
		t.Error("malformed record must be reported")
	}
}

func TestTemplatesEscapeGuestInput(t *testing.T) {
	n, _ := FromPaymentEvent(settledEvent())
	htmlBody, textBody, err := defaultTemplates.render(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(htmlBody, "<Silva>") || !strings.Contains(htmlBody, "&lt;Silva&gt;") {
		t.Errorf("guest name not escaped in html: %s", htmlBody)
	}
	if !strings.Contains(textBody, "Joana <Silva>") {
		t.Errorf("text body should carry the raw name: %s", textBody)
	}
	if !strings.Contains(textBody, "6900.00 978") {
		t.Errorf("text body lacks amount: %s", textBody)
	}
}

func TestBuildMessage(t *testing.T) {
	s, err := NewSMTPEmailService(&SMTPConfig{Host: "smtp.example.com", Port: 587, FromEmail: "reservas@example.com", FromName: "Reservas"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := string(s.buildMessage("joana@example.com", "Reserva confirmada ✓", "<p>hi</p>", "hi", now))

	for _, want := range []string{
		"From: Reservas <reservas@example.com>\r\n",
		"To: joana@example.com\r\n",
		"Subject: =?UTF-8?q?",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Type: text/html; charset=UTF-8",
		"--boundary_" + "1709287200000000000--\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message lacks %q:\n%s", want, msg)
		}
	}
}

func TestSMTPConfigValidate(t *testing.T) {
	if _, err := NewSMTPEmailService(&SMTPConfig{Port: 587, FromEmail: "a@b.c"}); !errors.Is(err, ErrInvalidSMTPConfig) {
		t.Errorf("missing host error = %v", err)
	}
	if _, err := NewSMTPEmailService(&SMTPConfig{Host: "h", Port: 70000, FromEmail: "a@b.c"}); !errors.Is(err, ErrInvalidSMTPConfig) {
		t.Errorf("bad port error = %v", err)
	}
	if !SMTPConfigFrom(config.EmailConfig{SMTPHost: "h", SMTPPort: 465}).ImplicitTLS {
		t.Error("port 465 should use implicit TLS")
	}
}

func TestNewEmailServiceWithoutHostLogs(t *testing.T) {
	svc, err := NewEmailService(config.EmailConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := svc.(LogEmailService); !ok {
		t.Fatalf("got %T, want LogEmailService", svc)
	}
	n, _ := FromPaymentEvent(settledEvent())
	if err := svc.SendNotification(context.Background(), n); err != nil {
		t.Errorf("log sender returned %v", err)
	}
}
