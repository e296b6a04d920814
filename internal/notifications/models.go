package notifications

import (
	"fmt"
	"time"

	"lodging/internal/payments"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeReservationConfirmed NotificationType = "RESERVATION_CONFIRMED"
	NotificationTypePaymentFailed        NotificationType = "PAYMENT_FAILED"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusSending NotificationStatus = "SENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// EmailNotification is one guest email derived from a payment event.
type EmailNotification struct {
	ID             uuid.UUID          `json:"id"`
	Type           NotificationType   `json:"type"`
	RecipientEmail string             `json:"recipient_email"`
	RecipientName  string             `json:"recipient_name"`
	Subject        string             `json:"subject"`
	Data           TemplateData       `json:"data"`
	Status         NotificationStatus `json:"status"`
	RetryCount     int                `json:"retry_count"`
	LastError      *string            `json:"last_error,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
}

// TemplateData feeds the email templates.
type TemplateData struct {
	GuestName         string
	ReservationNumber string
	RoomID            string
	CheckIn           string
	CheckOut          string
	Amount            string
	Currency          string
}

// FromPaymentEvent maps a payment event to the email it triggers. Events
// that do not concern the guest return false.
func FromPaymentEvent(msg *payments.EventMessage) (*EmailNotification, bool) {
	if msg == nil || msg.GuestEmail == "" {
		return nil, false
	}

	var (
		notType NotificationType
		subject string
	)
	switch msg.EventType {
	case payments.EventPaymentSettled:
		notType = NotificationTypeReservationConfirmed
		subject = fmt.Sprintf("Reserva %s confirmada", msg.ReservationNumber)
	case payments.EventPaymentFailed:
		notType = NotificationTypePaymentFailed
		subject = fmt.Sprintf("Pagamento da reserva %s não concluído", msg.ReservationNumber)
	default:
		return nil, false
	}

	return &EmailNotification{
		ID:             uuid.New(),
		Type:           notType,
		RecipientEmail: msg.GuestEmail,
		RecipientName:  msg.GuestName,
		Subject:        subject,
		Data: TemplateData{
			GuestName:         msg.GuestName,
			ReservationNumber: msg.ReservationNumber,
			RoomID:            msg.RoomID,
			CheckIn:           msg.CheckIn,
			CheckOut:          msg.CheckOut,
			Amount:            payments.FormatAmount(msg.Amount),
			Currency:          msg.Currency,
		},
		Status:    NotificationStatusPending,
		CreatedAt: time.Now(),
	}, true
}

func (en *EmailNotification) MarkSent() {
	now := time.Now()
	en.Status = NotificationStatusSent
	en.SentAt = &now
}

func (en *EmailNotification) MarkFailed(err error) {
	en.Status = NotificationStatusFailed
	errorStr := err.Error()
	en.LastError = &errorStr
}
