package payments

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var (
	// ErrProtocol means a request could not be signed. It is wrapped with the
	// offending field name and never carries credential material.
	ErrProtocol            = errors.New("payment protocol error")
	ErrNotPayable          = errors.New("reservation is not awaiting payment")
	ErrSessionNotFound     = errors.New("payment session not found")
	ErrUnknownSession      = errors.New("callback references an unknown payment session")
	ErrSessionSuperseded   = errors.New("payment session was replaced by a newer attempt")
	ErrFingerprintMismatch = errors.New("callback fingerprint does not match")
	ErrMissingSessionToken = errors.New("callback carries no session token")
	// ErrConcurrentUpdate is retryable: another writer held the reservation.
	ErrConcurrentUpdate = errors.New("reservation is being updated, retry shortly")
)

// PaymentSession is one attempt to pay a reservation. The reservation points
// at its current session; older sessions stay for the audit trail.
type PaymentSession struct {
	Token           string         `gorm:"type:varchar(64);primaryKey" json:"token"`
	ReservationID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"reservation_id"`
	MerchantRef     string         `gorm:"type:varchar(15);uniqueIndex;not null" json:"merchant_ref"`
	ReferenceNumber string         `gorm:"type:varchar(20)" json:"reference_number,omitempty"`
	Amount          int64          `gorm:"not null" json:"amount"`
	Currency        string         `gorm:"type:varchar(3);not null" json:"currency"`
	TransactionType string         `gorm:"type:varchar(1);not null" json:"transaction_type"`
	Status          SessionStatus  `gorm:"type:varchar(20);not null;default:'initiated';check:chk_payment_sessions_status,status IN ('initiated','processing','settled','failed')" json:"status"`
	ResponseCode    string         `gorm:"type:varchar(16)" json:"response_code,omitempty"`
	FailureReason   *string        `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	Metadata        datatypes.JSON `gorm:"type:jsonb" json:"-"`

	// SignedAt is the timestamp that went into the request fingerprint.
	SignedAt    time.Time  `gorm:"not null" json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// TableName sets the table name for PaymentSession
func (PaymentSession) TableName() string {
	return "payment_sessions"
}

// PaymentEvent is an append-only record of a payment transition or callback.
type PaymentEvent struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ReservationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"reservation_id"`
	UserID        *uuid.UUID     `gorm:"type:uuid" json:"user_id,omitempty"`
	EventType     EventType      `gorm:"type:varchar(32);not null" json:"event_type"`
	SessionToken  string         `gorm:"type:varchar(64);not null;index" json:"session_token"`
	Amount        int64          `gorm:"not null" json:"amount"`
	Payload       datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TableName sets the table name for PaymentEvent
func (PaymentEvent) TableName() string {
	return "payment_events"
}

// Callback is the gateway's asynchronous result for a session. Raw keeps
// every field as received for the event log.
type Callback struct {
	MerchantSession string
	MerchantRef     string
	ResponseCode    string
	ResponseMessage string
	Amount          string
	FingerPrint     string
	TimeStamp       string
	Raw             map[string]string
}

// CallbackResult reports how a callback was applied.
type CallbackResult struct {
	Outcome       CallbackOutcome `json:"outcome"`
	SessionToken  string          `json:"session_token"`
	ReservationID uuid.UUID       `json:"reservation_id"`
	Reason        string          `json:"reason,omitempty"`
}
