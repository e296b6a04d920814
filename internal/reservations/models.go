package reservations

import (
	"errors"
	"time"

	"lodging/internal/daterange"

	"github.com/google/uuid"
)

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrOverlap             = errors.New("requested dates overlap an existing stay")
	ErrPastCheckIn         = errors.New("check-in date is in the past")
	ErrNotCancellable      = errors.New("reservation cannot be cancelled")
	ErrInvalidCountry      = errors.New("country is not an ISO 3166-1 alpha-2 code")
)

// Reservation is an internal stay. Rows are never deleted; cancellation is a
// status change. Amount is in minor currency units.
type Reservation struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Number   string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"number"`
	RoomID   string    `gorm:"type:varchar(64);not null;index:idx_reservations_room_dates,priority:1" json:"room_id"`
	CheckIn  time.Time `gorm:"type:date;not null;index:idx_reservations_room_dates,priority:2" json:"check_in"`
	CheckOut time.Time `gorm:"type:date;not null" json:"check_out"`
	Status   Status    `gorm:"type:varchar(20);not null;default:'pending';check:chk_reservations_status,status IN ('pending','confirmed','completed','cancelled')" json:"status"`

	GuestName       string `gorm:"type:varchar(255);not null" json:"guest_name"`
	GuestEmail      string `gorm:"type:varchar(255);not null" json:"guest_email"`
	GuestPhone      string `gorm:"type:varchar(32)" json:"guest_phone,omitempty"`
	GuestAddress    string `gorm:"type:varchar(255)" json:"guest_address,omitempty"`
	GuestCity       string `gorm:"type:varchar(128)" json:"guest_city,omitempty"`
	GuestPostalCode string `gorm:"type:varchar(16)" json:"guest_postal_code,omitempty"`
	GuestCountry    string `gorm:"type:varchar(2)" json:"guest_country,omitempty"`

	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`

	// PaymentSessionToken points at the single current payment session.
	PaymentSessionToken *string    `gorm:"type:varchar(64);index" json:"-"`
	UserID              *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName sets the table name for Reservation
func (Reservation) TableName() string {
	return "reservations"
}

// Range returns the stay as a half-open date range.
func (r *Reservation) Range() daterange.Range {
	return daterange.New(r.CheckIn, r.CheckOut)
}

// Occupies reports whether the reservation blocks its dates.
func (r *Reservation) Occupies() bool {
	return r.Status.Occupies() && r.Range().Valid()
}

// HasSession reports whether token is the reservation's current session.
func (r *Reservation) HasSession(token string) bool {
	return r.PaymentSessionToken != nil && *r.PaymentSessionToken == token
}
