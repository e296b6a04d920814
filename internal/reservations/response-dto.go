package reservations

import "time"

type ReservationResponse struct {
	ID         string    `json:"id"`
	Number     string    `json:"number"`
	RoomID     string    `json:"room_id"`
	CheckIn    string    `json:"check_in"`
	CheckOut   string    `json:"check_out"`
	Nights     int       `json:"nights"`
	Status     string    `json:"status"`
	GuestName  string    `json:"guest_name"`
	GuestEmail string    `json:"guest_email"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToResponse converts a reservation to its public shape.
func ToResponse(r *Reservation) ReservationResponse {
	stay := r.Range()
	return ReservationResponse{
		ID:         r.ID.String(),
		Number:     r.Number,
		RoomID:     r.RoomID,
		CheckIn:    stay.Start.Format("2006-01-02"),
		CheckOut:   stay.End.Format("2006-01-02"),
		Nights:     stay.Nights(),
		Status:     r.Status.String(),
		GuestName:  r.GuestName,
		GuestEmail: r.GuestEmail,
		Amount:     r.Amount,
		Currency:   r.Currency,
		CreatedAt:  r.CreatedAt,
	}
}
