package reservations

type CreateReservationRequest struct {
	CheckIn    string `json:"check_in" binding:"required,datetime=2006-01-02"`
	CheckOut   string `json:"check_out" binding:"required,datetime=2006-01-02"`
	GuestName  string `json:"guest_name" binding:"required,max=255"`
	GuestEmail string `json:"guest_email" binding:"required,email,max=255"`
	GuestPhone string `json:"guest_phone" binding:"omitempty,max=32"`
	Address    string `json:"address" binding:"omitempty,max=255"`
	City       string `json:"city" binding:"omitempty,max=128"`
	PostalCode string `json:"postal_code" binding:"omitempty,max=16"`
	Country    string `json:"country" binding:"omitempty,len=2,alpha"`
}
