package availability

import (
	"time"

	"lodging/internal/daterange"
)

// ReservationRange is the projection of a reservation the engine needs.
type ReservationRange struct {
	RoomID   string    `gorm:"column:room_id"`
	CheckIn  time.Time `gorm:"column:check_in"`
	CheckOut time.Time `gorm:"column:check_out"`
	Status   string    `gorm:"column:status"`
}

// BlockedRange is a date range imported from an external calendar.
type BlockedRange struct {
	RoomID    string    `gorm:"column:room_id"`
	StartDate time.Time `gorm:"column:start_date"`
	EndDate   time.Time `gorm:"column:end_date"`
	Origin    string    `gorm:"column:origin"`
}

// Snapshot is every occupying range for one room, or for all rooms, read
// at a single point in time.
type Snapshot struct {
	Reservations []ReservationRange
	Blocked      []BlockedRange
	TakenAt      time.Time
}

// OccupiedResult is the answer to an occupied-dates query. Degraded is set
// when storage could not be read and every day of the window is reported
// as occupied.
type OccupiedResult struct {
	RoomID   string   `json:"room_id,omitempty"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Dates    []string `json:"dates"`
	Degraded bool     `json:"degraded"`
}

// FreeResult is the answer to an is-free query.
type FreeResult struct {
	RoomID   string `json:"room_id"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Free     bool   `json:"free"`
	Degraded bool   `json:"degraded"`
}

// OccupancyResult is the dashboard figure for a window.
type OccupancyResult struct {
	RoomID string `json:"room_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Rate   int    `json:"rate"`
}

func formatDays(days []time.Time) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.Format(daterange.DateLayout)
	}
	return out
}
