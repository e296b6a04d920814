package rooms

import (
	"errors"
	"regexp"
	"time"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrInvalidRoomID = errors.New("invalid room identifier")
	ErrRoomExists    = errors.New("room already exists")
	roomIDPattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)
)

// Room is a bookable unit. Its ID is a short slug used in URLs and feeds.
// NightlyRate is in minor currency units.
type Room struct {
	ID          string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Capacity    int       `gorm:"not null;default:2" json:"capacity"`
	NightlyRate int64     `gorm:"not null;default:0" json:"nightly_rate"`
	Currency    string    `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName sets the table name for Room
func (Room) TableName() string {
	return "rooms"
}

// ValidID reports whether id is a well formed room slug.
func ValidID(id string) bool {
	return roomIDPattern.MatchString(id)
}
