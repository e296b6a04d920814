package calendarsync

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFetch wraps every failure to obtain a feed: transport errors,
	// timeouts, non-2xx responses and oversized bodies.
	ErrFetch          = errors.New("calendar fetch failed")
	ErrParse          = errors.New("calendar feed could not be read")
	ErrSourceNotFound = errors.New("calendar source not found")
	ErrInvalidFeedURL = errors.New("calendar url must be http or https")
	ErrDuplicateURL   = errors.New("calendar source already registered for room")
)

// CalendarSource is an external iCal feed whose events block a room.
type CalendarSource struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RoomID       string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_calendar_sources_room_url,priority:1" json:"room_id"`
	URL          string     `gorm:"type:text;not null;uniqueIndex:idx_calendar_sources_room_url,priority:2" json:"url"`
	Origin       string     `gorm:"type:varchar(64);not null" json:"origin"`
	Enabled      bool       `gorm:"not null;default:true" json:"enabled"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	LastError    *string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName sets the table name for CalendarSource
func (CalendarSource) TableName() string {
	return "calendar_sources"
}

// BlockedDateRange is one imported event. Rows belong to their source and
// are replaced wholesale on every successful sync.
type BlockedDateRange struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CalendarID uuid.UUID `gorm:"type:uuid;not null;index" json:"calendar_id"`
	RoomID     string    `gorm:"type:varchar(64);not null;index:idx_blocked_room_dates,priority:1" json:"room_id"`
	StartDate  time.Time `gorm:"type:date;not null;index:idx_blocked_room_dates,priority:2" json:"start_date"`
	EndDate    time.Time `gorm:"type:date;not null;check:chk_blocked_dates_order,end_date > start_date" json:"end_date"`
	Origin     string    `gorm:"type:varchar(64);not null" json:"origin"`
	ExternalID string    `gorm:"type:varchar(512);not null" json:"external_id"`
	Summary    string    `gorm:"type:varchar(512)" json:"summary,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName sets the table name for BlockedDateRange
func (BlockedDateRange) TableName() string {
	return "blocked_date_ranges"
}

// Event is a VEVENT reduced to the fields we import.
type Event struct {
	UID     string
	Start   time.Time
	End     time.Time
	Summary string
}

type ReportStatus string

const (
	ReportSuccess ReportStatus = "success"
	ReportPartial ReportStatus = "partial"
	ReportFailed  ReportStatus = "failed"
)

// SourceResult is the outcome of syncing one source.
type SourceResult struct {
	SourceID uuid.UUID  `json:"source_id"`
	RoomID   string     `json:"room_id"`
	Origin   string     `json:"origin"`
	Events   int        `json:"events"`
	Skipped  int        `json:"skipped"`
	Expired  int        `json:"expired"`
	Error    string     `json:"error,omitempty"`
	SyncedAt *time.Time `json:"synced_at,omitempty"`
}

// OK reports whether the source synced.
func (r SourceResult) OK() bool {
	return r.Error == ""
}

// Report aggregates a sync run over several sources.
type Report struct {
	Status     ReportStatus   `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Sources    []SourceResult `json:"sources"`
}

func summarize(results []SourceResult) ReportStatus {
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	switch {
	case failed == 0:
		return ReportSuccess
	case failed == len(results):
		return ReportFailed
	default:
		return ReportPartial
	}
}
