package availability

import (
	"math"
	"sort"
	"time"

	"lodging/internal/daterange"
	"lodging/internal/reservations"
)

// Engine answers occupancy questions over a snapshot. It does no I/O.
type Engine struct {
	snap *Snapshot
}

func NewEngine(snap *Snapshot) *Engine {
	if snap == nil {
		snap = &Snapshot{}
	}
	return &Engine{snap: snap}
}

// Ranges returns the occupying ranges of roomID, or of every room when
// roomID is empty. Cancelled reservations and ranges whose end is not after
// their start are left out.
func (e *Engine) Ranges(roomID string) daterange.Set {
	var ranges []daterange.Range
	for _, r := range e.snap.Reservations {
		if roomID != "" && r.RoomID != roomID {
			continue
		}
		if !reservations.Status(r.Status).Occupies() {
			continue
		}
		ranges = append(ranges, daterange.New(r.CheckIn, r.CheckOut))
	}
	for _, b := range e.snap.Blocked {
		if roomID != "" && b.RoomID != roomID {
			continue
		}
		ranges = append(ranges, daterange.New(b.StartDate, b.EndDate))
	}
	return daterange.NewSet(ranges...)
}

// OccupiedDates expands every occupying range into distinct, sorted days.
func (e *Engine) OccupiedDates(roomID string) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, r := range e.Ranges(roomID).Ranges() {
		for _, day := range r.Days() {
			seen[day] = struct{}{}
		}
	}
	days := make([]time.Time, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// IsFree reports whether no occupying range overlaps [start, end).
func (e *Engine) IsFree(roomID string, start, end time.Time) bool {
	return !e.Ranges(roomID).Overlaps(start, end)
}

// OccupancyRate returns round((1 - occupied/total) * 100) for the window.
// A window with no days yields 0.
func (e *Engine) OccupancyRate(roomID string, windowStart, windowEnd time.Time) int {
	window := daterange.New(windowStart, windowEnd)
	total := window.Nights()
	if total == 0 {
		return 0
	}
	occupied := e.Ranges(roomID).DaysInWindow(window.Start, window.End)
	return int(math.Round((1 - float64(occupied)/float64(total)) * 100))
}
