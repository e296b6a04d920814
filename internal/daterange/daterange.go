// Package daterange implements half-open calendar date intervals.
//
// Dates are normalized to midnight UTC. A Range covers [Start, End): the start
// day is included and the end day is not, so two stays can share a changeover
// day.
package daterange

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format used by the HTTP API.
	DateLayout = "2006-01-02"
	// CompactLayout is the iCal VALUE=DATE format.
	CompactLayout = "20060102"
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidRange = errors.New("end date must be after start date")
)

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time-of-day, keeping the calendar day as seen in t's location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Today returns the current calendar day in UTC.
func Today() time.Time {
	return Truncate(time.Now().UTC())
}

// Parse parses a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// ParseCompact parses a YYYYMMDD date.
func ParseCompact(s string) (time.Time, error) {
	t, err := time.Parse(CompactLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// Range is a half-open interval of calendar days.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds a range from two dates, truncating both to calendar days.
func New(start, end time.Time) Range {
	return Range{Start: Truncate(start), End: Truncate(end)}
}

// ParseRange parses two YYYY-MM-DD dates and rejects empty or inverted ranges.
func ParseRange(start, end string) (Range, error) {
	s, err := Parse(start)
	if err != nil {
		return Range{}, err
	}
	e, err := Parse(end)
	if err != nil {
		return Range{}, err
	}
	r := Range{Start: s, End: e}
	if !r.Valid() {
		return Range{}, ErrInvalidRange
	}
	return r, nil
}

// Valid reports whether End is strictly after Start.
func (r Range) Valid() bool {
	return r.End.After(r.Start)
}

// Nights is the number of days covered by the range, zero for invalid ranges.
func (r Range) Nights() int {
	if !r.Valid() {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Contains reports whether day falls inside [Start, End).
func (r Range) Contains(day time.Time) bool {
	day = Truncate(day)
	return !day.Before(r.Start) && day.Before(r.End)
}

// Overlaps reports whether two half-open ranges share at least one day.
func (r Range) Overlaps(o Range) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// Clip returns how many nights of r fall inside [windowStart, windowEnd).
func (r Range) Clip(windowStart, windowEnd time.Time) int {
	start := r.Start
	if ws := Truncate(windowStart); ws.After(start) {
		start = ws
	}
	end := r.End
	if we := Truncate(windowEnd); we.Before(end) {
		end = we
	}
	return Range{Start: start, End: end}.Nights()
}

// Days expands the range into its individual calendar days.
func (r Range) Days() []time.Time {
	n := r.Nights()
	days := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, r.Start.AddDate(0, 0, i))
	}
	return days
}

func (r Range) String() string {
	return r.Start.Format(DateLayout) + "/" + r.End.Format(DateLayout)
}

// Set is an immutable collection of ranges.
type Set struct {
	ranges []Range
}

// NewSet copies the valid ranges into a set; invalid ones are dropped.
func NewSet(ranges ...Range) Set {
	kept := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Valid() {
			kept = append(kept, r)
		}
	}
	return Set{ranges: kept}
}

// Ranges returns a copy of the ranges in the set.
func (s Set) Ranges() []Range {
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Len returns the number of ranges held.
func (s Set) Len() int {
	return len(s.ranges)
}

// Contains reports whether any range covers day.
func (s Set) Contains(day time.Time) bool {
	for _, r := range s.ranges {
		if r.Contains(day) {
			return true
		}
	}
	return false
}

// Overlaps reports whether [start, end) intersects any range in the set.
func (s Set) Overlaps(start, end time.Time) bool {
	q := New(start, end)
	for _, r := range s.ranges {
		if r.Overlaps(q) {
			return true
		}
	}
	return false
}

// DaysInWindow counts distinct days in [windowStart, windowEnd) covered by the set.
// Overlapping ranges are not double counted.
func (s Set) DaysInWindow(windowStart, windowEnd time.Time) int {
	window := New(windowStart, windowEnd)
	seen := make(map[time.Time]struct{})
	for _, r := range s.ranges {
		if r.Clip(window.Start, window.End) == 0 {
			continue
		}
		for _, day := range r.Days() {
			if window.Contains(day) {
				seen[day] = struct{}{}
			}
		}
	}
	return len(seen)
}
