package reservations

import (
	"time"

	ics "github.com/arran4/golang-ical"
)

// FeedOptions controls the exported calendar.
type FeedOptions struct {
	UIDDomain string
	ProductID string
	Now       time.Time
}

// BuildFeed renders one all-day VEVENT per occupying reservation. DTEND is
// the check-out day, exclusive as iCal defines it, so channel managers see
// the same half-open range we store.
func BuildFeed(list []Reservation, opts FeedOptions) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	if opts.ProductID != "" {
		cal.SetProductId(opts.ProductID)
	}
	stamp := opts.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}

	for i := range list {
		res := &list[i]
		if !res.Occupies() {
			continue
		}
		stay := res.Range()
		event := cal.AddEvent(res.Number + "@" + opts.UIDDomain)
		event.SetDtStampTime(stamp.UTC())
		event.SetAllDayStartAt(stay.Start)
		event.SetAllDayEndAt(stay.End)
		event.SetSummary("Reservado")
		event.SetStatus(ics.ObjectStatusConfirmed)
	}
	return cal.Serialize()
}
