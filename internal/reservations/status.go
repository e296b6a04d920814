package reservations

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the reservation status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// Occupies reports whether a reservation in this status blocks its dates.
// Every status except cancelled does.
func (s Status) Occupies() bool {
	return s.IsValid() && s != StatusCancelled
}

// IsPayable reports whether a payment may still be started.
func (s Status) IsPayable() bool {
	return s == StatusPending
}

// CanBeCancelled checks if a reservation with this status can be cancelled
func (s Status) CanBeCancelled() bool {
	return s == StatusPending || s == StatusConfirmed
}

// OccupyingStatuses lists the statuses that block dates, for SQL IN clauses.
func OccupyingStatuses() []string {
	return []string{string(StatusPending), string(StatusConfirmed), string(StatusCompleted)}
}
