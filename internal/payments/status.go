package payments

// SessionStatus is the lifecycle of one payment attempt.
type SessionStatus string

const (
	SessionInitiated  SessionStatus = "initiated"
	SessionProcessing SessionStatus = "processing"
	SessionSettled    SessionStatus = "settled"
	SessionFailed     SessionStatus = "failed"
)

// IsValid checks if the session status is valid
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionInitiated, SessionProcessing, SessionSettled, SessionFailed:
		return true
	}
	return false
}

// IsTerminal reports whether callbacks can no longer change the session.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionSettled || s == SessionFailed
}

func (s SessionStatus) String() string {
	return string(s)
}

// EventType names an entry in the append-only payment log.
type EventType string

const (
	EventPaymentInitiated EventType = "payment_initiated"
	EventPaymentSettled   EventType = "payment_settled"
	EventPaymentFailed    EventType = "payment_failed"
	EventCallbackReplayed EventType = "callback_replayed"
	EventCallbackRejected EventType = "callback_rejected"
)

// CallbackOutcome is what HandleCallback did with a delivery.
type CallbackOutcome string

const (
	OutcomeSettled  CallbackOutcome = "settled"
	OutcomeFailed   CallbackOutcome = "failed"
	OutcomeReplayed CallbackOutcome = "replayed"
	OutcomeRejected CallbackOutcome = "rejected"
)
