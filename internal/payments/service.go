package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lodging/internal/daterange"
	"lodging/internal/reservations"
	"lodging/internal/shared/config"
	"lodging/pkg/logger"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
)

var tracer = otel.Tracer("lodging/payments")

// Coordinator owns every payment state transition. The HTTP handlers only
// trigger transitions.
type Coordinator interface {
	Initiate(ctx context.Context, reservationID uuid.UUID, userID *uuid.UUID) (*RedirectPayload, error)
	HandleCallback(ctx context.Context, cb Callback) (*CallbackResult, error)
	GetSession(ctx context.Context, token string) (*PaymentSession, error)
	ListEvents(ctx context.Context, reservationID uuid.UUID) ([]PaymentEvent, error)
}

// Invalidator drops cached answers derived from a room's occupancy.
type Invalidator interface {
	InvalidateRoom(ctx context.Context, roomID string)
}

type coordinator struct {
	repo        Repository
	cfg         *config.PaymentConfig
	publisher   EventPublisher
	invalidator Invalidator
	node        *snowflake.Node
	now         func() time.Time
}

// NewCoordinator validates cfg and builds the coordinator. publisher and
// invalidator may be nil.
func NewCoordinator(repo Repository, cfg *config.PaymentConfig, publisher EventPublisher, invalidator Invalidator) (Coordinator, error) {
	if cfg == nil {
		return nil, config.ErrMissingCredentials
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("%w: snowflake node: %v", config.ErrInvalidPaymentConfig, err)
	}
	return &coordinator{
		repo:        repo,
		cfg:         cfg,
		publisher:   publisher,
		invalidator: invalidator,
		node:        node,
		now:         time.Now,
	}, nil
}

func (c *coordinator) Initiate(ctx context.Context, reservationID uuid.UUID, userID *uuid.UUID) (*RedirectPayload, error) {
	ctx, span := tracer.Start(ctx, "payments.Initiate")
	defer span.End()
	span.SetAttributes(attribute.String("payments.reservation_id", reservationID.String()))

	token, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	id := c.node.Generate()
	merchantRef := strings.ToUpper(id.Base36())
	reference := ""
	if strings.TrimSpace(c.cfg.TransactionType) != TransactionPurchase {
		reference = fmt.Sprintf("%09d", id.Int64()%1_000_000_000)
	}
	signedAt := c.now().UTC().Truncate(time.Second)

	var (
		payload     *RedirectPayload
		event       *PaymentEvent
		reservation reservations.Reservation
		previous    string
	)
	err = c.repo.WithReservationLock(ctx, reservationID, func(tx Tx, r *reservations.Reservation) error {
		if !r.Status.IsPayable() {
			return ErrNotPayable
		}
		reservation = *r
		if r.PaymentSessionToken != nil {
			previous = *r.PaymentSessionToken
		}

		var err error
		payload, err = BuildPayload(c.cfg, PaymentRequest{
			MerchantRef:     merchantRef,
			MerchantSession: token.String(),
			ReferenceNumber: reference,
			Amount:          r.Amount,
			Timestamp:       signedAt,
			Shopper:         shopperFor(r),
		})
		if err != nil {
			return err
		}

		session := &PaymentSession{
			Token:           token.String(),
			ReservationID:   r.ID,
			MerchantRef:     merchantRef,
			ReferenceNumber: reference,
			Amount:          r.Amount,
			Currency:        strings.TrimSpace(c.cfg.CurrencyCode),
			TransactionType: strings.TrimSpace(c.cfg.TransactionType),
			Status:          SessionInitiated,
			Metadata:        jsonPayload(map[string]interface{}{"reservation_number": r.Number, "language": c.cfg.Language}),
			SignedAt:        signedAt,
		}
		if err := tx.CreateSession(session); err != nil {
			return err
		}
		// Re-attempting retires the previous session: its callbacks will no
		// longer match the reservation's pointer.
		if err := tx.SetReservationSession(r.ID, session.Token); err != nil {
			return fmt.Errorf("failed to point reservation at session: %w", err)
		}

		body := map[string]interface{}{"merchant_ref": merchantRef, "currency": session.Currency}
		if previous != "" {
			body["superseded_session"] = previous
		}
		event = &PaymentEvent{
			ReservationID: r.ID,
			UserID:        userID,
			EventType:     EventPaymentInitiated,
			SessionToken:  session.Token,
			Amount:        r.Amount,
			Payload:       jsonPayload(body),
			CreatedAt:     signedAt,
		}
		return tx.AppendEvent(event)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initiate failed")
		return nil, err
	}

	logger.GetDefault().LogPaymentTransition(ctx, reservationID.String(), token.String(), "none", string(SessionInitiated))
	c.afterCommit(ctx, event, &reservation)
	return payload, nil
}

func (c *coordinator) HandleCallback(ctx context.Context, cb Callback) (*CallbackResult, error) {
	ctx, span := tracer.Start(ctx, "payments.HandleCallback")
	defer span.End()

	token := strings.TrimSpace(cb.MerchantSession)
	if token == "" {
		return nil, ErrMissingSessionToken
	}
	span.SetAttributes(attribute.String("payments.session_token", token))

	session, err := c.repo.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			logger.GetDefault().LogCallbackRejected(ctx, token, "unknown session")
			return &CallbackResult{Outcome: OutcomeRejected, SessionToken: token, Reason: "unknown session"}, ErrUnknownSession
		}
		return nil, err
	}

	now := c.now().UTC()
	result := &CallbackResult{SessionToken: token, ReservationID: session.ReservationID}
	var (
		event       *PaymentEvent
		reservation reservations.Reservation
		from        SessionStatus
		rejectErr   error
	)
	err = c.repo.WithReservationLock(ctx, session.ReservationID, func(tx Tx, r *reservations.Reservation) error {
		reservation = *r
		// Reload under the lock; the first read was only for correlation.
		current, err := tx.GetSession(token)
		if err != nil {
			return err
		}
		from = current.Status
		newEvent := func(t EventType) *PaymentEvent {
			return &PaymentEvent{
				ReservationID: r.ID,
				EventType:     t,
				SessionToken:  token,
				Amount:        current.Amount,
				Payload:       jsonPayload(cb.Raw),
				CreatedAt:     now,
			}
		}

		if current.Status.IsTerminal() {
			// Gateway retry: financial state was applied by the first delivery.
			result.Outcome = OutcomeReplayed
			event = newEvent(EventCallbackReplayed)
			return tx.AppendEvent(event)
		}
		if reason := c.rejectReason(current, r, cb); reason != nil {
			result.Outcome = OutcomeRejected
			result.Reason = reason.Error()
			rejectErr = reason
			event = newEvent(EventCallbackRejected)
			return tx.AppendEvent(event)
		}

		current.ResponseCode = strings.TrimSpace(cb.ResponseCode)
		current.FinalizedAt = &now
		if failure := c.failureReason(current, cb); failure != "" {
			current.Status = SessionFailed
			current.FailureReason = &failure
			result.Outcome = OutcomeFailed
			result.Reason = failure
			event = newEvent(EventPaymentFailed)
		} else {
			current.Status = SessionSettled
			result.Outcome = OutcomeSettled
			event = newEvent(EventPaymentSettled)
		}
		if err := tx.FinalizeSession(current); err != nil {
			return err
		}

		if current.Status == SessionSettled {
			if r.Status == reservations.StatusPending {
				if err := tx.ConfirmReservation(r.ID, now); err != nil {
					return fmt.Errorf("failed to confirm reservation: %w", err)
				}
				reservation.Status = reservations.StatusConfirmed
			} else {
				// Money was taken for a reservation that can no longer be
				// confirmed, e.g. cancelled while the guest was paying.
				logger.GetDefault().Warn("payment settled for non-pending reservation, refund required",
					"reservation_id", r.ID.String(),
					"status", r.Status.String(),
					"session_token", token,
				)
			}
		}
		return tx.AppendEvent(event)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "callback failed")
		return nil, err
	}

	switch result.Outcome {
	case OutcomeRejected:
		logger.GetDefault().LogCallbackRejected(ctx, token, result.Reason)
	case OutcomeReplayed:
		logger.GetDefault().Info("payment callback replayed, ignoring", "session_token", token, "status", string(from))
	default:
		logger.GetDefault().LogPaymentTransition(ctx, session.ReservationID.String(), token, string(from), string(result.Outcome))
	}
	span.SetAttributes(attribute.String("payments.outcome", string(result.Outcome)))

	c.afterCommit(ctx, event, &reservation)
	return result, rejectErr
}

func (c *coordinator) GetSession(ctx context.Context, token string) (*PaymentSession, error) {
	return c.repo.GetSession(ctx, strings.TrimSpace(token))
}

func (c *coordinator) ListEvents(ctx context.Context, reservationID uuid.UUID) ([]PaymentEvent, error) {
	return c.repo.ListEvents(ctx, reservationID)
}

// rejectReason decides whether a callback may touch the session at all.
func (c *coordinator) rejectReason(session *PaymentSession, r *reservations.Reservation, cb Callback) error {
	if !r.HasSession(session.Token) {
		return ErrSessionSuperseded
	}

	signature := strings.TrimSpace(cb.FingerPrint)
	if signature == "" || strings.TrimSpace(cb.TimeStamp) == "" {
		if c.cfg.RequireCallbackFingerprint {
			return ErrFingerprintMismatch
		}
		return nil
	}

	ts, err := time.Parse(TimestampLayout, strings.TrimSpace(cb.TimeStamp))
	if err != nil {
		return ErrFingerprintMismatch
	}
	entity := ""
	if session.TransactionType != TransactionPurchase {
		entity = c.cfg.EntityCode
	}
	ok, err := VerifyFingerprint(FingerprintInput{
		PosAuthCode:     c.cfg.PosAuthCode,
		Timestamp:       ts,
		Amount:          session.Amount,
		MerchantRef:     session.MerchantRef,
		MerchantSession: session.Token,
		TerminalID:      c.cfg.TerminalID,
		CurrencyCode:    session.Currency,
		TransactionType: session.TransactionType,
		EntityCode:      entity,
		ReferenceNumber: session.ReferenceNumber,
	}, signature)
	if err != nil || !ok {
		return ErrFingerprintMismatch
	}
	return nil
}

// failureReason returns "" when the callback settles the session.
func (c *coordinator) failureReason(session *PaymentSession, cb Callback) string {
	code := strings.TrimSpace(cb.ResponseCode)
	if code != c.cfg.ApprovedResponseCode {
		msg := strings.TrimSpace(cb.ResponseMessage)
		if msg == "" {
			msg = "declined"
		}
		return truncate(fmt.Sprintf("gateway response %s: %s", code, msg), 255)
	}
	if ref := strings.TrimSpace(cb.MerchantRef); ref != "" && ref != session.MerchantRef {
		return "merchant reference mismatch"
	}
	if strings.TrimSpace(cb.Amount) != "" {
		amount, err := ParseAmount(cb.Amount)
		if err != nil || amount != session.Amount {
			return "amount mismatch"
		}
	}
	return ""
}

// afterCommit publishes the event and drops cached feeds. Failures here are
// logged only; the transaction is already durable.
func (c *coordinator) afterCommit(ctx context.Context, event *PaymentEvent, r *reservations.Reservation) {
	if event == nil {
		return
	}
	if c.invalidator != nil && event.EventType == EventPaymentSettled {
		c.invalidator.InvalidateRoom(ctx, r.RoomID)
	}
	if c.publisher == nil {
		return
	}
	msg := &EventMessage{
		EventID:           event.ID,
		EventType:         event.EventType,
		ReservationID:     r.ID,
		ReservationNumber: r.Number,
		RoomID:            r.RoomID,
		CheckIn:           r.CheckIn.Format(daterange.DateLayout),
		CheckOut:          r.CheckOut.Format(daterange.DateLayout),
		GuestName:         r.GuestName,
		GuestEmail:        r.GuestEmail,
		Amount:            event.Amount,
		Currency:          r.Currency,
		SessionToken:      event.SessionToken,
		OccurredAt:        event.CreatedAt,
	}
	if err := c.publisher.Publish(ctx, msg); err != nil {
		logger.GetDefault().WithError(err).Warn("failed to publish payment event",
			"event_type", string(event.EventType),
			"reservation_id", r.ID.String(),
		)
	}
}

func shopperFor(r *reservations.Reservation) ShopperInfo {
	return ShopperInfo{
		Name:       r.GuestName,
		Email:      r.GuestEmail,
		Phone:      r.GuestPhone,
		Address:    r.GuestAddress,
		City:       r.GuestCity,
		PostalCode: r.GuestPostalCode,
		Country:    r.GuestCountry,
	}
}

func jsonPayload(v interface{}) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
