package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lodging/internal/reservations"
	"lodging/internal/shared/pgerrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// WithReservationLock runs fn in a transaction holding the reservation's
	// row lock. Lock waits are bounded; a timeout or serialization failure
	// surfaces as ErrConcurrentUpdate.
	WithReservationLock(ctx context.Context, reservationID uuid.UUID, fn func(tx Tx, reservation *reservations.Reservation) error) error
	GetSession(ctx context.Context, token string) (*PaymentSession, error)
	ListEvents(ctx context.Context, reservationID uuid.UUID) ([]PaymentEvent, error)
}

// Tx is the set of writes allowed while the reservation lock is held.
type Tx interface {
	GetSession(token string) (*PaymentSession, error)
	CreateSession(session *PaymentSession) error
	FinalizeSession(session *PaymentSession) error
	SetReservationSession(reservationID uuid.UUID, token string) error
	ConfirmReservation(reservationID uuid.UUID, at time.Time) error
	AppendEvent(event *PaymentEvent) error
}

type repository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewRepository(db *gorm.DB, lockTimeout time.Duration) Repository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &repository{db: db, lockTimeout: lockTimeout}
}

func (r *repository) WithReservationLock(ctx context.Context, reservationID uuid.UUID, fn func(tx Tx, reservation *reservations.Reservation) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SET does not take bind parameters; the value is an integer.
		if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())).Error; err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}

		var reservation reservations.Reservation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", reservationID).
			First(&reservation).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return reservations.ErrReservationNotFound
			}
			return err
		}
		return fn(&gormTx{tx: tx}, &reservation)
	})
	if pgerrors.IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	return err
}

func (r *repository) GetSession(ctx context.Context, token string) (*PaymentSession, error) {
	var session PaymentSession
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *repository) ListEvents(ctx context.Context, reservationID uuid.UUID) ([]PaymentEvent, error) {
	var events []PaymentEvent
	err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) GetSession(token string) (*PaymentSession, error) {
	var session PaymentSession
	err := t.tx.Where("token = ?", token).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (t *gormTx) CreateSession(session *PaymentSession) error {
	if err := t.tx.Create(session).Error; err != nil {
		return fmt.Errorf("failed to create payment session: %w", err)
	}
	return nil
}

// FinalizeSession writes the terminal fields. The status guard keeps a
// finalized session from being finalized again.
func (t *gormTx) FinalizeSession(session *PaymentSession) error {
	result := t.tx.Model(&PaymentSession{}).
		Where("token = ?", session.Token).
		Where("status NOT IN ?", []SessionStatus{SessionSettled, SessionFailed}).
		Updates(map[string]interface{}{
			"status":         session.Status,
			"response_code":  session.ResponseCode,
			"failure_reason": session.FailureReason,
			"finalized_at":   session.FinalizedAt,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize payment session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment session %s already finalized", session.Token)
	}
	return nil
}

func (t *gormTx) SetReservationSession(reservationID uuid.UUID, token string) error {
	return t.tx.Model(&reservations.Reservation{}).
		Where("id = ?", reservationID).
		Updates(map[string]interface{}{
			"payment_session_token": token,
			"updated_at":            time.Now().UTC(),
		}).Error
}

func (t *gormTx) ConfirmReservation(reservationID uuid.UUID, at time.Time) error {
	return t.tx.Model(&reservations.Reservation{}).
		Where("id = ? AND status = ?", reservationID, reservations.StatusPending).
		Updates(map[string]interface{}{
			"status":       reservations.StatusConfirmed,
			"confirmed_at": at,
			"updated_at":   at,
		}).Error
}

func (t *gormTx) AppendEvent(event *PaymentEvent) error {
	if err := t.tx.Create(event).Error; err != nil {
		return fmt.Errorf("failed to append payment event: %w", err)
	}
	return nil
}
