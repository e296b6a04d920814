package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lodging/internal/rooms"
	"lodging/internal/shared/pgerrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// CreateWithNoOverlap inserts the reservation while holding the room row
	// lock, after re-checking reservations and external blocks.
	CreateWithNoOverlap(ctx context.Context, reservation *Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	ListOccupyingByRoom(ctx context.Context, roomID string, from time.Time) ([]Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID) (*Reservation, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateWithNoOverlap(ctx context.Context, reservation *Reservation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Serialize writers for this room
		var room struct {
			ID string `gorm:"column:id"`
		}
		err := tx.Table("rooms").
			Select("id").
			Where("id = ?", reservation.RoomID).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&room).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return rooms.ErrRoomNotFound
			}
			return fmt.Errorf("failed to lock room: %w", err)
		}

		// 2. Internal reservations
		var count int64
		err = tx.Model(&Reservation{}).
			Where("room_id = ?", reservation.RoomID).
			Where("status IN ?", OccupyingStatuses()).
			Where("check_in < ? AND check_out > ?", reservation.CheckOut, reservation.CheckIn).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check reservations: %w", err)
		}
		if count > 0 {
			return ErrOverlap
		}

		// 3. Dates blocked by external calendars
		err = tx.Table("blocked_date_ranges").
			Where("room_id = ?", reservation.RoomID).
			Where("start_date < ? AND end_date > ?", reservation.CheckOut, reservation.CheckIn).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check blocked dates: %w", err)
		}
		if count > 0 {
			return ErrOverlap
		}

		if err := tx.Create(reservation).Error; err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}
		return nil
	})
	// The exclusion constraint backs up the check above.
	if pgerrors.IsExclusionViolation(err) {
		return ErrOverlap
	}
	return err
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	var reservation Reservation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) ListOccupyingByRoom(ctx context.Context, roomID string, from time.Time) ([]Reservation, error) {
	var list []Reservation
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Where("status IN ?", OccupyingStatuses()).
		Where("check_out > check_in").
		Where("check_out >= ?", from).
		Order("check_in ASC").
		Find(&list).Error
	return list, err
}

func (r *repository) Cancel(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	var reservation Reservation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&reservation).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReservationNotFound
			}
			return err
		}
		if !reservation.Status.CanBeCancelled() {
			return ErrNotCancellable
		}
		now := time.Now().UTC()
		reservation.Status = StatusCancelled
		reservation.CancelledAt = &now
		return tx.Model(&Reservation{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":       StatusCancelled,
				"cancelled_at": now,
				"updated_at":   now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}
