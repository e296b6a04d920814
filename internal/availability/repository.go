package availability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lodging/internal/reservations"

	"gorm.io/gorm"
)

// Source reads the data the engine works on. An empty roomID means every
// room.
type Source interface {
	Snapshot(ctx context.Context, roomID string) (*Snapshot, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Source {
	return &repository{db: db}
}

// Snapshot reads reservations and blocked ranges in one REPEATABLE READ
// transaction, so a calendar replace committing between the two reads can
// never be half visible.
func (r *repository) Snapshot(ctx context.Context, roomID string) (*Snapshot, error) {
	snap := &Snapshot{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resQuery := tx.Table("reservations").
			Select("room_id, check_in, check_out, status").
			Where("status IN ?", reservations.OccupyingStatuses()).
			Where("check_out > check_in")
		if roomID != "" {
			resQuery = resQuery.Where("room_id = ?", roomID)
		}
		if err := resQuery.Scan(&snap.Reservations).Error; err != nil {
			return fmt.Errorf("failed to read reservations: %w", err)
		}

		blockQuery := tx.Table("blocked_date_ranges").
			Select("room_id, start_date, end_date, origin").
			Where("end_date > start_date")
		if roomID != "" {
			blockQuery = blockQuery.Where("room_id = ?", roomID)
		}
		if err := blockQuery.Scan(&snap.Blocked).Error; err != nil {
			return fmt.Errorf("failed to read blocked dates: %w", err)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	snap.TakenAt = time.Now().UTC()
	return snap, nil
}
