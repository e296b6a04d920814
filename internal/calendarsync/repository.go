package calendarsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	CreateSource(ctx context.Context, source *CalendarSource) error
	GetSource(ctx context.Context, id uuid.UUID) (*CalendarSource, error)
	ListSources(ctx context.Context, roomID string) ([]CalendarSource, error)
	ListEnabledSources(ctx context.Context) ([]CalendarSource, error)
	// DeleteSource removes the source together with the ranges it owns.
	DeleteSource(ctx context.Context, id uuid.UUID) (*CalendarSource, error)

	// ReplaceBlockedRanges deletes every range owned by the source, inserts
	// ranges and stamps last_synced_at, all in one transaction.
	ReplaceBlockedRanges(ctx context.Context, source *CalendarSource, ranges []BlockedDateRange, syncedAt time.Time) error
	RecordFailure(ctx context.Context, sourceID uuid.UUID, message string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// CreateSource inserts every column so Enabled=false is not replaced by the
// column default.
func (r *repository) CreateSource(ctx context.Context, source *CalendarSource) error {
	return r.db.WithContext(ctx).Select("*").Create(source).Error
}

func (r *repository) GetSource(ctx context.Context, id uuid.UUID) (*CalendarSource, error) {
	var source CalendarSource
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&source).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSourceNotFound
		}
		return nil, err
	}
	return &source, nil
}

func (r *repository) ListSources(ctx context.Context, roomID string) ([]CalendarSource, error) {
	var sources []CalendarSource
	query := r.db.WithContext(ctx).Model(&CalendarSource{})
	if roomID != "" {
		query = query.Where("room_id = ?", roomID)
	}
	err := query.Order("room_id ASC, created_at ASC").Find(&sources).Error
	return sources, err
}

func (r *repository) ListEnabledSources(ctx context.Context) ([]CalendarSource, error) {
	var sources []CalendarSource
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("room_id ASC").
		Find(&sources).Error
	return sources, err
}

func (r *repository) DeleteSource(ctx context.Context, id uuid.UUID) (*CalendarSource, error) {
	var source CalendarSource
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&source).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSourceNotFound
			}
			return err
		}
		if err := tx.Where("calendar_id = ?", id).Delete(&BlockedDateRange{}).Error; err != nil {
			return fmt.Errorf("failed to delete blocked ranges: %w", err)
		}
		return tx.Delete(&CalendarSource{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *repository) ReplaceBlockedRanges(ctx context.Context, source *CalendarSource, ranges []BlockedDateRange, syncedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Concurrent replaces of one source must not interleave their
		// delete and insert phases.
		var locked CalendarSource
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", source.ID).
			Take(&locked).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSourceNotFound
			}
			return fmt.Errorf("failed to lock source: %w", err)
		}

		if err := tx.Where("calendar_id = ?", source.ID).Delete(&BlockedDateRange{}).Error; err != nil {
			return fmt.Errorf("failed to clear blocked ranges: %w", err)
		}
		if len(ranges) > 0 {
			if err := tx.CreateInBatches(ranges, 500).Error; err != nil {
				return fmt.Errorf("failed to insert blocked ranges: %w", err)
			}
		}
		return tx.Model(&CalendarSource{}).
			Where("id = ?", source.ID).
			Updates(map[string]interface{}{
				"last_synced_at": syncedAt,
				"last_error":     nil,
				"updated_at":     syncedAt,
			}).Error
	})
}

func (r *repository) RecordFailure(ctx context.Context, sourceID uuid.UUID, message string) error {
	return r.db.WithContext(ctx).
		Model(&CalendarSource{}).
		Where("id = ?", sourceID).
		Updates(map[string]interface{}{
			"last_error": message,
			"updated_at": time.Now().UTC(),
		}).Error
}
