package database

import (
	"fmt"

	"lodging/internal/calendarsync"
	"lodging/internal/payments"
	"lodging/internal/reservations"
	"lodging/internal/rooms"
	"lodging/internal/users"

	"gorm.io/gorm"
)

// Migrate creates the tables and then the constraints GORM cannot express.
func Migrate(db *gorm.DB) error {
	if err := MigrateExtensions(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(
		&users.User{},
		&rooms.Room{},
		&reservations.Reservation{},
		&calendarsync.CalendarSource{},
		&calendarsync.BlockedDateRange{},
		&payments.PaymentSession{},
		&payments.PaymentEvent{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return MigrateConstraints(db)
}
