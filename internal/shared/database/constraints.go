package database

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateExtensions enables btree_gist, needed to mix equality on room_id
// with range overlap in one exclusion constraint.
func MigrateExtensions(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS btree_gist`).Error; err != nil {
		return fmt.Errorf("enable btree_gist: %w", err)
	}
	return nil
}

type constraint struct {
	table string
	name  string
	def   string
}

var constraints = []constraint{
	{
		table: "reservations",
		name:  "chk_reservations_dates",
		def:   `CHECK (check_out > check_in)`,
	},
	{
		// Non-cancelled reservations of one room never share a night.
		table: "reservations",
		name:  "excl_reservations_room_dates",
		def: `EXCLUDE USING gist (
			room_id WITH =,
			daterange(check_in, check_out, '[)') WITH &&
		) WHERE (status <> 'cancelled')`,
	},
	{
		table: "blocked_date_ranges",
		name:  "fk_blocked_date_ranges_calendar",
		def:   `FOREIGN KEY (calendar_id) REFERENCES calendar_sources(id) ON DELETE CASCADE`,
	},
	{
		table: "payment_sessions",
		name:  "fk_payment_sessions_reservation",
		def:   `FOREIGN KEY (reservation_id) REFERENCES reservations(id) ON DELETE RESTRICT`,
	},
	{
		table: "payment_sessions",
		name:  "chk_payment_sessions_amount",
		def:   `CHECK (amount > 0)`,
	},
}

// MigrateConstraints adds the constraints that back up the application's
// concurrency control. PostgreSQL has no ADD CONSTRAINT IF NOT EXISTS, so
// each one is guarded by a catalog lookup.
func MigrateConstraints(db *gorm.DB) error {
	for _, c := range constraints {
		stmt := fmt.Sprintf(`
			DO $$
			BEGIN
				IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
					ALTER TABLE %s ADD CONSTRAINT %s %s;
				END IF;
			END $$;`, c.name, c.table, c.name, c.def)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("add constraint %s: %w", c.name, err)
		}
	}

	// Availability scans filter on these.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_reservations_room_active
			ON reservations (room_id, check_in, check_out) WHERE status <> 'cancelled'`,
		`CREATE INDEX IF NOT EXISTS idx_payment_events_reservation_created
			ON payment_events (reservation_id, created_at)`,
	}
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
