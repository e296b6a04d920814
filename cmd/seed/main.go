package main

import (
	"context"
	"fmt"
	"log"

	"lodging/internal/auth"
	"lodging/internal/calendarsync"
	"lodging/internal/daterange"
	"lodging/internal/reservations"
	"lodging/internal/rooms"
	"lodging/internal/shared/config"
	"lodging/internal/shared/database"
	"lodging/internal/users"
	"lodging/pkg/cache"

	"gorm.io/gorm"
)

type Seeder struct {
	db  *database.DB
	cfg *config.Config
}

func main() {
	fmt.Println("Starting lodging database seeder...")

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db, cfg: cfg}

	fmt.Println("\nCleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}

	fmt.Println("\nSeeding database...")
	if err := seeder.SeedAll(context.Background()); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	fmt.Println("\nSeeding completed.")
}

// CleanDatabase truncates all tables, dependents first.
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"payment_events",
		"payment_sessions",
		"blocked_date_ranges",
		"calendar_sources",
		"reservations",
		"rooms",
		"users",
	}

	return s.db.PostgreSQL.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			fmt.Printf("  Truncating table: %s\n", table)
			if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
				return fmt.Errorf("failed to truncate table %s: %w", table, err)
			}
		}
		return nil
	})
}

// SeedAll seeds operators, rooms, one upcoming reservation per room and a
// disabled sample calendar source.
func (s *Seeder) SeedAll(ctx context.Context) error {
	if err := s.SeedUsers(ctx); err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	var cacheService cache.Service
	if s.db.Redis != nil {
		cacheService = cache.NewService(s.db.Redis)
	}

	roomService := rooms.NewService(rooms.NewRepository(s.db.PostgreSQL), cacheService)
	roomIDs, err := s.SeedRooms(ctx, roomService)
	if err != nil {
		return fmt.Errorf("failed to seed rooms: %w", err)
	}
	reservationService := reservations.NewService(
		reservations.NewRepository(s.db.PostgreSQL),
		roomService,
		cacheService,
		reservations.FeedOptions{UIDDomain: s.cfg.Calendar.ExportUIDHost, ProductID: s.cfg.Calendar.ExportProdID},
		s.cfg.Redis.FeedCacheTTL,
	)
	if err := s.SeedReservations(ctx, reservationService, roomIDs); err != nil {
		return fmt.Errorf("failed to seed reservations: %w", err)
	}

	syncService := calendarsync.NewService(
		calendarsync.NewRepository(s.db.PostgreSQL),
		calendarsync.NewHTTPFetcher(s.cfg.Calendar.FetchTimeout, s.cfg.Calendar.MaxFeedBytes),
		roomService,
		reservationService,
		calendarsync.Options{Workers: 1},
	)
	if err := s.SeedCalendarSources(ctx, syncService, roomIDs); err != nil {
		return fmt.Errorf("failed to seed calendar sources: %w", err)
	}

	if s.db.Redis != nil {
		if err := s.db.Redis.FlushDB(ctx).Err(); err != nil {
			log.Printf("Warning: Failed to clear Redis cache: %v", err)
		}
	}
	return nil
}

// SeedUsers creates one admin and one staff operator. Password: "qwerty123".
func (s *Seeder) SeedUsers(ctx context.Context) error {
	fmt.Println("  Seeding users...")

	authService := auth.NewService(auth.NewRepository(s.db.PostgreSQL), s.cfg, nil)
	operators := []auth.RegisterRequest{
		{FirstName: "Admin", LastName: "Reservas", Email: "admin@reservas.local", Role: string(users.RoleAdmin)},
		{FirstName: "Rececao", LastName: "Turno", Email: "rececao@reservas.local", Role: string(users.RoleStaff)},
	}
	for i := range operators {
		operators[i].Password = "qwerty123"
		resp, err := authService.Register(ctx, &operators[i])
		if err != nil {
			return fmt.Errorf("failed to create user %s: %w", operators[i].Email, err)
		}
		fmt.Printf("    Created user: %s (%s)\n", resp.User.Email, resp.User.Role)
	}
	return nil
}

func (s *Seeder) SeedRooms(ctx context.Context, svc rooms.Service) ([]string, error) {
	fmt.Println("  Seeding rooms...")

	roomsData := []rooms.CreateRoomRequest{
		{ID: "dunas", Name: "Quarto Dunas", Capacity: 2, NightlyRate: 8500, Currency: "EUR"},
		{ID: "farol", Name: "Quarto Farol", Capacity: 2, NightlyRate: 9500, Currency: "EUR"},
		{ID: "suite-mar", Name: "Suite Mar", Capacity: 4, NightlyRate: 16000, Currency: "EUR"},
	}

	ids := make([]string, 0, len(roomsData))
	for _, req := range roomsData {
		room, err := svc.CreateRoom(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to create room %s: %w", req.ID, err)
		}
		ids = append(ids, room.ID)
		fmt.Printf("    Created room: %s\n", room.ID)
	}
	return ids, nil
}

func (s *Seeder) SeedReservations(ctx context.Context, svc reservations.Service, roomIDs []string) error {
	fmt.Println("  Seeding reservations...")

	start := daterange.Today().AddDate(0, 0, 14)
	for i, roomID := range roomIDs {
		checkIn := start.AddDate(0, 0, i*3)
		req := reservations.CreateReservationRequest{
			CheckIn:    checkIn.Format(daterange.DateLayout),
			CheckOut:   checkIn.AddDate(0, 0, 3).Format(daterange.DateLayout),
			GuestName:  "Hóspede de Teste",
			GuestEmail: fmt.Sprintf("hospede%d@example.com", i+1),
			Country:    "PT",
		}
		r, err := svc.CreateReservation(ctx, roomID, nil, req)
		if err != nil {
			return fmt.Errorf("failed to reserve %s: %w", roomID, err)
		}
		fmt.Printf("    Created reservation: %s (%s %s..%s)\n", r.Number, roomID, req.CheckIn, req.CheckOut)
	}
	return nil
}

// SeedCalendarSources registers a disabled placeholder feed so operators
// can see the shape of a source before pasting real channel URLs.
func (s *Seeder) SeedCalendarSources(ctx context.Context, svc calendarsync.Service, roomIDs []string) error {
	fmt.Println("  Seeding calendar sources...")

	if len(roomIDs) == 0 {
		return nil
	}
	disabled := false
	src, err := svc.AddSource(ctx, calendarsync.CreateSourceRequest{
		RoomID:  roomIDs[0],
		URL:     "https://www.airbnb.com/calendar/ical/00000000.ics?s=replace-me",
		Origin:  "airbnb",
		Enabled: &disabled,
	})
	if err != nil {
		return err
	}
	fmt.Printf("    Created calendar source: %s (%s, disabled)\n", src.ID, src.Origin)
	return nil
}
