package reservations

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lodging/internal/daterange"
	"lodging/internal/rooms"

	"github.com/google/uuid"
)

type fakeRepository struct {
	mu      sync.Mutex
	items   map[uuid.UUID]Reservation
	blocked []daterange.Range
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{items: make(map[uuid.UUID]Reservation)}
}

func (f *fakeRepository) CreateWithNoOverlap(_ context.Context, r *Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stay := r.Range()
	for _, existing := range f.items {
		if existing.RoomID == r.RoomID && existing.Occupies() && existing.Range().Overlaps(stay) {
			return ErrOverlap
		}
	}
	for _, b := range f.blocked {
		if b.Overlaps(stay) {
			return ErrOverlap
		}
	}
	f.items[r.ID] = *r
	return nil
}

func (f *fakeRepository) GetByID(_ context.Context, id uuid.UUID) (*Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return &r, nil
}

func (f *fakeRepository) ListOccupyingByRoom(_ context.Context, roomID string, from time.Time) ([]Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Reservation
	for _, r := range f.items {
		if r.RoomID == roomID && r.Occupies() && !r.CheckOut.Before(from) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepository) Cancel(_ context.Context, id uuid.UUID) (*Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	if !r.Status.CanBeCancelled() {
		return nil, ErrNotCancellable
	}
	r.Status = StatusCancelled
	f.items[id] = r
	return &r, nil
}

type fakeRooms map[string]rooms.Room

func (f fakeRooms) GetRoom(_ context.Context, id string) (*rooms.Room, error) {
	r, ok := f[id]
	if !ok {
		return nil, rooms.ErrRoomNotFound
	}
	return &r, nil
}

func newTestService(repo Repository) *service {
	svc := NewService(repo, fakeRooms{
		"azul": {ID: "azul", Name: "Quarto Azul", NightlyRate: 9000, Currency: "EUR"},
	}, nil, FeedOptions{UIDDomain: "reservas.test"}, 0).(*service)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func request(checkIn, checkOut string) CreateReservationRequest {
	return CreateReservationRequest{
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		GuestName:  "Ana Conceição",
		GuestEmail: "ana@example.com",
		Country:    "pt",
	}
}

func TestCreateReservation(t *testing.T) {
	svc := newTestService(newFakeRepository())
	res, err := svc.CreateReservation(context.Background(), "azul", nil, request("2024-03-10", "2024-03-13"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusPending {
		t.Errorf("status = %s, want pending", res.Status)
	}
	if res.Amount != 27000 {
		t.Errorf("amount = %d, want 3 nights x 9000", res.Amount)
	}
	if res.GuestCountry != "PT" {
		t.Errorf("country = %q, want upper-cased", res.GuestCountry)
	}
	if !strings.HasPrefix(res.Number, "R240301-") || len(res.Number) != len("R240301-XXXXXX") {
		t.Errorf("unexpected number format %q", res.Number)
	}
}

func TestCreateReservationRejections(t *testing.T) {
	repo := newFakeRepository()
	repo.blocked = []daterange.Range{{Start: daterange.Date(2024, 4, 1), End: daterange.Date(2024, 4, 5)}}
	svc := newTestService(repo)
	if _, err := svc.CreateReservation(context.Background(), "azul", nil, request("2024-03-10", "2024-03-13")); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	tests := []struct {
		name    string
		room    string
		in, out string
		wantErr error
	}{
		{"overlaps reservation", "azul", "2024-03-12", "2024-03-14", ErrOverlap},
		{"overlaps external block", "azul", "2024-04-04", "2024-04-06", ErrOverlap},
		{"inverted range", "azul", "2024-03-20", "2024-03-18", daterange.ErrInvalidRange},
		{"empty range", "azul", "2024-03-20", "2024-03-20", daterange.ErrInvalidRange},
		{"bad date", "azul", "2024-13-01", "2024-13-03", daterange.ErrInvalidDate},
		{"past check-in", "azul", "2024-02-27", "2024-03-02", ErrPastCheckIn},
		{"unknown room", "verde", "2024-05-01", "2024-05-03", rooms.ErrRoomNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateReservation(context.Background(), tt.room, nil, request(tt.in, tt.out))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Changeover day is free.
	if _, err := svc.CreateReservation(context.Background(), "azul", nil, request("2024-03-13", "2024-03-15")); err != nil {
		t.Errorf("back-to-back stay rejected: %v", err)
	}
}

func TestNormalizeCountry(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"pt", "PT", false},
		{" Es ", "ES", false},
		{"ZZ", "", true},
		{"xx", "", true},
		{"PRT", "", true},
	}
	for _, tt := range tests {
		got, err := normalizeCountry(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidCountry) {
				t.Errorf("normalizeCountry(%q) error = %v, want ErrInvalidCountry", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("normalizeCountry(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestCancelFreesDates(t *testing.T) {
	svc := newTestService(newFakeRepository())
	ctx := context.Background()
	res, err := svc.CreateReservation(ctx, "azul", nil, request("2024-03-10", "2024-03-13"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CancelReservation(ctx, res.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.CancelReservation(ctx, res.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("second cancel error = %v, want ErrNotCancellable", err)
	}
	if _, err := svc.CreateReservation(ctx, "azul", nil, request("2024-03-10", "2024-03-13")); err != nil {
		t.Errorf("dates of a cancelled stay must be free: %v", err)
	}
}

func TestExportCalendarWithoutCache(t *testing.T) {
	svc := newTestService(newFakeRepository())
	ctx := context.Background()
	if _, err := svc.CreateReservation(ctx, "azul", nil, request("2024-03-10", "2024-03-13")); err != nil {
		t.Fatal(err)
	}
	feed, err := svc.ExportCalendar(ctx, "azul")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(feed, "DTSTART;VALUE=DATE:20240310") || !strings.Contains(feed, "@reservas.test") {
		t.Errorf("unexpected feed:\n%s", feed)
	}
	if _, err := svc.ExportCalendar(ctx, "verde"); !errors.Is(err, rooms.ErrRoomNotFound) {
		t.Errorf("unknown room error = %v", err)
	}
}
