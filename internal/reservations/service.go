package reservations

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"lodging/internal/daterange"
	"lodging/internal/rooms"
	"lodging/internal/shared/constants"
	"lodging/pkg/cache"
	"lodging/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

type Service interface {
	CreateReservation(ctx context.Context, roomID string, userID *uuid.UUID, req CreateReservationRequest) (*Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	CancelReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	// ExportCalendar returns the room's iCal feed, served from cache when fresh.
	ExportCalendar(ctx context.Context, roomID string) (string, error)
	// InvalidateRoom drops every cached answer derived from the room's occupancy.
	InvalidateRoom(ctx context.Context, roomID string)
}

type RoomService interface {
	GetRoom(ctx context.Context, id string) (*rooms.Room, error)
}

type service struct {
	repo     Repository
	rooms    RoomService
	cache    cache.Service
	feedOpts FeedOptions
	feedTTL  time.Duration
	now      func() time.Time
}

// NewService wires the reservation service. cacheService may be nil.
func NewService(repo Repository, roomService RoomService, cacheService cache.Service, feedOpts FeedOptions, feedTTL time.Duration) Service {
	if feedTTL <= 0 {
		feedTTL = constants.TTL_ROOM_FEED
	}
	return &service{
		repo:     repo,
		rooms:    roomService,
		cache:    cacheService,
		feedOpts: feedOpts,
		feedTTL:  feedTTL,
		now:      time.Now,
	}
}

func (s *service) CreateReservation(ctx context.Context, roomID string, userID *uuid.UUID, req CreateReservationRequest) (*Reservation, error) {
	stay, err := daterange.ParseRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}
	if stay.Start.Before(daterange.Truncate(s.now().UTC())) {
		return nil, ErrPastCheckIn
	}

	country, err := normalizeCountry(req.Country)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	number, err := generateReservationNumber(s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to generate reservation number: %w", err)
	}

	reservation := &Reservation{
		ID:              uuid.New(),
		Number:          number,
		RoomID:          room.ID,
		CheckIn:         stay.Start,
		CheckOut:        stay.End,
		Status:          StatusPending,
		GuestName:       strings.TrimSpace(req.GuestName),
		GuestEmail:      strings.TrimSpace(req.GuestEmail),
		GuestPhone:      strings.TrimSpace(req.GuestPhone),
		GuestAddress:    strings.TrimSpace(req.Address),
		GuestCity:       strings.TrimSpace(req.City),
		GuestPostalCode: strings.TrimSpace(req.PostalCode),
		GuestCountry:    country,
		Amount:          int64(stay.Nights()) * room.NightlyRate,
		Currency:        room.Currency,
		UserID:          userID,
	}

	if err := s.repo.CreateWithNoOverlap(ctx, reservation); err != nil {
		return nil, err
	}

	s.InvalidateRoom(ctx, room.ID)
	logger.GetDefault().LogReservationCreated(ctx, reservation.ID.String(), room.ID, stay.String())
	return reservation, nil
}

func (s *service) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) CancelReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	reservation, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.InvalidateRoom(ctx, reservation.RoomID)
	if reservation.PaymentSessionToken != nil {
		logger.GetDefault().Warn("reservation cancelled with a payment session attached",
			"reservation_id", reservation.ID.String())
	}
	return reservation, nil
}

func (s *service) ExportCalendar(ctx context.Context, roomID string) (string, error) {
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return "", err
	}

	render := func() (interface{}, error) {
		// Past stays are of no use to a channel manager.
		from := daterange.Truncate(s.now().UTC()).AddDate(0, 0, -1)
		list, err := s.repo.ListOccupyingByRoom(ctx, roomID, from)
		if err != nil {
			return nil, fmt.Errorf("failed to list reservations: %w", err)
		}
		opts := s.feedOpts
		opts.Now = s.now()
		return BuildFeed(list, opts), nil
	}

	if s.cache == nil {
		feed, err := render()
		if err != nil {
			return "", err
		}
		return feed.(string), nil
	}

	var feed string
	if err := s.cache.GetOrSet(ctx, constants.BuildRoomFeedKey(roomID), s.feedTTL, render, &feed); err != nil {
		return "", err
	}
	return feed, nil
}

func (s *service) InvalidateRoom(ctx context.Context, roomID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePatterns(ctx, constants.RoomInvalidationPatterns(roomID)...); err != nil {
		logger.GetDefault().WithError(err).Warn("failed to invalidate room cache", "room_id", roomID)
	}
}

// generateReservationNumber returns e.g. R240310-KQ7XZP.
func generateReservationNumber(now time.Time) (string, error) {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	randomPart := make([]byte, 6)
	for i := range randomPart {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		randomPart[i] = letters[num.Int64()]
	}
	return fmt.Sprintf("R%s-%s", now.UTC().Format("060102"), string(randomPart)), nil
}

// IsValidationError reports errors caused by the caller's input.
func IsValidationError(err error) bool {
	return errors.Is(err, daterange.ErrInvalidDate) ||
		errors.Is(err, daterange.ErrInvalidRange) ||
		errors.Is(err, ErrPastCheckIn) ||
		errors.Is(err, ErrInvalidCountry)
}

// normalizeCountry upper-cases an optional country code and rejects anything
// that is not an assigned ISO 3166-1 country.
func normalizeCountry(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", nil
	}
	region, err := language.ParseRegion(code)
	if err != nil || len(code) != 2 || !region.IsCountry() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCountry, code)
	}
	return region.String(), nil
}
