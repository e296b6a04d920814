package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lodging/internal/daterange"
	"lodging/internal/rooms"
	"lodging/internal/shared/constants"
	"lodging/pkg/cache"
	"lodging/pkg/logger"
)

// MaxWindowDays bounds the occupied-dates window a client may ask for.
const MaxWindowDays = 731

var ErrWindowTooLarge = errors.New("date window too large")

type Service interface {
	// IsFree answers false, with Degraded set, when storage cannot be read.
	IsFree(ctx context.Context, roomID string, stay daterange.Range) (*FreeResult, error)
	// OccupiedDates reports every day of the window as occupied, with
	// Degraded set, when storage cannot be read. An empty roomID covers
	// every room.
	OccupiedDates(ctx context.Context, roomID string, window daterange.Range) (*OccupiedResult, error)
	OccupancyRate(ctx context.Context, roomID string, window daterange.Range) (*OccupancyResult, error)
}

type RoomValidator interface {
	Validate(ctx context.Context, id string) error
}

type service struct {
	source Source
	rooms  RoomValidator
	cache  cache.Service
}

// NewService wires the availability service. cacheService may be nil.
func NewService(source Source, roomValidator RoomValidator, cacheService cache.Service) Service {
	return &service{source: source, rooms: roomValidator, cache: cacheService}
}

// validateRoom separates client errors from storage errors. Only the latter
// trigger degradation.
func (s *service) validateRoom(ctx context.Context, roomID string) (clientErr, storageErr error) {
	err := s.rooms.Validate(ctx, roomID)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, rooms.ErrInvalidRoomID):
		return err, nil
	default:
		return nil, err
	}
}

func (s *service) IsFree(ctx context.Context, roomID string, stay daterange.Range) (*FreeResult, error) {
	if !stay.Valid() {
		return nil, daterange.ErrInvalidRange
	}
	result := &FreeResult{
		RoomID: roomID,
		Start:  stay.Start.Format(daterange.DateLayout),
		End:    stay.End.Format(daterange.DateLayout),
	}

	clientErr, storageErr := s.validateRoom(ctx, roomID)
	if clientErr != nil {
		return nil, clientErr
	}
	var snap *Snapshot
	if storageErr == nil {
		snap, storageErr = s.source.Snapshot(ctx, roomID)
	}
	if storageErr != nil {
		logger.GetDefault().LogAvailabilityDegraded(ctx, roomID, storageErr)
		result.Degraded = true
		return result, nil
	}

	result.Free = NewEngine(snap).IsFree(roomID, stay.Start, stay.End)
	return result, nil
}

func (s *service) OccupiedDates(ctx context.Context, roomID string, window daterange.Range) (*OccupiedResult, error) {
	if !window.Valid() {
		return nil, daterange.ErrInvalidRange
	}
	if window.Nights() > MaxWindowDays {
		return nil, ErrWindowTooLarge
	}
	from := window.Start.Format(daterange.DateLayout)
	to := window.End.Format(daterange.DateLayout)

	if roomID != "" {
		clientErr, storageErr := s.validateRoom(ctx, roomID)
		if clientErr != nil {
			return nil, clientErr
		}
		if storageErr != nil {
			return s.degraded(ctx, roomID, window, storageErr), nil
		}
	}

	key := constants.BuildOccupiedKey(roomID, from, to)
	if s.cache != nil {
		var cached OccupiedResult
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	snap, err := s.source.Snapshot(ctx, roomID)
	if err != nil {
		return s.degraded(ctx, roomID, window, err), nil
	}

	var days []time.Time
	for _, day := range NewEngine(snap).OccupiedDates(roomID) {
		if window.Contains(day) {
			days = append(days, day)
		}
	}
	result := &OccupiedResult{RoomID: roomID, From: from, To: to, Dates: formatDays(days)}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, constants.TTL_OCCUPIED); err != nil {
			logger.GetDefault().WithError(err).Warn("failed to cache occupied dates", "key", key)
		}
	}
	return result, nil
}

func (s *service) degraded(ctx context.Context, roomID string, window daterange.Range, err error) *OccupiedResult {
	logger.GetDefault().LogAvailabilityDegraded(ctx, roomID, err)
	return &OccupiedResult{
		RoomID:   roomID,
		From:     window.Start.Format(daterange.DateLayout),
		To:       window.End.Format(daterange.DateLayout),
		Dates:    formatDays(window.Days()),
		Degraded: true,
	}
}

func (s *service) OccupancyRate(ctx context.Context, roomID string, window daterange.Range) (*OccupancyResult, error) {
	if err := s.rooms.Validate(ctx, roomID); err != nil {
		return nil, err
	}
	snap, err := s.source.Snapshot(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to read occupancy: %w", err)
	}
	return &OccupancyResult{
		RoomID: roomID,
		From:   window.Start.Format(daterange.DateLayout),
		To:     window.End.Format(daterange.DateLayout),
		Rate:   NewEngine(snap).OccupancyRate(roomID, window.Start, window.End),
	}, nil
}
