package rooms

import (
	"context"
	"fmt"
	"strings"

	"lodging/internal/shared/constants"
	"lodging/pkg/cache"
	"lodging/pkg/logger"
)

type Service interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error)
	GetRoom(ctx context.Context, id string) (*Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	// Validate returns ErrInvalidRoomID or ErrRoomNotFound for identifiers
	// that cannot name a room.
	Validate(ctx context.Context, id string) error
}

type service struct {
	repo  Repository
	cache cache.Service
}

// NewService builds the room service. cacheService may be nil.
func NewService(repo Repository, cacheService cache.Service) Service {
	return &service{repo: repo, cache: cacheService}
}

func (s *service) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	id := strings.ToLower(strings.TrimSpace(req.ID))
	if !ValidID(id) {
		return nil, ErrInvalidRoomID
	}
	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check room: %w", err)
	}
	if exists {
		return nil, ErrRoomExists
	}
	room := &Room{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Capacity:    req.Capacity,
		NightlyRate: req.NightlyRate,
		Currency:    strings.ToUpper(req.Currency),
	}
	if room.Capacity <= 0 {
		room.Capacity = 2
	}
	if room.Currency == "" {
		room.Currency = "EUR"
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, constants.CACHE_KEY_ROOMS_LIST); err != nil {
			logger.GetDefault().WithError(err).Warn("failed to invalidate room list", "room_id", room.ID)
		}
	}
	return room, nil
}

func (s *service) GetRoom(ctx context.Context, id string) (*Room, error) {
	if !ValidID(id) {
		return nil, ErrInvalidRoomID
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListRooms(ctx context.Context) ([]Room, error) {
	if s.cache == nil {
		return s.repo.List(ctx)
	}
	var rooms []Room
	err := s.cache.GetOrSet(ctx, constants.CACHE_KEY_ROOMS_LIST, constants.TTL_ROOMS_LIST, func() (interface{}, error) {
		return s.repo.List(ctx)
	}, &rooms)
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *service) Validate(ctx context.Context, id string) error {
	if !ValidID(id) {
		return ErrInvalidRoomID
	}
	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check room: %w", err)
	}
	if !exists {
		return ErrRoomNotFound
	}
	return nil
}
