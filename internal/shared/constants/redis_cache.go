package constants

import (
	"fmt"
	"time"
)

// Redis Cache Configuration
// Pattern: lodging:{module}:{resource}:{identifier}:{params?}

// ================== CACHE TTL DURATIONS ==================

const (
	TTL_STATIC_MEDIUM  = 12 * time.Hour   // room catalogue
	TTL_DYNAMIC_SHORT  = 2 * time.Minute  // exported feeds
	TTL_REALTIME_SHORT = 30 * time.Second // occupied dates for calendars
)

// ================== REDIS KEY PREFIXES ==================

const (
	CACHE_PREFIX = "lodging"
)

// ================== ROOMS MODULE ==================

const (
	CACHE_KEY_ROOMS_LIST = CACHE_PREFIX + ":rooms:list"
	TTL_ROOMS_LIST       = TTL_STATIC_MEDIUM
)

// ================== RESERVATIONS MODULE ==================

const (
	CACHE_KEY_ROOM_FEED = CACHE_PREFIX + ":reservations:feed:room:" // + room-id
	TTL_ROOM_FEED       = TTL_DYNAMIC_SHORT
)

// ================== AVAILABILITY MODULE ==================

const (
	CACHE_KEY_OCCUPIED = CACHE_PREFIX + ":availability:occupied:room:" // + room-id:from:X:to:Y
	TTL_OCCUPIED       = TTL_REALTIME_SHORT
)

// ================== RATE LIMIT ==================

const (
	CACHE_KEY_RATE_LIMIT = CACHE_PREFIX + ":ratelimit:" // + class:ip
)

// ================== KEY BUILDERS ==================

// BuildRoomFeedKey returns the key of a room's exported iCal feed.
func BuildRoomFeedKey(roomID string) string {
	return CACHE_KEY_ROOM_FEED + roomID
}

// BuildOccupiedKey returns the key of an occupied-dates answer. An empty
// roomID means the aggregate over every room.
func BuildOccupiedKey(roomID, from, to string) string {
	if roomID == "" {
		roomID = "_all"
	}
	return fmt.Sprintf("%s%s:from:%s:to:%s", CACHE_KEY_OCCUPIED, roomID, from, to)
}

// RoomInvalidationPatterns lists every pattern holding data derived from a
// room's occupancy. The aggregate answers are included since they cover
// every room.
func RoomInvalidationPatterns(roomID string) []string {
	return []string{
		BuildRoomFeedKey(roomID),
		CACHE_KEY_OCCUPIED + roomID + ":*",
		CACHE_KEY_OCCUPIED + "_all:*",
	}
}

// BuildRateLimitKey returns the sliding window key for a client.
func BuildRateLimitKey(class, identifier string) string {
	return fmt.Sprintf("%s%s:%s", CACHE_KEY_RATE_LIMIT, class, identifier)
}

// ================== AUTH ==================

const (
	CACHE_KEY_REVOKED_TOKEN = CACHE_PREFIX + ":auth:revoked:" // + token id
)

// BuildRevokedTokenKey returns the denylist key of a refresh token.
func BuildRevokedTokenKey(tokenID string) string {
	return CACHE_KEY_REVOKED_TOKEN + tokenID
}
