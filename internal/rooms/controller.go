package rooms

import (
	"errors"
	"net/http"

	"lodging/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// ListRooms handles GET /api/v1/rooms
func (c *Controller) ListRooms(ctx *gin.Context) {
	rooms, err := c.service.ListRooms(ctx.Request.Context())
	if err != nil {
		response.RespondError(ctx, http.StatusInternalServerError, "Failed to list rooms")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Rooms retrieved successfully", rooms, nil)
}

// GetRoom handles GET /api/v1/rooms/:roomId
func (c *Controller) GetRoom(ctx *gin.Context) {
	room, err := c.service.GetRoom(ctx.Request.Context(), ctx.Param("roomId"))
	if err != nil {
		status, msg := StatusFor(err)
		response.RespondError(ctx, status, msg)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Room retrieved successfully", room, nil)
}

// CreateRoom handles POST /api/v1/admin/rooms
func (c *Controller) CreateRoom(ctx *gin.Context) {
	var req CreateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, "Invalid request data", err)
		return
	}
	room, err := c.service.CreateRoom(ctx.Request.Context(), req)
	if err != nil {
		status, msg := StatusFor(err)
		response.RespondError(ctx, status, msg)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusCreated, "Room created successfully", room, nil)
}

// StatusFor maps room validation errors to an HTTP status and message.
// Other packages use it for their :roomId parameters.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRoomID):
		return http.StatusBadRequest, "Invalid room identifier"
	case errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound, "Room not found"
	case errors.Is(err, ErrRoomExists):
		return http.StatusConflict, "Room already exists"
	default:
		return http.StatusInternalServerError, "Failed to process room request"
	}
}
