package reservations

import (
	"errors"
	"net/http"

	"lodging/internal/rooms"
	"lodging/internal/shared/utils/response"
	"lodging/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// CreateReservation handles POST /api/v1/rooms/:roomId/reservations
func (c *Controller) CreateReservation(ctx *gin.Context) {
	var req CreateReservationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, "Invalid request data", err)
		return
	}

	reservation, err := c.service.CreateReservation(ctx.Request.Context(), ctx.Param("roomId"), optionalUserID(ctx), req)
	if err != nil {
		c.respondError(ctx, err, "Failed to create reservation")
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Reservation created successfully", ToResponse(reservation), nil)
}

// GetReservation handles GET /api/v1/reservations/:id
func (c *Controller) GetReservation(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid reservation ID")
		return
	}

	reservation, err := c.service.GetReservation(ctx.Request.Context(), id)
	if err != nil {
		c.respondError(ctx, err, "Failed to get reservation")
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Reservation retrieved successfully", ToResponse(reservation), nil)
}

// CancelReservation handles POST /api/v1/admin/reservations/:id/cancel
func (c *Controller) CancelReservation(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid reservation ID")
		return
	}

	reservation, err := c.service.CancelReservation(ctx.Request.Context(), id)
	if err != nil {
		c.respondError(ctx, err, "Failed to cancel reservation")
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Reservation cancelled successfully", ToResponse(reservation), nil)
}

// ExportCalendar handles GET /api/v1/rooms/:roomId/calendar.ics
func (c *Controller) ExportCalendar(ctx *gin.Context) {
	feed, err := c.service.ExportCalendar(ctx.Request.Context(), ctx.Param("roomId"))
	if err != nil {
		c.respondError(ctx, err, "Failed to export calendar")
		return
	}

	ctx.Header("Cache-Control", "no-cache")
	ctx.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(feed))
}

func (c *Controller) respondError(ctx *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, rooms.ErrInvalidRoomID):
		status, msg := rooms.StatusFor(err)
		response.RespondError(ctx, status, msg)
	case IsValidationError(err):
		response.RespondJSON(ctx, "error", http.StatusBadRequest, message, nil, err.Error())
	case errors.Is(err, ErrReservationNotFound):
		response.RespondError(ctx, http.StatusNotFound, "Reservation not found")
	case errors.Is(err, ErrOverlap):
		response.RespondError(ctx, http.StatusConflict, "Room is not available for the requested dates")
	case errors.Is(err, ErrNotCancellable):
		response.RespondError(ctx, http.StatusConflict, "Reservation cannot be cancelled")
	default:
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, message)
	}
}

func optionalUserID(ctx *gin.Context) *uuid.UUID {
	raw, exists := ctx.Get("user_id")
	if !exists {
		return nil
	}
	str, ok := raw.(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return nil
	}
	return &id
}
