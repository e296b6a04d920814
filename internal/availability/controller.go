package availability

import (
	"errors"
	"net/http"

	"lodging/internal/daterange"
	"lodging/internal/rooms"
	"lodging/internal/shared/utils/response"
	"lodging/pkg/logger"

	"github.com/gin-gonic/gin"
)

// DefaultWindowDays is used when an occupied-dates query omits "to".
const DefaultWindowDays = 365

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// CheckAvailability handles GET /api/v1/rooms/:roomId/availability?start=&end=
func (c *Controller) CheckAvailability(ctx *gin.Context) {
	stay, err := daterange.ParseRange(ctx.Query("start"), ctx.Query("end"))
	if err != nil {
		response.RespondBindingError(ctx, "Invalid date range", err)
		return
	}

	result, err := c.service.IsFree(ctx.Request.Context(), ctx.Param("roomId"), stay)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Availability checked", result, nil)
}

// OccupiedDates handles GET /api/v1/availability/occupied?room=&from=&to=
func (c *Controller) OccupiedDates(ctx *gin.Context) {
	window, err := parseWindow(ctx.Query("from"), ctx.Query("to"))
	if err != nil {
		response.RespondBindingError(ctx, "Invalid date range", err)
		return
	}

	result, err := c.service.OccupiedDates(ctx.Request.Context(), ctx.Query("room"), window)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Occupied dates retrieved", result, nil)
}

// OccupancyRate handles GET /api/v1/admin/rooms/:roomId/occupancy?from=&to=
func (c *Controller) OccupancyRate(ctx *gin.Context) {
	from, err := daterange.Parse(ctx.Query("from"))
	if err != nil {
		response.RespondBindingError(ctx, "Invalid date range", err)
		return
	}
	to, err := daterange.Parse(ctx.Query("to"))
	if err != nil {
		response.RespondBindingError(ctx, "Invalid date range", err)
		return
	}
	// An empty window is allowed here and reads as 0%.
	if to.Before(from) {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid date range", nil, daterange.ErrInvalidRange.Error())
		return
	}

	result, err := c.service.OccupancyRate(ctx.Request.Context(), ctx.Param("roomId"), daterange.Range{Start: from, End: to})
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Occupancy computed", result, nil)
}

func (c *Controller) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, rooms.ErrInvalidRoomID):
		status, msg := rooms.StatusFor(err)
		response.RespondError(ctx, status, msg)
	case errors.Is(err, daterange.ErrInvalidRange), errors.Is(err, daterange.ErrInvalidDate), errors.Is(err, ErrWindowTooLarge):
		response.RespondBindingError(ctx, "Invalid date range", err)
	default:
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, "Failed to read availability")
	}
}

// parseWindow defaults "from" to today and "to" to DefaultWindowDays later.
func parseWindow(fromStr, toStr string) (daterange.Range, error) {
	from := daterange.Today()
	if fromStr != "" {
		parsed, err := daterange.Parse(fromStr)
		if err != nil {
			return daterange.Range{}, err
		}
		from = parsed
	}
	to := from.AddDate(0, 0, DefaultWindowDays)
	if toStr != "" {
		parsed, err := daterange.Parse(toStr)
		if err != nil {
			return daterange.Range{}, err
		}
		to = parsed
	}
	window := daterange.Range{Start: from, End: to}
	if !window.Valid() {
		return daterange.Range{}, daterange.ErrInvalidRange
	}
	return window, nil
}
