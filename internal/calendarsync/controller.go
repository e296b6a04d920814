package calendarsync

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

// ListSources handles GET /api/v1/admin/calendar-sources?room=
func (c *Controller) ListSources(ctx *gin.Context) {
	var query ListSourcesQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		response.RespondBindingError(ctx, "Invalid query parameters", err)
		return
	}

	sources, err := c.service.ListSources(ctx.Request.Context(), query.RoomID)
	if err != nil {
		c.respondError(ctx, err, "Failed to list calendar sources")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Calendar sources retrieved successfully", sources, nil)
}

// AddSource handles POST /api/v1/admin/calendar-sources
func (c *Controller) AddSource(ctx *gin.Context) {
	var req CreateSourceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, "Invalid request data", err)
		return
	}

	source, err := c.service.AddSource(ctx.Request.Context(), req)
	if err != nil {
		c.respondError(ctx, err, "Failed to add calendar source")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusCreated, "Calendar source added successfully", source, nil)
}

// RemoveSource handles DELETE /api/v1/admin/calendar-sources/:id
func (c *Controller) RemoveSource(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid calendar source ID")
		return
	}

	if err := c.service.RemoveSource(ctx.Request.Context(), id); err != nil {
		c.respondError(ctx, err, "Failed to remove calendar source")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Calendar source removed successfully", nil, nil)
}

// SyncAll handles POST /api/v1/admin/calendar-sources/sync
func (c *Controller) SyncAll(ctx *gin.Context) {
	report, err := c.service.SyncAll(ctx.Request.Context())
	if err != nil {
		c.respondError(ctx, err, "Failed to sync calendars")
		return
	}
	// The run itself succeeded even when some sources failed; the report
	// carries the per-source breakdown.
	response.RespondJSON(ctx, "success", http.StatusOK, "Calendar sync "+string(report.Status), report, nil)
}

// SyncSource handles POST /api/v1/admin/calendar-sources/:id/sync
func (c *Controller) SyncSource(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid calendar source ID")
		return
	}

	result, err := c.service.SyncSource(ctx.Request.Context(), id)
	if err != nil {
		c.respondError(ctx, err, "Failed to sync calendar source")
		return
	}
	if !result.OK() {
		response.RespondJSON(ctx, "error", http.StatusBadGateway, "Calendar source could not be synced", result, nil)
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Calendar source synced", result, nil)
}

func (c *Controller) respondError(ctx *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, rooms.ErrInvalidRoomID):
		status, msg := rooms.StatusFor(err)
		response.RespondError(ctx, status, msg)
	case errors.Is(err, ErrSourceNotFound):
		response.RespondError(ctx, http.StatusNotFound, "Calendar source not found")
	case errors.Is(err, ErrInvalidFeedURL):
		response.RespondJSON(ctx, "error", http.StatusBadRequest, message, nil, err.Error())
	case errors.Is(err, ErrDuplicateURL), errors.Is(err, ErrSyncInProgress):
		response.RespondJSON(ctx, "error", http.StatusConflict, message, nil, err.Error())
	default:
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, message)
	}
}
