package calendarsync

import (
	"github.com/gin-gonic/gin"
)

// SetupCalendarSyncRoutes configures operator routes for external calendars.
// admin must already carry authentication and role checks.
func SetupCalendarSyncRoutes(admin *gin.RouterGroup, controller *Controller) {
	sources := admin.Group("/calendar-sources")
	{
		sources.GET("", controller.ListSources)          // GET /api/v1/admin/calendar-sources
		sources.POST("", controller.AddSource)           // POST /api/v1/admin/calendar-sources
		sources.POST("/sync", controller.SyncAll)        // POST /api/v1/admin/calendar-sources/sync
		sources.DELETE("/:id", controller.RemoveSource)  // DELETE /api/v1/admin/calendar-sources/:id
		sources.POST("/:id/sync", controller.SyncSource) // POST /api/v1/admin/calendar-sources/:id/sync
	}
}
