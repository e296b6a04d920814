package availability

import (
	"github.com/gin-gonic/gin"
)

// SetupAvailabilityRoutes configures availability routes. The admin group
// carries its own authentication.
func SetupAvailabilityRoutes(public *gin.RouterGroup, admin *gin.RouterGroup, controller *Controller) {
	public.GET("/rooms/:roomId/availability", controller.CheckAvailability) // GET /api/v1/rooms/:roomId/availability?start=&end=
	public.GET("/availability/occupied", controller.OccupiedDates)          // GET /api/v1/availability/occupied?room=&from=&to=

	admin.GET("/rooms/:roomId/occupancy", controller.OccupancyRate) // GET /api/v1/admin/rooms/:roomId/occupancy?from=&to=
}
