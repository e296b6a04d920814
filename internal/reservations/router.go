package reservations

import (
	"github.com/gin-gonic/gin"
)

// SetupReservationRoutes configures reservation routes. Authentication on
// the admin group is applied by the caller.
func SetupReservationRoutes(public *gin.RouterGroup, admin *gin.RouterGroup, controller *Controller, optionalAuth gin.HandlerFunc) {
	public.GET("/rooms/:roomId/calendar.ics", controller.ExportCalendar)                   // GET /api/v1/rooms/:roomId/calendar.ics
	public.POST("/rooms/:roomId/reservations", optionalAuth, controller.CreateReservation) // POST /api/v1/rooms/:roomId/reservations
	public.GET("/reservations/:id", controller.GetReservation)                             // GET /api/v1/reservations/:id

	admin.POST("/reservations/:id/cancel", controller.CancelReservation) // POST /api/v1/admin/reservations/:id/cancel
}
